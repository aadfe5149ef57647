package style

import (
	"testing"

	"bookmill/common"
)

func TestResolve_Deterministic(t *testing.T) {
	first, err := Resolve(common.StylePresetCustom, []string{"#3D5A80"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := Resolve(common.StylePresetCustom, []string{"#3D5A80"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if *first != *second {
		t.Errorf("Resolve() is not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestResolve_UnknownPresetFallsBack(t *testing.T) {
	cfg, err := Resolve(common.ParseStylePreset("no-such-preset"), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Preset != common.StylePresetClassic {
		t.Errorf("expected classic fallback, got %s", cfg.Preset)
	}
}

func TestResolve_CustomColorCount(t *testing.T) {
	tests := []struct {
		name   string
		colors []string
	}{
		{"single", []string{"#AA3939"}},
		{"two", []string{"#AA3939", "#226666"}},
		{"three", []string{"#AA3939", "#226666", "#7B9F35"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Resolve(common.StylePresetCustom, tt.colors)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			want, _ := ParseHex(tt.colors[0])
			if cfg.Palette.Primary != want {
				t.Errorf("primary = %s, want %s", cfg.Palette.Primary.Hex(), want.Hex())
			}
			if len(tt.colors) > 1 {
				want, _ = ParseHex(tt.colors[1])
				if cfg.Palette.Secondary != want {
					t.Errorf("secondary = %s, want %s", cfg.Palette.Secondary.Hex(), want.Hex())
				}
			} else if cfg.Palette.Secondary != cfg.Palette.Primary.RotateHue(secondaryHueOffset) {
				t.Error("secondary is not a 150 degree rotation of primary")
			}
			if len(tt.colors) > 2 {
				want, _ = ParseHex(tt.colors[2])
				if cfg.Palette.Tertiary != want {
					t.Errorf("tertiary = %s, want %s", cfg.Palette.Tertiary.Hex(), want.Hex())
				}
			}
		})
	}
}

func TestResolve_MalformedColor(t *testing.T) {
	if _, err := Resolve(common.StylePresetCustom, []string{"not-a-color"}); err == nil {
		t.Error("expected error for malformed hex color")
	}
}

func TestTitleTextContrast(t *testing.T) {
	tests := []struct {
		primary string
		want    Color
	}{
		{"#000000", white},
		{"#FFFFFF", nearInk},
		{"#101820", white},   // deep navy
		{"#F4E04D", nearInk}, // bright yellow
	}
	for _, tt := range tests {
		t.Run(tt.primary, func(t *testing.T) {
			cfg, err := Resolve(common.StylePresetCustom, []string{tt.primary})
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if cfg.Palette.TitleText != tt.want {
				t.Errorf("title text for %s = %s, want %s", tt.primary, cfg.Palette.TitleText.Hex(), tt.want.Hex())
			}
		})
	}
}

func TestPresetPalettesComplete(t *testing.T) {
	for _, name := range common.StylePresetNames() {
		t.Run(name, func(t *testing.T) {
			cfg, err := Resolve(common.ParseStylePreset(name), nil)
			if err != nil {
				t.Fatalf("Resolve(%s) error = %v", name, err)
			}
			if cfg.MainFont == "" || cfg.HeadingFont == "" {
				t.Error("preset has empty font directives")
			}
			if cfg.FontSize < 10 || cfg.FontSize > 14 {
				t.Errorf("unexpected font size %d", cfg.FontSize)
			}
			// tint roles must actually be lighter and frame roles darker
			p := cfg.Palette
			if p.BgTint.Luminance() <= p.Primary.Luminance() {
				t.Error("background tint is not lighter than primary")
			}
			if p.Frame.Luminance() >= p.Primary.Luminance() {
				t.Error("frame shade is not darker than primary")
			}
		})
	}
}
