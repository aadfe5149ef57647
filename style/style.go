// Package style resolves a named visual preset or user supplied accent colors
// into the concrete palette and typographic rules a build uses. Resolution
// happens once per build and the result is never mutated afterwards.
package style

import (
	"fmt"

	"bookmill/common"
)

// offsets and ratios used when deriving a full palette from user colors; fixed
// so that derivation stays reproducible between builds
const (
	secondaryHueOffset = 150.0
	tertiaryHueOffset  = 210.0

	bgTintRatio    = 0.88
	bgTintAltRatio = 0.92
	frameRatio     = 0.35
	accentRatio    = 0.25

	// primary colors darker than this get white title text
	titleLuminanceThreshold = 0.4
)

var (
	white    = Color{255, 255, 255}
	nearInk  = Color{26, 26, 26} // #1A1A1A
	inkBlack = Color{0, 0, 0}
)

// Palette holds the semantic color roles referenced by the document preamble.
type Palette struct {
	Primary   Color
	Secondary Color
	Tertiary  Color
	BgTint    Color // lightened primary, box backgrounds
	BgTintAlt Color // lightened secondary, alternate row / quote backgrounds
	Frame     Color // darkened primary, box frames
	Accent    Color // darkened secondary, inline accents
	TitleText Color // on-primary text, chosen for contrast
	Body      Color
}

// StyleConfig is the resolved, immutable style bundle for one build.
type StyleConfig struct {
	Preset      common.StylePreset
	Palette     Palette
	MainFont    string
	HeadingFont string
	FontSize    int // pt
	// heading shape directives understood by the preamble template
	ChapterRule string
	SectionRule string
}

// Resolve maps a preset name or 1-3 custom accent hex colors to a StyleConfig.
// When custom colors are present they win over the preset. Unknown preset
// names fall back to classic. The derivation is pure: identical input always
// produces an identical bundle.
func Resolve(preset common.StylePreset, customHex []string) (*StyleConfig, error) {
	if len(customHex) == 0 {
		cfg := presetConfig(preset)
		return &cfg, nil
	}
	if len(customHex) > 3 {
		customHex = customHex[:3]
	}

	colors := make([]Color, 0, len(customHex))
	for _, h := range customHex {
		c, err := ParseHex(h)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve custom style: %w", err)
		}
		colors = append(colors, c)
	}

	cfg := presetConfig(common.StylePresetCustom)
	cfg.Palette = derivePalette(colors)
	return &cfg, nil
}

// derivePalette expands 1-3 accent colors into the full semantic palette.
// Secondary and tertiary default to hue rotations of primary when not
// supplied explicitly.
func derivePalette(colors []Color) Palette {
	primary := colors[0]

	secondary := primary.RotateHue(secondaryHueOffset)
	if len(colors) > 1 {
		secondary = colors[1]
	}
	tertiary := primary.RotateHue(tertiaryHueOffset)
	if len(colors) > 2 {
		tertiary = colors[2]
	}

	titleText := nearInk
	if primary.Luminance() < titleLuminanceThreshold {
		titleText = white
	}

	return Palette{
		Primary:   primary,
		Secondary: secondary,
		Tertiary:  tertiary,
		BgTint:    primary.Lighten(bgTintRatio),
		BgTintAlt: secondary.Lighten(bgTintAltRatio),
		Frame:     primary.Darken(frameRatio),
		Accent:    secondary.Darken(accentRatio),
		TitleText: titleText,
		Body:      nearInk,
	}
}
