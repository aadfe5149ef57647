package style

import "bookmill/common"

// Named presets. Values are fixed - changing any of them changes the output
// of every rebuild, so treat edits as a breaking change for stored projects.
func presetConfig(preset common.StylePreset) StyleConfig {
	switch preset {
	case common.StylePresetModern:
		return StyleConfig{
			Preset:      preset,
			MainFont:    "Source Sans Pro",
			HeadingFont: "Source Sans Pro",
			FontSize:    11,
			ChapterRule: "block",
			SectionRule: "plain",
			Palette: mustPalette("#2C3E50", "#16A085", "#E67E22"),
		}
	case common.StylePresetElegant:
		return StyleConfig{
			Preset:      preset,
			MainFont:    "EB Garamond",
			HeadingFont: "Cormorant Garamond",
			FontSize:    12,
			ChapterRule: "display",
			SectionRule: "smallcaps",
			Palette: mustPalette("#4A3728", "#8C6A4F", "#B59E7D"),
		}
	case common.StylePresetAcademic:
		return StyleConfig{
			Preset:      preset,
			MainFont:    "TeX Gyre Termes",
			HeadingFont: "TeX Gyre Heros",
			FontSize:    11,
			ChapterRule: "numbered",
			SectionRule: "numbered",
			Palette: mustPalette("#1F3A5F", "#5F1F2C", "#3A5F1F"),
		}
	case common.StylePresetVibrant:
		return StyleConfig{
			Preset:      preset,
			MainFont:    "Lato",
			HeadingFont: "Montserrat",
			FontSize:    11,
			ChapterRule: "color-block",
			SectionRule: "color",
			Palette: mustPalette("#9B2335", "#1E7A8C", "#E9897E"),
		}
	case common.StylePresetCustom:
		// palette is replaced by the caller, keep neutral typography
		return StyleConfig{
			Preset:      preset,
			MainFont:    "TeX Gyre Pagella",
			HeadingFont: "TeX Gyre Heros",
			FontSize:    11,
			ChapterRule: "display",
			SectionRule: "plain",
			Palette: mustPalette("#333333", "#666666", "#999999"),
		}
	default: // classic
		return StyleConfig{
			Preset:      common.StylePresetClassic,
			MainFont:    "TeX Gyre Pagella",
			HeadingFont: "TeX Gyre Pagella",
			FontSize:    12,
			ChapterRule: "display",
			SectionRule: "plain",
			Palette: mustPalette("#1A1A2E", "#16213E", "#0F3460"),
		}
	}
}

// mustPalette derives the full palette for a preset triple. Preset hex values
// are compile-time constants, a parse failure here is a programming error.
func mustPalette(primary, secondary, tertiary string) Palette {
	p, err := ParseHex(primary)
	if err != nil {
		panic(err)
	}
	s, err := ParseHex(secondary)
	if err != nil {
		panic(err)
	}
	t, err := ParseHex(tertiary)
	if err != nil {
		panic(err)
	}
	return derivePalette([]Color{p, s, t})
}
