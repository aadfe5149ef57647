// Package assemble turns sanitized chapter fragments and a resolved style
// into one compilable document. It is a pure transformation - no file or
// network access happens here.
package assemble

import (
	"fmt"
	"strings"

	"bookmill/book"
	"bookmill/sanitize"
	"bookmill/style"
)

// palette role names as referenced by the preamble template
var colorRoles = []string{
	"bmprimary",
	"bmsecondary",
	"bmtertiary",
	"bmbgtint",
	"bmbgtintalt",
	"bmframe",
	"bmaccent",
	"bmtitletext",
	"bmbody",
}

// Build produces the complete document text: preamble, title page, table of
// contents directive and all usable fragments in chapter order, each
// sanitized and preceded by a boundary marker. Identical input yields
// identical output.
func Build(meta book.Meta, cfg *style.StyleConfig, frags []book.Fragment) (string, error) {
	ready := book.Ready(frags)
	if len(ready) == 0 {
		return "", fmt.Errorf("no usable chapter fragments for %q", meta.Title)
	}

	var b strings.Builder

	if err := tmpl.Execute(&b, values(meta, cfg)); err != nil {
		return "", fmt.Errorf("unable to expand document preamble: %w", err)
	}

	for _, f := range ready {
		b.WriteString("\n\\clearpage\n")
		fmt.Fprintf(&b, "%% --- chapter %d ---\n", f.Chapter)
		if f.Title != "" && !hasChapterHeading(f.Content) {
			fmt.Fprintf(&b, "\\chapter{%s}\n", escapeTex(f.Title))
		}
		body := sanitize.Fragment(f.Content)
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteByte('\n')
		}
	}

	b.WriteString("\n\\end{document}\n")
	return b.String(), nil
}

func values(meta book.Meta, cfg *style.StyleConfig) Values {
	p := cfg.Palette
	hex := []string{
		p.Primary.HexNoHash(),
		p.Secondary.HexNoHash(),
		p.Tertiary.HexNoHash(),
		p.BgTint.HexNoHash(),
		p.BgTintAlt.HexNoHash(),
		p.Frame.HexNoHash(),
		p.Accent.HexNoHash(),
		p.TitleText.HexNoHash(),
		p.Body.HexNoHash(),
	}
	colors := make([]ColorDef, len(colorRoles))
	for i, role := range colorRoles {
		colors[i] = ColorDef{Name: role, Hex: hex[i]}
	}

	return Values{
		Title:       escapeTex(meta.Title),
		Author:      escapeTex(meta.Author),
		Babel:       babelName(meta.LangTag()),
		Geometry:    geometryFor(meta.PageFormat),
		FontSize:    cfg.FontSize,
		MainFont:    cfg.MainFont,
		HeadingFont: cfg.HeadingFont,
		ChapterRule: cfg.ChapterRule,
		SectionRule: cfg.SectionRule,
		Colors:      colors,
	}
}

// hasChapterHeading reports whether the fragment already starts its own
// chapter - the generation stage is inconsistent about this.
func hasChapterHeading(content string) bool {
	for _, line := range strings.SplitN(content, "\n", 20) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "%") {
			continue
		}
		return strings.HasPrefix(trimmed, `\chapter`)
	}
	return false
}
