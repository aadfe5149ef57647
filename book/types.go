// Package book defines the project-facing data model: book metadata and
// chapter fragments as produced by the generation stage.
package book

import (
	"sort"

	"golang.org/x/text/language"

	"bookmill/common"
)

// Fragment is one chapter's generated content before it is spliced into the
// full document. Fragments are ordered by unique chapter numbers.
type Fragment struct {
	Chapter    int                   `yaml:"chapter"`
	Title      string                `yaml:"title"`
	TargetLen  int                   `yaml:"target_length,omitempty"` // words, advisory
	Status     common.FragmentStatus `yaml:"status"`
	Content    string                `yaml:"-"`
	SourceFile string                `yaml:"file,omitempty"`
}

// Meta carries book level information needed for assembly and review.
type Meta struct {
	ProjectID  string             `yaml:"project_id"`
	Title      string             `yaml:"title"`
	Author     string             `yaml:"author"`
	Language   string             `yaml:"language"`
	PageFormat common.PageFormat  `yaml:"page_format"`
	Preset     common.StylePreset `yaml:"style_preset"`
	Colors     []string           `yaml:"accent_colors,omitempty"`
	Topic      string             `yaml:"topic,omitempty"`
}

// LangTag parses the declared language, falling back to English on malformed
// or absent tags.
func (m *Meta) LangTag() language.Tag {
	if m.Language == "" {
		return language.English
	}
	tag, err := language.Parse(m.Language)
	if err != nil {
		return language.English
	}
	return tag
}

// Ready returns usable fragments sorted by chapter number. The input slice is
// not modified.
func Ready(frags []Fragment) []Fragment {
	out := make([]Fragment, 0, len(frags))
	for _, f := range frags {
		if f.Status.Usable() && len(f.Content) > 0 {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chapter < out[j].Chapter })
	return out
}

// ByChapter returns the index of the fragment with the given chapter number,
// or -1.
func ByChapter(frags []Fragment, chapter int) int {
	for i := range frags {
		if frags[i].Chapter == chapter {
			return i
		}
	}
	return -1
}
