package assemble

import (
	_ "embed"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"

	"bookmill/common"

	"golang.org/x/text/language"
)

//go:embed preamble.tmpl
var preambleTmpl string

// Values is a struct that holds variables we make available for template
// expansion.
type Values struct {
	Title       string
	Author      string
	Babel       string
	Geometry    string
	FontSize    int
	MainFont    string
	HeadingFont string
	ChapterRule string
	SectionRule string
	TipTitle    string
	WarnTitle   string
	// color name -> HTML hex without '#', iterated in fixed order
	Colors []ColorDef
}

type ColorDef struct {
	Name string
	Hex  string
}

var tmpl = template.Must(template.New("preamble").Funcs(sprig.FuncMap()).Parse(preambleTmpl))

// babelNames maps document language to the hyphenation/babel option. Keyed by
// base language, anything unlisted falls back to english.
var babelNames = map[language.Tag]string{
	language.English:    "english",
	language.German:     "ngerman",
	language.French:     "french",
	language.Spanish:    "spanish",
	language.Italian:    "italian",
	language.Portuguese: "portuguese",
	language.Dutch:      "dutch",
	language.Polish:     "polish",
	language.Russian:    "russian",
	language.Ukrainian:  "ukrainian",
	language.Czech:      "czech",
	language.Swedish:    "swedish",
}

func babelName(tag language.Tag) string {
	base, _ := tag.Base()
	for t, name := range babelNames {
		b, _ := t.Base()
		if b == base {
			return name
		}
	}
	return "english"
}

// geometries for supported page formats
func geometryFor(f common.PageFormat) string {
	switch f {
	case common.PageFormatA5:
		return "a5paper,margin=18mm"
	case common.PageFormatLetter:
		return "letterpaper,margin=25mm"
	case common.PageFormatRoyal:
		return "paperwidth=156mm,paperheight=234mm,margin=20mm"
	default:
		return "a4paper,margin=25mm"
	}
}

var texEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

// escapeTex makes free text safe for use inside the title page.
func escapeTex(s string) string {
	return texEscaper.Replace(s)
}
