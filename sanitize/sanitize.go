// Package sanitize repairs structural defects in a single chapter fragment so
// that splicing it into the assembled document cannot corrupt global
// structure. It never fails: defects it cannot classify are left in place and
// will surface as compiler errors downstream where the retry engine deals
// with them.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

// Environments the generation stage is known to emit. Only these are
// balanced, anything else passes through untouched.
var knownEnvironments = []string{
	"callout",
	"tipbox",
	"warningbox",
	"examplebox",
	"itemize",
	"enumerate",
	"description",
	"quote",
	"quotation",
	"verse",
	"center",
	"table",
	"tabular",
	"longtable",
	"figure",
	"wrapfigure",
	"minipage",
}

// patterns for preamble and epilogue markers that must never appear inside a
// chapter body
var leakedDirectiveRx = regexp.MustCompile(`(?m)^[ \t]*(?:\\(?:documentclass|usepackage|geometry|tableofcontents|maketitle)\b|\\(?:begin|end)\{document\})[^\n]*\n?`)

// echoed instruction artifacts the oracle sometimes emits verbatim
var promptArtifactRxs = []*regexp.Regexp{
	regexp.MustCompile(`(?mi)^[ \t]*(?:#+[ \t]*)?(?:output[ \t]+)?checklist:?[ \t]*$\n?`),
	regexp.MustCompile(`(?mi)^[ \t]*\[?(?:begin|start)[ \t]+(?:the[ \t]+)?output[ \t]+now\.?\]?:?[ \t]*$\n?`),
	regexp.MustCompile(`(?mi)^[ \t]*(?:---[ \t]*)?end[ \t]+of[ \t]+chapter[ \t]*(?:---)?[ \t]*$\n?`),
	regexp.MustCompile(`(?m)^[ \t]*\\(?:begin|end)\{\}[ \t]*$\n?`),
}

var blankRunRx = regexp.MustCompile(`\n{4,}`)

// Fragment applies all repairs in order and returns the best-effort result.
// Applying it twice is a no-op.
func Fragment(text string) string {
	for _, env := range knownEnvironments {
		text = balanceEnvironment(text, env)
	}
	text = closeBraces(text)
	text = stripLeakedDirectives(text)
	text = stripPromptArtifacts(text)
	text = blankRunRx.ReplaceAllString(text, "\n\n\n")
	return text
}

// balanceEnvironment evens out \begin{env}/\end{env} pairs. Missing closers
// are appended at the fragment's end; excess closers are stripped starting
// from the earliest orphan.
func balanceEnvironment(text, env string) string {
	open := `\begin{` + env + `}`
	close := `\end{` + env + `}`

	opens := countUnescaped(text, open)
	closes := countUnescaped(text, close)

	switch {
	case opens > closes:
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		text += strings.Repeat(close+"\n", opens-closes)
	case closes > opens:
		text = dropOrphanCloses(text, open, close, closes-opens)
	}
	return text
}

// dropOrphanCloses removes n close markers that have no matching open before
// them, scanning left to right so the earliest orphans go first.
func dropOrphanCloses(text, open, close string, n int) string {
	var b strings.Builder
	b.Grow(len(text))

	depth := 0
	for i := 0; i < len(text); {
		switch {
		case strings.HasPrefix(text[i:], open):
			depth++
			b.WriteString(open)
			i += len(open)
		case strings.HasPrefix(text[i:], close):
			if depth == 0 && n > 0 {
				// orphan - drop it together with the rest of its line
				n--
				i += len(close)
				for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
					i++
				}
				if i < len(text) && text[i] == '\n' {
					i++
				}
				continue
			}
			if depth > 0 {
				depth--
			}
			b.WriteString(close)
			i += len(close)
		default:
			b.WriteByte(text[i])
			i++
		}
	}
	return b.String()
}

// closeBraces appends closing braces when non-escaped group depth ends above
// zero. Negative depth (stray closers) is out of scope for brace repair - the
// compiler reports it with a line number the retry engine can act on.
func closeBraces(text string) string {
	depth := 0
	escaped := false
	inComment := false
	for _, r := range text {
		if inComment {
			if r == '\n' {
				inComment = false
			}
			continue
		}
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '%':
			inComment = true
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		}
	}
	if depth > 0 {
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		text += strings.Repeat("}", depth) + "\n"
	}
	return text
}

func stripLeakedDirectives(text string) string {
	return leakedDirectiveRx.ReplaceAllString(text, "")
}

func stripPromptArtifacts(text string) string {
	for _, rx := range promptArtifactRxs {
		text = rx.ReplaceAllString(text, "")
	}
	return text
}

// countUnescaped counts occurrences of marker not preceded by a backslash.
func countUnescaped(text, marker string) int {
	count := 0
	for i := 0; ; {
		j := strings.Index(text[i:], marker)
		if j < 0 {
			break
		}
		pos := i + j
		if pos == 0 || text[pos-1] != '\\' {
			count++
		}
		i = pos + len(marker)
	}
	return count
}

// Balanced reports whether every known environment has matching open and
// close counts. Used by assembly to assert the fragment invariant.
func Balanced(text string) error {
	for _, env := range knownEnvironments {
		opens := countUnescaped(text, `\begin{`+env+`}`)
		closes := countUnescaped(text, `\end{`+env+`}`)
		if opens != closes {
			return fmt.Errorf("environment %s is unbalanced: %d opens, %d closes", env, opens, closes)
		}
	}
	return nil
}
