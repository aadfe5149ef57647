package review

import (
	"fmt"
	"strings"

	"bookmill/book"
)

// boxy environments whose body adds nothing to a quality review.
var compressedEnvs = map[string]string{
	"table":     "table",
	"tabular":   "table",
	"longtable": "table",
	"figure":    "figure",
}

// Plainify reduces chapter markup to a review-friendly text form: sectioning
// commands become hash headings, box and table bodies collapse to short
// placeholders, styling commands keep only their visible text.
func Plainify(frags []book.Fragment) string {
	var sb strings.Builder
	for _, frag := range book.Ready(frags) {
		fmt.Fprintf(&sb, "=== Chapter %d: %s ===\n", frag.Chapter, frag.Title)
		sb.WriteString(plainifyChapter(frag.Content))
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

func plainifyChapter(text string) string {
	var out []string
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "" || strings.HasPrefix(line, "%"):
			out = append(out, "")
		case strings.HasPrefix(line, `\chapter{`):
			out = append(out, "# "+plainInline(argOf(line, `\chapter`)))
		case strings.HasPrefix(line, `\section{`):
			out = append(out, "## "+plainInline(argOf(line, `\section`)))
		case strings.HasPrefix(line, `\subsection{`):
			out = append(out, "### "+plainInline(argOf(line, `\subsection`)))
		case strings.HasPrefix(line, `\begin{`):
			env := strings.TrimPrefix(line, `\begin{`)
			if end := strings.Index(env, "}"); end >= 0 {
				env = env[:end]
			}
			if placeholder, ok := compressedEnvs[env]; ok {
				out = append(out, "["+placeholder+"]")
				i = skipEnv(lines, i, env)
				continue
			}
			if rest := strings.TrimSpace(strings.TrimPrefix(line, `\begin{`+env+`}`)); rest != "" {
				out = append(out, "["+env+"] "+plainInline(rest))
			} else {
				out = append(out, "["+env+"]")
			}
		case strings.HasPrefix(line, `\end{`):
			out = append(out, "[/end]")
		case strings.HasPrefix(line, `\item`):
			out = append(out, "- "+plainInline(strings.TrimSpace(strings.TrimPrefix(line, `\item`))))
		default:
			out = append(out, plainInline(line))
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// skipEnv returns the index of the line closing the environment opened at
// start, honoring nesting of the same name.
func skipEnv(lines []string, start int, env string) int {
	open := `\begin{` + env + `}`
	closer := `\end{` + env + `}`
	depth := 1
	for i := start + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, open) {
			depth++
		} else if strings.HasPrefix(line, closer) {
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(lines) - 1
}

func argOf(line, cmd string) string {
	rest := strings.TrimPrefix(line, cmd+"{")
	if end := strings.LastIndex(rest, "}"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

// plainInline drops commands but keeps their visible argument text.
func plainInline(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\\':
			if i+1 >= len(s) {
				i++
				continue
			}
			if next := s[i+1]; next < 'A' || next > 'z' || (next > 'Z' && next < 'a') {
				sb.WriteByte(next)
				i += 2
				continue
			}
			i++
			for i < len(s) && (s[i] >= 'a' && s[i] <= 'z' || s[i] >= 'A' && s[i] <= 'Z') {
				i++
			}
		case c == '{' || c == '}':
			i++
		case c == '~':
			sb.WriteByte(' ')
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return strings.TrimSpace(sb.String())
}
