package compile

import (
	"regexp"
	"strconv"
	"strings"
)

// Fault signatures recognized in compiler logs, attempted in declaration
// order - first match wins. Each fix mutates the document source and reports
// what it did for logging.

type fix struct {
	name  string
	match *regexp.Regexp
	apply func(doc string, m []string) (string, bool)
}

var fixes = []fix{
	{
		// environment opened but never closed before the end of the document
		name:  "unclosed-environment",
		match: regexp.MustCompile(`\\begin\{([A-Za-z*]+)\}[^\n]*ended by \\end\{document\}`),
		apply: func(doc string, m []string) (string, bool) {
			env := m[1]
			idx := strings.LastIndex(doc, `\end{document}`)
			if idx < 0 {
				return doc, false
			}
			return doc[:idx] + `\end{` + env + "}\n" + doc[idx:], true
		},
	},
	{
		// open/close environment name mismatch
		name:  "environment-mismatch",
		match: regexp.MustCompile(`\\begin\{([A-Za-z*]+)\}[^\n]*ended by \\end\{([A-Za-z*]+)\}`),
		apply: func(doc string, m []string) (string, bool) {
			open, close := m[1], m[2]
			if close == "document" {
				// belongs to the unclosed-environment signature
				return doc, false
			}
			bad := `\end{` + close + `}`
			good := `\end{` + open + `}`
			if !strings.Contains(doc, bad) {
				return doc, false
			}
			return strings.Replace(doc, bad, good, 1), true
		},
	},
	{
		// undefined control sequence at a known line number
		name:  "undefined-control-sequence",
		match: regexp.MustCompile(`! Undefined control sequence\.[\s\S]{0,200}?\nl\.(\d+)`),
		apply: func(doc string, m []string) (string, bool) {
			line, err := strconv.Atoi(m[1])
			if err != nil {
				return doc, false
			}
			return commentOutLine(doc, line)
		},
	},
	{
		// empty open/close marker confuses the name parser
		name:  "missing-endcsname",
		match: regexp.MustCompile(`! Missing \\endcsname inserted\.`),
		apply: func(doc string, m []string) (string, bool) {
			return dropEmptyMarkerLines(doc)
		},
	},
}

// autoFix inspects the log tail and applies the first matching repair to the
// document text. Returns the possibly-changed document, the name of the
// applied fix and whether anything was changed.
func autoFix(doc, logTail string) (string, string, bool) {
	for _, f := range fixes {
		m := f.match.FindStringSubmatch(logTail)
		if m == nil {
			continue
		}
		if fixed, ok := f.apply(doc, m); ok {
			return fixed, f.name, true
		}
	}
	return doc, "", false
}

// commentOutLine disables only the offending 1-based line.
func commentOutLine(doc string, line int) (string, bool) {
	lines := strings.Split(doc, "\n")
	if line < 1 || line > len(lines) {
		return doc, false
	}
	if strings.HasPrefix(lines[line-1], "%") {
		// already disabled, the fault must be elsewhere
		return doc, false
	}
	lines[line-1] = "% " + lines[line-1]
	return strings.Join(lines, "\n"), true
}

func dropEmptyMarkerLines(doc string) (string, bool) {
	lines := strings.Split(doc, "\n")
	kept := lines[:0]
	dropped := 0
	for _, l := range lines {
		if strings.Contains(l, `\begin{}`) || strings.Contains(l, `\end{}`) {
			dropped++
			continue
		}
		kept = append(kept, l)
	}
	if dropped == 0 {
		return doc, false
	}
	return strings.Join(kept, "\n"), true
}

// tail returns at most n trailing bytes of s, starting at a line boundary
// when possible.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	t := s[len(s)-n:]
	if i := strings.IndexByte(t, '\n'); i >= 0 && i+1 < len(t) {
		t = t[i+1:]
	}
	return t
}
