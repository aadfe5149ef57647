package sanitize

import (
	"strings"
	"testing"
)

func TestFragment_AppendsMissingClosers(t *testing.T) {
	in := `\begin{tipbox}
Remember to hydrate.
\begin{itemize}
\item water
`
	out := Fragment(in)
	if err := Balanced(out); err != nil {
		t.Fatalf("result not balanced: %v", err)
	}
	if !strings.Contains(out, `\end{itemize}`) || !strings.Contains(out, `\end{tipbox}`) {
		t.Errorf("missing closers were not appended:\n%s", out)
	}
}

func TestFragment_StripsOrphanedClosers(t *testing.T) {
	in := `\end{quote}
Some paragraph.
\begin{quote}
quoted
\end{quote}
`
	out := Fragment(in)
	if err := Balanced(out); err != nil {
		t.Fatalf("result not balanced: %v", err)
	}
	if got := strings.Count(out, `\end{quote}`); got != 1 {
		t.Errorf("want exactly 1 close marker, got %d:\n%s", got, out)
	}
	// the earliest orphan goes, the matched pair stays
	if !strings.Contains(out, "\\begin{quote}\nquoted\n\\end{quote}") {
		t.Errorf("matched pair was damaged:\n%s", out)
	}
}

func TestFragment_ClosesBraces(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"single", `\textbf{bold text`},
		{"nested", `\section{One \emph{two`},
		{"escaped ignored", `money: \$5 \{literal brace and \textbf{open`},
		{"comment ignored", "line % comment with { braces {\nnext"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Fragment(tt.in)
			if depth := braceDepth(out); depth != 0 {
				t.Errorf("brace depth after sanitize = %d:\n%s", depth, out)
			}
		})
	}
}

func TestFragment_StripsLeakedPreamble(t *testing.T) {
	in := `\documentclass[11pt]{book}
\usepackage{geometry}
\begin{document}
Actual chapter text.
\tableofcontents
\end{document}
`
	out := Fragment(in)
	for _, bad := range []string{`\documentclass`, `\usepackage`, `\begin{document}`, `\end{document}`, `\tableofcontents`} {
		if strings.Contains(out, bad) {
			t.Errorf("leaked directive %s survived sanitization:\n%s", bad, out)
		}
	}
	if !strings.Contains(out, "Actual chapter text.") {
		t.Errorf("body text was damaged:\n%s", out)
	}
}

func TestFragment_StripsMidChapterDocumentMarkers(t *testing.T) {
	// a stray \end{document} would terminate the assembled book right there
	in := "Intro text.\n\\end{document}\nMore text.\n\\begin{document}\n"
	out := Fragment(in)
	if strings.Contains(out, `\end{document}`) || strings.Contains(out, `\begin{document}`) {
		t.Errorf("document marker survived sanitization:\n%s", out)
	}
	for _, keep := range []string{"Intro text.", "More text."} {
		if !strings.Contains(out, keep) {
			t.Errorf("body text %q was damaged:\n%s", keep, out)
		}
	}
}

func TestFragment_StripsPromptArtifacts(t *testing.T) {
	in := `Checklist:
Begin output now:
Real first paragraph.
\begin{}
End of chapter
`
	out := Fragment(in)
	if strings.Contains(strings.ToLower(out), "checklist") {
		t.Errorf("checklist header survived:\n%s", out)
	}
	if strings.Contains(strings.ToLower(out), "begin output now") {
		t.Errorf("instruction echo survived:\n%s", out)
	}
	if strings.Contains(out, `\begin{}`) {
		t.Errorf("empty block marker survived:\n%s", out)
	}
	if !strings.Contains(out, "Real first paragraph.") {
		t.Errorf("body text was damaged:\n%s", out)
	}
}

func TestFragment_CollapsesBlankRuns(t *testing.T) {
	in := "para one\n\n\n\n\n\npara two\n"
	out := Fragment(in)
	if strings.Contains(out, "\n\n\n\n") {
		t.Errorf("blank run survived:\n%q", out)
	}
	if !strings.Contains(out, "para one") || !strings.Contains(out, "para two") {
		t.Errorf("paragraphs were damaged:\n%q", out)
	}
}

func TestFragment_Idempotent(t *testing.T) {
	inputs := []string{
		"\\begin{warningbox}\nunclosed",
		"\\end{itemize}\nstray close",
		"\\textbf{unclosed brace",
		"a\n\n\n\n\n\nb",
		"\\documentclass{book}\ntext",
		"already { fine } text\n\\begin{quote}\nq\n\\end{quote}\n",
	}
	for _, in := range inputs {
		once := Fragment(in)
		twice := Fragment(once)
		if once != twice {
			t.Errorf("sanitization is not idempotent for %q:\nonce:  %q\ntwice: %q", in, once, twice)
		}
	}
}

func TestFragment_CleanInputUntouched(t *testing.T) {
	in := "\\section{Intro}\n\nA perfectly fine paragraph with \\emph{markup}.\n\n\\begin{itemize}\n\\item one\n\\item two\n\\end{itemize}\n"
	if out := Fragment(in); out != in {
		t.Errorf("clean fragment was modified:\nin:  %q\nout: %q", in, out)
	}
}

func TestFragment_UnknownDefectsPassThrough(t *testing.T) {
	// an unknown environment stays untouched even when unbalanced
	in := "\\begin{weirdcustom}\nnever closed\n"
	out := Fragment(in)
	if !strings.Contains(out, `\begin{weirdcustom}`) {
		t.Errorf("unknown environment was altered:\n%s", out)
	}
	if strings.Contains(out, `\end{weirdcustom}`) {
		t.Errorf("sanitizer invented a closer for unknown environment:\n%s", out)
	}
}

// braceDepth mirrors the scanner in closeBraces for verification.
func braceDepth(text string) int {
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
	return depth
}
