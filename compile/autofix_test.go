package compile

import (
	"strings"
	"testing"
)

const fixableDoc = `\documentclass{book}
\begin{document}
\chapter{One}
\badmacro{oops}
\begin{callout}
text
\end{quote}
\end{document}
`

func TestAutoFix_UnclosedEnvironment(t *testing.T) {
	log := `! LaTeX Error: \begin{callout} on input line 5 ended by \end{document}.`
	fixed, name, ok := autoFix(fixableDoc, log)
	if !ok || name != "unclosed-environment" {
		t.Fatalf("autoFix() = %q, %v", name, ok)
	}
	idx := strings.Index(fixed, `\end{callout}`)
	end := strings.Index(fixed, `\end{document}`)
	if idx < 0 || end < 0 || idx > end {
		t.Errorf("closer not inserted before \\end{document}:\n%s", fixed)
	}
}

func TestAutoFix_EnvironmentMismatch(t *testing.T) {
	log := `! LaTeX Error: \begin{callout} on input line 5 ended by \end{quote}.`
	fixed, name, ok := autoFix(fixableDoc, log)
	if !ok || name != "environment-mismatch" {
		t.Fatalf("autoFix() = %q, %v", name, ok)
	}
	if strings.Contains(fixed, `\end{quote}`) {
		t.Errorf("mismatched closer not rewritten:\n%s", fixed)
	}
	if !strings.Contains(fixed, `\end{callout}`) {
		t.Errorf("rewritten closer missing:\n%s", fixed)
	}
}

func TestAutoFix_UndefinedControlSequence(t *testing.T) {
	log := "! Undefined control sequence.\n<recently read> \\badmacro\n\nl.4 \\badmacro\n{oops}"
	fixed, name, ok := autoFix(fixableDoc, log)
	if !ok || name != "undefined-control-sequence" {
		t.Fatalf("autoFix() = %q, %v", name, ok)
	}
	if !strings.Contains(fixed, "% \\badmacro{oops}") {
		t.Errorf("offending line not commented out:\n%s", fixed)
	}
	// only that line may change
	if strings.Count(fixed, "\n% ") != 1 {
		t.Errorf("more than one line commented:\n%s", fixed)
	}
}

func TestAutoFix_MissingEndcsname(t *testing.T) {
	doc := "\\begin{document}\n\\begin{}\ntext\n\\end{}\n\\end{document}\n"
	log := `! Missing \endcsname inserted.`
	fixed, name, ok := autoFix(doc, log)
	if !ok || name != "missing-endcsname" {
		t.Fatalf("autoFix() = %q, %v", name, ok)
	}
	if strings.Contains(fixed, `\begin{}`) || strings.Contains(fixed, `\end{}`) {
		t.Errorf("empty markers survived:\n%s", fixed)
	}
	if !strings.Contains(fixed, "text") {
		t.Errorf("body line was dropped:\n%s", fixed)
	}
}

func TestAutoFix_FirstMatchWins(t *testing.T) {
	// log carries both an unclosed-environment and an undefined control
	// sequence fault - the earlier signature in the fixed order is applied
	log := "! Undefined control sequence.\nl.4 \\badmacro\n" +
		`! LaTeX Error: \begin{callout} on input line 5 ended by \end{document}.`
	_, name, ok := autoFix(fixableDoc, log)
	if !ok {
		t.Fatal("expected a fix to apply")
	}
	if name != "unclosed-environment" {
		t.Errorf("applied %q, want unclosed-environment to win", name)
	}
}

func TestAutoFix_NoSignature(t *testing.T) {
	if _, name, ok := autoFix(fixableDoc, "! Paragraph ended before \\@sect was complete."); ok {
		t.Errorf("unexpected fix %q for unknown signature", name)
	}
}

func TestAutoFix_MismatchWithDocumentDefersToUnclosed(t *testing.T) {
	// "ended by \end{document}" must never be treated as a name mismatch
	log := `! LaTeX Error: \begin{callout} on input line 5 ended by \end{document}.`
	_, name, _ := autoFix(fixableDoc, log)
	if name == "environment-mismatch" {
		t.Error("document epilogue treated as mismatched environment")
	}
}

func TestCommentOutLine_Bounds(t *testing.T) {
	doc := "one\ntwo\nthree"
	if _, ok := commentOutLine(doc, 0); ok {
		t.Error("line 0 must be rejected")
	}
	if _, ok := commentOutLine(doc, 4); ok {
		t.Error("line beyond end must be rejected")
	}
	fixed, ok := commentOutLine(doc, 2)
	if !ok || fixed != "one\n% two\nthree" {
		t.Errorf("commentOutLine = %q, %v", fixed, ok)
	}
	// already commented lines are not re-fixed
	if _, ok := commentOutLine(fixed, 2); ok {
		t.Error("commented line must not be fixed again")
	}
}

func TestTail(t *testing.T) {
	s := "line1\nline2\nline3\n"
	if got := tail(s, 1000); got != s {
		t.Errorf("tail with room = %q, want all", got)
	}
	got := tail(s, 8)
	if !strings.HasSuffix(s, got) {
		t.Errorf("tail %q is not a suffix", got)
	}
	if strings.Contains(got, "line2\nline3") && len(got) > 8 {
		t.Errorf("tail too long: %q", got)
	}
}
