package review

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestApplyRemoval(t *testing.T) {
	text := "keep one REMOVE this whole span END keep two"

	got, ok := applyRemoval(text, "REMOVE", "END")
	if !ok {
		t.Fatal("valid removal was rejected")
	}
	if got != "keep one  keep two" {
		t.Errorf("removal result = %q", got)
	}

	// end anchor before start anchor: skip, text unchanged
	got, ok = applyRemoval(text, "END", "REMOVE")
	if ok || got != text {
		t.Errorf("inverted anchors must leave text unchanged, got %q, %v", got, ok)
	}

	// missing anchors: skip
	if got, ok := applyRemoval(text, "absent", "END"); ok || got != text {
		t.Error("missing start anchor must be a no-op")
	}
	if got, ok := applyRemoval(text, "", "END"); ok || got != text {
		t.Error("empty start anchor must be a no-op")
	}
}

func TestApplyInsertion_AtAnchor(t *testing.T) {
	text := "before the anchor here and after"

	got, atAnchor := applyInsertion(text, "anchor here", "NEW")
	if !atAnchor {
		t.Fatal("present anchor was not found")
	}
	// everything outside the insertion point is untouched
	if !strings.HasPrefix(got, "before the anchor here") || !strings.HasSuffix(got, " and after") {
		t.Errorf("insertion disturbed surrounding text: %q", got)
	}
	if !strings.Contains(got, "anchor here\n\nNEW") {
		t.Errorf("content not spliced after anchor: %q", got)
	}
}

func TestApplyInsertion_AbsentAnchorAppends(t *testing.T) {
	text := "chapter text\n"
	got, atAnchor := applyInsertion(text, "no such line", "NEW")
	if atAnchor {
		t.Fatal("absent anchor reported as found")
	}
	if !strings.HasSuffix(got, "\n\nNEW\n") {
		t.Errorf("content not appended at chapter end: %q", got)
	}
	if !strings.HasPrefix(got, "chapter text") {
		t.Errorf("existing text disturbed: %q", got)
	}
}

func TestUnescapeMarkers(t *testing.T) {
	if got := unescapeMarkers(`\\section{More}`); got != `\section{More}` {
		t.Errorf("unescapeMarkers = %q", got)
	}
	// a double backslash not followed by a letter is a line break, keep it
	if got := unescapeMarkers("row \\\\\n"); got != "row \\\\\n" {
		t.Errorf("line break was mangled: %q", got)
	}
}

func TestChapterFromDescription(t *testing.T) {
	if got := chapterFromDescription("Chapter 3: the intro repeats itself"); got != 3 {
		t.Errorf("chapter = %d, want 3", got)
	}
	if got := chapterFromDescription("somewhere in the middle"); got != 0 {
		t.Errorf("chapter = %d, want 0 for unnamed", got)
	}
}

func TestRevise_NotNeeded(t *testing.T) {
	oracle := &scriptedOracle{}
	engine := NewEngine(oracle, zaptest.NewLogger(t))
	meta, frags := testBook()

	res := &ReviewResult{Score: 8, NeedsRevision: true}
	final, applied, err := engine.Revise(context.Background(), meta, frags, res)
	if err != nil {
		t.Fatalf("Revise() error = %v", err)
	}
	if applied != 0 || final != res {
		t.Error("revision ran despite score at threshold")
	}
	if len(oracle.prompts) != 0 {
		t.Error("oracle was consulted for a book that needs no surgery")
	}
}

func TestRevise_RemovalThenReReview(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"start_anchor": "Test your", "end_anchor": "planting."}`,
		`{"missing_topics": [], "redundancies": [], "removal_candidates": [], "score": 9, "needs_revision": false, "summary": "better"}`,
	}}
	engine := NewEngine(oracle, zaptest.NewLogger(t))
	meta, frags := testBook()

	res := &ReviewResult{
		Score:         5,
		NeedsRevision: true,
		Removals:      []string{"Chapter 1: soil testing advice is repeated"},
	}
	final, applied, err := engine.Revise(context.Background(), meta, frags, res)
	if err != nil {
		t.Fatalf("Revise() error = %v", err)
	}
	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}
	if strings.Contains(frags[0].Content, "Test your soil") {
		t.Error("flagged span is still present")
	}
	if !strings.Contains(frags[0].Content, "Good soil is the foundation.") {
		t.Error("text outside the span was disturbed")
	}
	if final.Score != 9 {
		t.Errorf("final score = %d, want the re-review score", final.Score)
	}
	// one removal call plus one re-review
	if len(oracle.prompts) != 2 {
		t.Errorf("oracle calls = %d, want 2", len(oracle.prompts))
	}
}

func TestRevise_InvalidProposalSkippedWithoutReReview(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"start_anchor": "not in the text", "end_anchor": "also absent"}`,
	}}
	engine := NewEngine(oracle, zaptest.NewLogger(t))
	meta, frags := testBook()
	before := frags[0].Content

	res := &ReviewResult{
		Score:         5,
		NeedsRevision: true,
		Removals:      []string{"Chapter 1: something"},
	}
	final, applied, err := engine.Revise(context.Background(), meta, frags, res)
	if err != nil {
		t.Fatalf("Revise() error = %v", err)
	}
	if applied != 0 {
		t.Errorf("applied = %d, want 0", applied)
	}
	if frags[0].Content != before {
		t.Error("invalid proposal corrupted chapter text")
	}
	if final != res {
		t.Error("final score must equal the original when nothing was applied")
	}
	if len(oracle.prompts) != 1 {
		t.Errorf("oracle calls = %d, want 1 (no re-review)", len(oracle.prompts))
	}
}

func TestRevise_InsertionWithSynopsisPrompt(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"chapter": 2, "anchor": "Pick varieties suited to your climate.", "content": "\\section{Watering}\n\nWater deeply once a week."}`,
		`{"missing_topics": [], "redundancies": [], "removal_candidates": [], "score": 8, "needs_revision": false, "summary": "complete"}`,
	}}
	engine := NewEngine(oracle, zaptest.NewLogger(t))
	meta, frags := testBook()

	res := &ReviewResult{
		Score:         6,
		NeedsRevision: true,
		MissingTopics: []string{"watering"},
	}
	final, applied, err := engine.Revise(context.Background(), meta, frags, res)
	if err != nil {
		t.Fatalf("Revise() error = %v", err)
	}
	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}
	if !strings.Contains(frags[0].Content, "foundation") {
		t.Error("untargeted chapter was disturbed")
	}
	if !strings.Contains(frags[1].Content, "climate.\n\n\\section{Watering}") {
		t.Errorf("content not spliced after anchor:\n%s", frags[1].Content)
	}
	if final.Score != 8 {
		t.Errorf("final score = %d, want 8", final.Score)
	}

	// the insertion prompt carries the synopsis, not full chapter text
	prompt := oracle.prompts[0]
	if !strings.Contains(prompt, "Chapter 2: Seeds") || !strings.Contains(prompt, "Choosing varieties") {
		t.Error("synopsis missing from the insertion prompt")
	}
	if strings.Contains(prompt, "foundation") {
		t.Error("full chapter text leaked into the insertion prompt")
	}
}

func TestRevise_InsertionUnknownChapterAppliesNothing(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"chapter": 42, "anchor": "x", "content": "y"}`,
	}}
	engine := NewEngine(oracle, zaptest.NewLogger(t))
	meta, frags := testBook()

	res := &ReviewResult{Score: 5, NeedsRevision: true, MissingTopics: []string{"t"}}
	_, applied, err := engine.Revise(context.Background(), meta, frags, res)
	if err != nil {
		t.Fatalf("Revise() error = %v", err)
	}
	if applied != 0 {
		t.Errorf("applied = %d, want 0", applied)
	}
}
