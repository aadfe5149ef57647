package review

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"bookmill/book"
)

// maxChapterPrompt bounds how much of a chapter's text travels to the oracle
// when asking for removal anchors.
const maxChapterPrompt = 6000

type removalProposal struct {
	StartAnchor string `json:"start_anchor"`
	EndAnchor   string `json:"end_anchor"`
}

type insertionProposal struct {
	Chapter int    `json:"chapter"`
	Anchor  string `json:"anchor"`
	Content string `json:"content"`
}

const surgerySystem = `You are a precise book editor. You respond with exactly one JSON object and nothing else.`

// Revise applies the oracle-proposed edits for res: removals first, then
// insertions for the missing topics. Each proposal is validated against the
// live chapter text and silently skipped when it does not hold up. If at
// least one edit was applied the book is reviewed once more; the returned
// result is that final score, otherwise res itself. There is no further
// iteration.
func (e *Engine) Revise(ctx context.Context, meta *book.Meta, frags []book.Fragment, res *ReviewResult) (*ReviewResult, int, error) {
	if !res.NeedsSurgery() {
		return res, 0, nil
	}

	applied := 0
	for _, desc := range res.Removals {
		if e.removeOnce(ctx, frags, desc) {
			applied++
		}
	}
	for _, topic := range res.MissingTopics {
		if e.insertOnce(ctx, meta, frags, topic) {
			applied++
		}
	}

	if applied == 0 {
		e.log.Info("No edits survived validation, keeping original score")
		return res, 0, nil
	}

	final, err := e.Review(ctx, meta, frags)
	if err != nil {
		return nil, applied, fmt.Errorf("unable to re-review after edits: %w", err)
	}
	return final, applied, nil
}

// removeOnce asks the oracle for start/end anchors of one described passage
// and deletes the inclusive span when both anchors validate.
func (e *Engine) removeOnce(ctx context.Context, frags []book.Fragment, desc string) bool {
	chapter := chapterFromDescription(desc)
	idx := book.ByChapter(frags, chapter)
	if idx < 0 {
		e.log.Warn("Removal names no known chapter, skipping", zap.String("candidate", desc))
		return false
	}
	frag := &frags[idx]

	text := frag.Content
	if len(text) > maxChapterPrompt {
		text = text[:maxChapterPrompt]
	}
	prompt := fmt.Sprintf(`A reviewer flagged this passage as redundant:
%s

Below is the current text of chapter %d. Find the passage and respond with one JSON object:
{"start_anchor": "...", "end_anchor": "..."}
Both anchors must be short verbatim substrings copied exactly from the text, start before end.

%s`, desc, frag.Chapter, text)

	raw, err := e.oracle.Complete(ctx, surgerySystem, prompt)
	if err != nil {
		e.log.Warn("Removal request failed, skipping", zap.Error(err))
		return false
	}
	parsed := decodeOracle(raw, removalProposal{})
	if parsed.Fallback {
		e.log.Warn("Removal proposal had no usable JSON, skipping")
		return false
	}

	updated, ok := applyRemoval(frag.Content, parsed.Value.StartAnchor, parsed.Value.EndAnchor)
	if !ok {
		e.log.Warn("Removal anchors did not validate, skipping",
			zap.Int("chapter", frag.Chapter))
		return false
	}
	frag.Content = updated
	e.log.Info("Removed redundant passage", zap.Int("chapter", frag.Chapter))
	return true
}

// insertOnce asks the oracle where and what to add for one missing topic,
// given only a synopsis of the book to bound request size.
func (e *Engine) insertOnce(ctx context.Context, meta *book.Meta, frags []book.Fragment, topic string) bool {
	prompt := fmt.Sprintf(`The book "%s" is missing coverage of: %s

Here is its synopsis:
%s

Respond with one JSON object:
{"chapter": N, "anchor": "...", "content": "..."}
where anchor is a verbatim line from the chosen chapter after which the new content belongs, and content is ready-to-insert chapter text.`,
		meta.Title, topic, synopsis(frags))

	raw, err := e.oracle.Complete(ctx, surgerySystem, prompt)
	if err != nil {
		e.log.Warn("Insertion request failed, skipping", zap.Error(err))
		return false
	}
	parsed := decodeOracle(raw, insertionProposal{})
	if parsed.Fallback {
		e.log.Warn("Insertion proposal had no usable JSON, skipping")
		return false
	}
	proposal := parsed.Value
	if strings.TrimSpace(proposal.Content) == "" {
		e.log.Warn("Insertion proposal carries no content, skipping")
		return false
	}

	idx := book.ByChapter(frags, proposal.Chapter)
	if idx < 0 {
		e.log.Warn("Insertion targets unknown chapter, skipping",
			zap.Int("chapter", proposal.Chapter))
		return false
	}
	frag := &frags[idx]

	content := unescapeMarkers(proposal.Content)
	updated, atAnchor := applyInsertion(frag.Content, unescapeMarkers(proposal.Anchor), content)
	frag.Content = updated
	e.log.Info("Inserted new content",
		zap.Int("chapter", frag.Chapter),
		zap.Bool("at_anchor", atAnchor))
	return true
}

// applyRemoval deletes the inclusive span from the first occurrence of start
// through the end of the first occurrence of end. The end anchor must begin
// strictly after the start anchor begins; otherwise the text is unchanged.
func applyRemoval(text, start, end string) (string, bool) {
	if start == "" || end == "" {
		return text, false
	}
	startIdx := strings.Index(text, start)
	endIdx := strings.Index(text, end)
	if startIdx < 0 || endIdx < 0 || endIdx <= startIdx {
		return text, false
	}
	return text[:startIdx] + text[endIdx+len(end):], true
}

// applyInsertion splices content immediately after the anchor, or appends it
// to the chapter end when the anchor is absent. Accepted content is never
// dropped.
func applyInsertion(text, anchor, content string) (updated string, atAnchor bool) {
	if anchor != "" {
		if idx := strings.Index(text, anchor); idx >= 0 {
			cut := idx + len(anchor)
			return text[:cut] + "\n\n" + content + text[cut:], true
		}
	}
	return strings.TrimRight(text, "\n") + "\n\n" + content + "\n", false
}

// doubled backslashes before a letter are oracle over-escaping of structural
// markers, not intentional line breaks
var escapedMarker = regexp.MustCompile(`\\\\([A-Za-z])`)

func unescapeMarkers(s string) string {
	return escapedMarker.ReplaceAllString(s, `\$1`)
}

var chapterRef = regexp.MustCompile(`(?i)chapter\s+(\d{1,3})`)

// chapterFromDescription parses the chapter number a removal candidate names,
// or 0 when it names none.
func chapterFromDescription(desc string) int {
	m := chapterRef.FindStringSubmatch(desc)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// synopsis lists chapter titles and section headings, not full text.
func synopsis(frags []book.Fragment) string {
	var sb strings.Builder
	for _, frag := range book.Ready(frags) {
		fmt.Fprintf(&sb, "Chapter %d: %s\n", frag.Chapter, frag.Title)
		for _, line := range strings.Split(frag.Content, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, `\section{`) {
				fmt.Fprintf(&sb, "  - %s\n", plainInline(argOf(line, `\section`)))
			}
		}
	}
	return sb.String()
}
