package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"bookmill/book"
)

const (
	maxListEntries = 3
	neutralScore   = 7
	reviseBelow    = 8
)

// ReviewResult is a transient scoring object, produced fresh on every review
// call and never persisted.
type ReviewResult struct {
	MissingTopics []string `json:"missing_topics"`
	Redundancies  []string `json:"redundancies"`
	Removals      []string `json:"removal_candidates"`
	Score         int      `json:"score"`
	NeedsRevision bool     `json:"needs_revision"`
	Summary       string   `json:"summary"`
}

// NeedsSurgery reports whether the result asks for the revision pass.
func (r *ReviewResult) NeedsSurgery() bool {
	return r.NeedsRevision && r.Score < reviseBelow
}

// Parsed wraps a decoded oracle payload. Fallback set means the raw response
// held no usable JSON object and Value carries the safe default.
type Parsed[T any] struct {
	Value    T
	Fallback bool
}

// decodeOracle extracts the first top-level JSON object from raw and decodes
// it into a T. Prose or code fences around the object are tolerated.
func decodeOracle[T any](raw string, fallback T) Parsed[T] {
	obj, ok := firstJSONObject(raw)
	if !ok {
		return Parsed[T]{Value: fallback, Fallback: true}
	}
	var v T
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return Parsed[T]{Value: fallback, Fallback: true}
	}
	return Parsed[T]{Value: v}
}

// firstJSONObject returns the first balanced {...} span in s, tracking string
// literals so braces inside values do not end the scan early.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// Engine runs the quality review and the follow-up text surgery.
type Engine struct {
	oracle Oracle
	log    *zap.Logger
}

func NewEngine(oracle Oracle, log *zap.Logger) *Engine {
	return &Engine{oracle: oracle, log: log}
}

const reviewSystem = `You are a meticulous book editor. You respond with exactly one JSON object and nothing else.`

const reviewRubric = `Review the book draft below. Judge it on:
- completeness: does it cover what the title and topic promise,
- redundancy: repeated or overlapping passages,
- off-topic content,
- quality of the opening and the closing chapters,
- practical value for the reader.

Respond with one JSON object:
{"missing_topics": ["..."], "redundancies": ["..."], "removal_candidates": ["..."], "score": N, "needs_revision": true|false, "summary": "one line"}
where score is an integer from 1 (unusable) to 10 (excellent) and every
removal candidate starts with "Chapter N:" naming the chapter it occurs in.`

// Review scores the book once. An unreachable oracle is an error; a reachable
// oracle returning garbage degrades to the neutral default instead.
func (e *Engine) Review(ctx context.Context, meta *book.Meta, frags []book.Fragment) (*ReviewResult, error) {
	var prompt strings.Builder
	prompt.WriteString(reviewRubric)
	fmt.Fprintf(&prompt, "\n\nTitle: %s\nTopic: %s\n\n", meta.Title, meta.Topic)
	prompt.WriteString(Plainify(frags))

	raw, err := e.oracle.Complete(ctx, reviewSystem, prompt.String())
	if err != nil {
		return nil, fmt.Errorf("unable to obtain review: %w", err)
	}

	parsed := decodeOracle(raw, ReviewResult{Score: neutralScore})
	if parsed.Fallback {
		e.log.Warn("Review response had no usable JSON, using neutral result",
			zap.Int("response_len", len(raw)))
	}
	res := parsed.Value
	clampResult(&res)

	e.log.Info("Review complete",
		zap.Int("score", res.Score),
		zap.Bool("needs_revision", res.NeedsRevision),
		zap.String("summary", res.Summary))
	return &res, nil
}

func clampResult(r *ReviewResult) {
	if r.Score < 1 {
		r.Score = 1
	}
	if r.Score > 10 {
		r.Score = 10
	}
	if len(r.MissingTopics) > maxListEntries {
		r.MissingTopics = r.MissingTopics[:maxListEntries]
	}
	if len(r.Removals) > maxListEntries {
		r.Removals = r.Removals[:maxListEntries]
	}
}
