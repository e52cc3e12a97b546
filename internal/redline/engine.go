// Package redline applies ordered batches of text edits. The engine is pure:
// it takes a text and a batch, returns the new text, and touches nothing
// else. All position arithmetic is in bytes.
package redline

import (
	"sort"
	"strings"
)

// Kind discriminates the two edit variants.
type Kind int

const (
	// KindRange replaces the half-open byte range [Start, End).
	KindRange Kind = iota
	// KindTarget replaces the Occurrence-th left-to-right match of Target.
	KindTarget
)

// Edit is a single replacement, addressed either by character range or by
// the Nth occurrence of a target substring. Occurrence is 1-indexed.
type Edit struct {
	Kind        Kind   `json:"kind"`
	Start       int    `json:"start,omitempty"`
	End         int    `json:"end,omitempty"`
	Target      string `json:"target,omitempty"`
	Occurrence  int    `json:"occurrence,omitempty"`
	Replacement string `json:"replacement"`
}

// NewRangeEdit builds a range edit.
func NewRangeEdit(start, end int, replacement string) Edit {
	return Edit{Kind: KindRange, Start: start, End: end, Replacement: replacement}
}

// NewTargetEdit builds a target edit.
func NewTargetEdit(target string, occurrence int, replacement string) Edit {
	return Edit{Kind: KindTarget, Target: target, Occurrence: occurrence, Replacement: replacement}
}

type resolved struct {
	pos         int
	length      int
	replacement string
}

// Apply applies a batch of edits to text and returns the result.
//
// Every edit's position is resolved against the original, unmodified text.
// Invalid edits (occurrence < 1, missing Nth match, out-of-bounds range) are
// dropped as no-ops; they never abort the batch. Valid edits are sorted
// ascending by position, stable on batch order, then applied in descending
// position order so each remaining edit's offsets into the untouched left
// portion stay valid while later edits mutate the suffix. Overlapping edits
// are not rejected; they apply in that processing order, and a span that a
// prior application shortened out from under an edit is clamped rather than
// erroring.
//
// An empty batch is the identity transform.
func Apply(text string, edits []Edit) string {
	batch := make([]resolved, 0, len(edits))
	for _, e := range edits {
		if r, ok := resolve(text, e); ok {
			batch = append(batch, r)
		}
	}

	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].pos < batch[j].pos
	})

	out := text
	for i := len(batch) - 1; i >= 0; i-- {
		out = splice(out, batch[i])
	}
	return out
}

func resolve(text string, e Edit) (resolved, bool) {
	switch e.Kind {
	case KindRange:
		if e.Start < 0 || e.End > len(text) || e.Start > e.End {
			return resolved{}, false
		}
		return resolved{pos: e.Start, length: e.End - e.Start, replacement: e.Replacement}, true
	case KindTarget:
		pos := findOccurrence(text, e.Target, e.Occurrence)
		if pos < 0 {
			return resolved{}, false
		}
		return resolved{pos: pos, length: len(e.Target), replacement: e.Replacement}, true
	default:
		return resolved{}, false
	}
}

// findOccurrence returns the byte offset of the n-th (1-indexed) match of
// target scanning left to right, or -1. The scan resumes one byte past each
// match start, so matches may overlap.
func findOccurrence(text, target string, n int) int {
	if n < 1 {
		return -1
	}
	start := 0
	pos := -1
	for i := 0; i < n; i++ {
		if start > len(text) {
			return -1
		}
		idx := strings.Index(text[start:], target)
		if idx < 0 {
			return -1
		}
		pos = start + idx
		start = pos + 1
	}
	return pos
}

// splice replaces r's span in text, clamping the span to the current length.
func splice(text string, r resolved) string {
	start := r.pos
	if start > len(text) {
		start = len(text)
	}
	end := r.pos + r.length
	if end > len(text) {
		end = len(text)
	}
	return text[:start] + r.replacement + text[end:]
}
