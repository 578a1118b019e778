// Package note strips the assistant's out-of-band "note to self" annotation
// from reply text before it is shown to the user. The note itself is kept as
// conversation memory by the caller; extraction here is pure.
package note

import "strings"

// Marker opens a note block; the block runs to the next closing bracket.
// The note body must not itself contain ']'.
const (
	Marker  = "[NOTE TO SELF:"
	closing = "]"
)

// Extract returns the user-visible text and, when present, the note body.
// Only the last marker occurrence is treated as the note; earlier ones stay
// embedded in the visible text verbatim. An unterminated marker is not a
// note: the full text comes back unmodified (trimmed) with found=false.
func Extract(text string) (visible, note string, found bool) {
	start, end, ok := Span(text)
	if !ok {
		return strings.TrimSpace(text), "", false
	}

	note = strings.TrimSpace(text[start+len(Marker) : end-len(closing)])
	visible = strings.TrimSpace(text[:start] + text[end:])
	return visible, note, true
}

// Span returns the byte range [start, end) of the last complete note block,
// closing bracket included. Callers use it to scrub the note from other
// renderings of the same text, such as the streamed delta log.
func Span(text string) (start, end int, ok bool) {
	start = strings.LastIndex(text, Marker)
	if start < 0 {
		return 0, 0, false
	}

	bodyStart := start + len(Marker)
	idx := strings.Index(text[bodyStart:], closing)
	if idx < 0 {
		return 0, 0, false
	}
	return start, bodyStart + idx + len(closing), true
}
