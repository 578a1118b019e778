package patch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConflict is the sentinel wrapped by every ConflictError. Callers use
// errors.Is(err, patch.ErrConflict) to decide whether the failure is
// recoverable by the model (corrected patch) or a bug.
var ErrConflict = errors.New("patch conflict")

// ConflictError reports which hunk could not be located and why. The original
// text is never modified when a ConflictError is returned.
type ConflictError struct {
	Path   string
	Hunk   int // zero-based index into Operation.Hunks
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("patch conflict in %s, hunk %d: %s", e.Path, e.Hunk+1, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Fuzz selects the degree of fuzzy matching attempted after an exact match
// fails. LLM-authored diffs routinely drift on leading/trailing whitespace.
type Fuzz int

const (
	// FuzzNone requires exact line matches.
	FuzzNone Fuzz = iota
	// FuzzWhitespace retries with both sides whitespace-trimmed per line.
	FuzzWhitespace
)

// Applier applies update operations to file text. The zero value uses
// whitespace fuzzing, the behavior observed from LLM diff application in the
// wild; property tests cover both settings.
type Applier struct {
	Fuzz Fuzz
}

// Apply runs every hunk of op against original and returns the new text.
// Hunks apply in order with a monotonically advancing cursor: each hunk's
// search starts after the end of the previous hunk's matched region, so
// out-of-order or overlapping hunks surface as conflicts rather than being
// silently resolved. All-or-nothing: on any conflict the returned text is
// empty and original is untouched.
func (a Applier) Apply(original string, op *Operation) (string, error) {
	if op.Kind != KindUpdate {
		return "", fmt.Errorf("apply: operation kind %q is not applicable to text", op.Kind)
	}

	trailingNewline := strings.HasSuffix(original, "\n") || original == ""
	lines := splitLines(original)

	cursor := 0
	for i := range op.Hunks {
		h := &op.Hunks[i]

		if h.Anchor != "" {
			idx := a.findBlock(lines, []string{h.Anchor}, cursor)
			if idx < 0 {
				return "", &ConflictError{Path: op.Path, Hunk: i, Reason: fmt.Sprintf("anchor %q not found", h.Anchor)}
			}
			cursor = idx + 1
		}

		match := h.matchBlock()
		repl := h.replacement()

		if len(match) == 0 {
			// Pure insertion at the anchor point (or at the cursor left by
			// the previous hunk; at the start of the file for hunk zero).
			lines = splice(lines, cursor, 0, repl)
			cursor += len(repl)
			continue
		}

		idx := a.findBlock(lines, match, cursor)
		if idx < 0 {
			return "", &ConflictError{Path: op.Path, Hunk: i, Reason: "context not found in file"}
		}
		lines = splice(lines, idx, len(match), repl)
		cursor = idx + len(repl)
	}

	result := strings.Join(lines, "\n")
	if trailingNewline && result != "" {
		result += "\n"
	}
	return result, nil
}

// Apply is the package-level convenience using the default Applier.
func Apply(original string, op *Operation) (string, error) {
	return Applier{Fuzz: FuzzWhitespace}.Apply(original, op)
}

// findBlock locates block in lines at or after from. Exact comparison over
// the whole search space first, then one fuzzy pass if enabled. Returns -1
// when the block cannot be found. A block at the very start or end of the
// file needs no surrounding context: the search space itself is bounded by
// the file boundaries.
func (a Applier) findBlock(lines, block []string, from int) int {
	if idx := scan(lines, block, from, func(a, b string) bool { return a == b }); idx >= 0 {
		return idx
	}
	if a.Fuzz == FuzzWhitespace {
		return scan(lines, block, from, func(a, b string) bool {
			return strings.TrimSpace(a) == strings.TrimSpace(b)
		})
	}
	return -1
}

func scan(lines, block []string, from int, eq func(a, b string) bool) int {
	for start := from; start+len(block) <= len(lines); start++ {
		matched := true
		for j := range block {
			if !eq(lines[start+j], block[j]) {
				matched = false
				break
			}
		}
		if matched {
			return start
		}
	}
	return -1
}

func splice(lines []string, at, del int, insert []string) []string {
	out := make([]string, 0, len(lines)-del+len(insert))
	out = append(out, lines[:at]...)
	out = append(out, insert...)
	out = append(out, lines[at+del:]...)
	return out
}

func splitLines(s string) []string {
	trimmed := strings.TrimSuffix(s, "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}
