package patch

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// contextLines is the number of unchanged lines kept around each change when
// building an Operation from a before/after pair.
const contextLines = 2

// Stats are the line counts of a change, used for edit-summary events.
type Stats struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// DiffStats returns the number of added and removed lines between two texts.
func DiffStats(before, after string) Stats {
	var st Stats
	for _, l := range diffLines(before, after) {
		switch l.Kind {
		case LineAddition:
			st.Added++
		case LineDeletion:
			st.Removed++
		}
	}
	return st
}

// Diff builds an update Operation whose hunks transform before into after.
// Applying the result to before reproduces after exactly (the round-trip
// property), provided the context blocks are unambiguous within their
// search windows.
func Diff(path, before, after string) *Operation {
	lines := diffLines(before, after)
	op := &Operation{Kind: KindUpdate, Path: path}

	// Group changed lines into hunks, keeping contextLines of context on
	// each side and splitting where more than 2*contextLines of unchanged
	// text separates two changes.
	i := 0
	for i < len(lines) {
		if lines[i].Kind == LineContext {
			i++
			continue
		}
		start := max(0, i-contextLines)
		// Walk forward until the gap to the next change exceeds the window.
		end := i
		run := 0
		for j := i; j < len(lines); j++ {
			if lines[j].Kind == LineContext {
				run++
				if run > 2*contextLines {
					break
				}
			} else {
				run = 0
				end = j
			}
		}
		stop := min(len(lines), end+1+contextLines)
		op.Hunks = append(op.Hunks, Hunk{Lines: append([]Line(nil), lines[start:stop]...)})
		i = stop
	}
	return op
}

// diffLines produces a flat line-tagged diff via diffmatchpatch's line-mode
// pass (chars trick keeps it O(lines) instead of O(chars)).
func diffLines(before, after string) []Line {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var out []Line
	for _, d := range diffs {
		chunk := strings.Split(d.Text, "\n")
		if len(chunk) > 0 && chunk[len(chunk)-1] == "" {
			chunk = chunk[:len(chunk)-1]
		}
		for _, text := range chunk {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				out = append(out, Line{Kind: LineContext, Text: text})
			case diffmatchpatch.DiffDelete:
				out = append(out, Line{Kind: LineDeletion, Text: text})
			case diffmatchpatch.DiffInsert:
				out = append(out, Line{Kind: LineAddition, Text: text})
			}
		}
	}
	return out
}
