// Package patch implements the context-anchored patch format used by the
// edit session engine: parsing, application, and construction from a
// before/after pair. Application is a pure text transformation with no I/O;
// callers read the file, apply, and write the result back themselves.
package patch

import (
	"fmt"
	"strings"
)

// Kind distinguishes the three file-level operations a patch can describe.
type Kind string

const (
	KindUpdate Kind = "update"
	KindAdd    Kind = "add"
	KindDelete Kind = "delete"
)

// LineKind tags one body line within a hunk.
type LineKind byte

const (
	LineContext  LineKind = ' '
	LineDeletion LineKind = '-'
	LineAddition LineKind = '+'
)

// Line is a single prefixed line inside a hunk body.
type Line struct {
	Kind LineKind
	Text string
}

// Hunk is one contiguous match-and-replace unit. The match block is the
// in-order sequence of context and deletion lines; the replacement is the
// in-order sequence of context and addition lines. An optional anchor line
// positions the search without being part of the replaced region.
type Hunk struct {
	Anchor string
	Lines  []Line
}

// matchBlock returns the lines that must be found in the current file text.
func (h *Hunk) matchBlock() []string {
	var out []string
	for _, l := range h.Lines {
		if l.Kind == LineContext || l.Kind == LineDeletion {
			out = append(out, l.Text)
		}
	}
	return out
}

// replacement returns the lines spliced in at the matched position.
func (h *Hunk) replacement() []string {
	var out []string
	for _, l := range h.Lines {
		if l.Kind == LineContext || l.Kind == LineAddition {
			out = append(out, l.Text)
		}
	}
	return out
}

// Operation is a parsed patch against a single file. Ephemeral: constructed,
// applied, and discarded per tool call.
type Operation struct {
	Kind  Kind
	Path  string
	Hunks []Hunk
}

// Content joins the addition lines of an add-file operation into the new
// file's content. Only meaningful for KindAdd.
func (op *Operation) Content() string {
	var sb strings.Builder
	for i := range op.Hunks {
		for _, l := range op.Hunks[i].Lines {
			if l.Kind == LineAddition {
				sb.WriteString(l.Text)
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String()
}

// File header prefixes of the patch format.
const (
	headerUpdate = "*** Update File: "
	headerAdd    = "*** Add File: "
	headerDelete = "*** Delete File: "
	hunkMarker   = "@@"
)

// Parse reads the patch text format:
//
//	*** Update File: path/to/file
//	@@ optional anchor line
//	 context line
//	-deleted line
//	+added line
//
// Add File bodies carry only '+' lines; Delete File has no body.
func Parse(text string) (*Operation, error) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")

	// Skip leading blank lines.
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i == len(lines) {
		return nil, fmt.Errorf("parse patch: empty input")
	}

	op := &Operation{}
	switch header := lines[i]; {
	case strings.HasPrefix(header, headerUpdate):
		op.Kind = KindUpdate
		op.Path = strings.TrimSpace(strings.TrimPrefix(header, headerUpdate))
	case strings.HasPrefix(header, headerAdd):
		op.Kind = KindAdd
		op.Path = strings.TrimSpace(strings.TrimPrefix(header, headerAdd))
	case strings.HasPrefix(header, headerDelete):
		op.Kind = KindDelete
		op.Path = strings.TrimSpace(strings.TrimPrefix(header, headerDelete))
	default:
		return nil, fmt.Errorf("parse patch: missing file header, got %q", header)
	}
	if op.Path == "" {
		return nil, fmt.Errorf("parse patch: empty file path")
	}
	i++

	if op.Kind == KindDelete {
		for ; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) != "" {
				return nil, fmt.Errorf("parse patch: delete file carries a body")
			}
		}
		return op, nil
	}

	var current *Hunk
	for ; i < len(lines); i++ {
		line := lines[i]
		if strings.HasPrefix(line, hunkMarker) {
			anchor := strings.TrimPrefix(line, hunkMarker)
			anchor = strings.TrimPrefix(anchor, " ")
			op.Hunks = append(op.Hunks, Hunk{Anchor: anchor})
			current = &op.Hunks[len(op.Hunks)-1]
			continue
		}
		if current == nil {
			// Add File bodies may omit the @@ marker entirely.
			if op.Kind == KindAdd {
				op.Hunks = append(op.Hunks, Hunk{})
				current = &op.Hunks[0]
			} else {
				return nil, fmt.Errorf("parse patch: body line before first @@ marker")
			}
		}
		switch {
		case line == "":
			current.Lines = append(current.Lines, Line{Kind: LineContext})
		case line[0] == '+':
			current.Lines = append(current.Lines, Line{Kind: LineAddition, Text: line[1:]})
		case line[0] == '-':
			current.Lines = append(current.Lines, Line{Kind: LineDeletion, Text: line[1:]})
		case line[0] == ' ':
			current.Lines = append(current.Lines, Line{Kind: LineContext, Text: line[1:]})
		default:
			return nil, fmt.Errorf("parse patch: line %d has no ' ', '+' or '-' prefix", i+1)
		}
	}

	if op.Kind == KindAdd {
		for h := range op.Hunks {
			for _, l := range op.Hunks[h].Lines {
				if l.Kind == LineDeletion {
					return nil, fmt.Errorf("parse patch: add file carries deletion lines")
				}
			}
		}
	}
	if len(op.Hunks) == 0 {
		return nil, fmt.Errorf("parse patch: no hunks")
	}
	return op, nil
}
