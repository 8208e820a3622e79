package reader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MimeLyc/bintext-repacker/internal/codec"
	"github.com/MimeLyc/bintext-repacker/internal/table"
)

// MalformedEntryError reports a manifest span whose bytes do not parse
// into a well-formed token stream. It is fatal to that record only; the
// rest of the container keeps extracting.
type MalformedEntryError struct {
	ID     table.ID
	Offset int64
	Cause  error
}

func (e *MalformedEntryError) Error() string {
	return fmt.Sprintf("record %s at offset 0x%X: malformed entry: %v", e.ID, e.Offset, e.Cause)
}

func (e *MalformedEntryError) Unwrap() error { return e.Cause }

// Read decodes every confirmed entry span of one container into string
// records. A span's allocated length (fixed slot) or its pointer-table
// length (indirect slot) becomes the record's immutable byte budget.
// Per-entry failures are collected as MalformedEntryErrors; they never
// abort the container.
func Read(image []byte, m ContainerManifest) (*table.Table, []error) {
	t := table.NewTable()
	var errs []error
	index := 0

	for _, span := range m.Entries {
		if span.Candidate {
			continue
		}

		offset, length, err := m.ResolveSpan(image, span)
		if err != nil {
			errs = append(errs, &MalformedEntryError{
				ID:     table.ID{Container: m.ID, Index: index},
				Offset: span.Offset,
				Cause:  err,
			})
			index++
			continue
		}

		raw := image[offset : offset+int64(length)]

		if span.Terminator != "" {
			term := span.Terminator[0]
			for _, sub := range TerminatedRuns(raw, term) {
				id := table.ID{Container: m.ID, Index: index}
				index++
				rec, err := recordFromBytes(id, sub.Bytes, len(sub.Bytes), span.Context)
				if err != nil {
					errs = append(errs, &MalformedEntryError{ID: id, Offset: offset + int64(sub.Start), Cause: err})
					continue
				}
				t.Put(rec)
			}
			continue
		}

		id := table.ID{Container: m.ID, Index: index}
		index++
		content := bytes.TrimRight(raw, "\x00")
		rec, err := recordFromBytes(id, content, length, span.Context)
		if err != nil {
			errs = append(errs, &MalformedEntryError{ID: id, Offset: offset, Cause: err})
			continue
		}
		t.Put(rec)
	}

	return t, errs
}

// ReadFile loads the container image from disk and extracts it.
func ReadFile(root string, m ContainerManifest) (*table.Table, []byte, []error) {
	image, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(m.Path)))
	if err != nil {
		return nil, nil, []error{fmt.Errorf("container %s: %w", m.ID, err)}
	}
	t, errs := Read(image, m)
	return t, image, errs
}

// ResolveSpan turns an entry span into a concrete (offset, length)
// window into the image, following the pointer table for indirect
// slots.
func (m ContainerManifest) ResolveSpan(image []byte, span EntrySpan) (int64, int, error) {
	offset, length := span.Offset, span.Length

	if span.PointerIndex != nil {
		if m.PointerTable == nil {
			return 0, 0, fmt.Errorf("entry references pointer index %d but container has no pointer table", *span.PointerIndex)
		}
		var err error
		offset, length, err = m.PointerTable.EntryAt(image, *span.PointerIndex)
		if err != nil {
			return 0, 0, err
		}
	}

	if offset < 0 || length < 0 || offset+int64(length) > int64(len(image)) {
		return 0, 0, fmt.Errorf("span [%d,%d) outside image of %d bytes", offset, offset+int64(length), len(image))
	}
	return offset, length, nil
}

func recordFromBytes(id table.ID, content []byte, budget int, context string) (*table.StringRecord, error) {
	// Decode up front so malformed source bytes surface at extraction
	// time, not when a human is already editing the table.
	if _, err := codec.Decode(content); err != nil {
		return nil, err
	}
	return &table.StringRecord{
		ID:        id,
		Original:  append([]byte(nil), content...),
		SourceLen: budget,
		Context:   context,
	}, nil
}

// TerminatedRun is one terminator-delimited string inside a span.
// Start and End are byte positions relative to the span start; End is
// the terminator's position. Bytes is the run content with stray NULs
// stripped, so len(Bytes) can be less than End-Start.
type TerminatedRun struct {
	Start int
	End   int
	Bytes []byte
}

// TerminatedRuns cuts a span into terminator-delimited runs. The
// terminator only counts when it stands alone: 0x40 ('@') also appears
// as the trail byte of two-byte characters, so lead bytes always
// consume their trail byte first. NUL padding between runs is skipped.
func TerminatedRuns(raw []byte, term byte) []TerminatedRun {
	var runs []TerminatedRun
	pos := 0
	start := 0

	for pos < len(raw) {
		b := raw[pos]

		if isLeadByte(b) && pos+1 < len(raw) {
			pos += 2
			continue
		}

		if b == term {
			if pos > start {
				runs = append(runs, TerminatedRun{Start: start, End: pos, Bytes: stripNUL(raw[start:pos])})
			}
			pos++
			for pos < len(raw) && raw[pos] == 0x00 {
				pos++
			}
			start = pos
			continue
		}

		pos++
	}

	return runs
}

func isLeadByte(b byte) bool {
	return (b >= 0x81 && b <= 0x9F) || (b >= 0xE0 && b <= 0xFC)
}

// stripNUL drops stray NUL bytes that occasionally appear mid-string in
// the original tables.
func stripNUL(b []byte) []byte {
	if !bytes.ContainsRune(b, 0) {
		return append([]byte(nil), b...)
	}
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c != 0 {
			out = append(out, c)
		}
	}
	return out
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return os.Create(path)
}
