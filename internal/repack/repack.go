// Package repack writes finalized translations back into their binary
// containers. Patching is all-or-nothing per container: any fatal error
// leaves the original image untouched.
package repack

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/MimeLyc/bintext-repacker/internal/codec"
	"github.com/MimeLyc/bintext-repacker/internal/layout"
	"github.com/MimeLyc/bintext-repacker/internal/reader"
	"github.com/MimeLyc/bintext-repacker/internal/table"
	"github.com/MimeLyc/bintext-repacker/pkg/log"
)

// ContainerOverflowError reports a translation that cannot physically
// fit the slot it must occupy. It aborts the whole container.
type ContainerOverflowError struct {
	ID      table.ID
	SlotLen int
	Needed  int
}

func (e *ContainerOverflowError) Error() string {
	return fmt.Sprintf("record %s: encoded translation needs %d bytes but the slot holds %d", e.ID, e.Needed, e.SlotLen)
}

// PointerTableError reports a pointer table that would be corrupt after
// patching: entries out of bounds, overlapping, or unrepresentable in
// the table's field widths. It aborts the whole container.
type PointerTableError struct {
	Container string
	Cause     error
}

func (e *PointerTableError) Error() string {
	return fmt.Sprintf("container %s: pointer table: %v", e.Container, e.Cause)
}

func (e *PointerTableError) Unwrap() error { return e.Cause }

// Container is the Load -> Patch -> Write unit of repacking. Load takes
// an image snapshot, Patch builds a patched copy, Write hands the
// result out. A failed Patch pins the container to its original bytes.
type Container struct {
	Manifest reader.ContainerManifest

	original []byte
	working  []byte
	patched  bool
	failed   error
}

// Load snapshots a container image for patching.
func Load(image []byte, m reader.ContainerManifest) *Container {
	return &Container{
		Manifest: m,
		original: append([]byte(nil), image...),
	}
}

// LoadFile loads a container image from disk.
func LoadFile(root string, m reader.ContainerManifest) (*Container, error) {
	image, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(m.Path)))
	if err != nil {
		return nil, fmt.Errorf("container %s: %w", m.ID, err)
	}
	return Load(image, m), nil
}

// Patch writes every translated record of this container into a copy of
// the image. Untranslated records pass through byte-exact. The first
// fatal error (overflow, pointer corruption) aborts and the container
// reverts to its original bytes.
func (c *Container) Patch(t *table.Table) error {
	if c.failed != nil {
		return c.failed
	}

	c.working = append([]byte(nil), c.original...)
	index := 0

	for _, span := range c.Manifest.Entries {
		if span.Candidate {
			continue
		}

		offset, length, err := c.Manifest.ResolveSpan(c.working, span)
		if err != nil {
			return c.fail(fmt.Errorf("container %s: %w", c.Manifest.ID, err))
		}

		if span.Terminator != "" {
			raw := c.working[offset : offset+int64(length)]
			for _, run := range reader.TerminatedRuns(raw, span.Terminator[0]) {
				id := table.ID{Container: c.Manifest.ID, Index: index}
				index++
				if err := c.patchTerminatedRun(t, id, offset+int64(run.Start), run.End-run.Start); err != nil {
					return c.fail(err)
				}
			}
			continue
		}

		id := table.ID{Container: c.Manifest.ID, Index: index}
		index++

		if span.PointerIndex != nil {
			if err := c.patchIndirectSlot(t, id, *span.PointerIndex, offset, length); err != nil {
				return c.fail(err)
			}
			continue
		}

		if err := c.patchFixedSlot(t, id, offset, length); err != nil {
			return c.fail(err)
		}
	}

	if pt := c.Manifest.PointerTable; pt != nil {
		if err := validatePointerTable(c.working, pt); err != nil {
			return c.fail(&PointerTableError{Container: c.Manifest.ID, Cause: err})
		}
	}

	c.patched = true
	return nil
}

// Image returns the patched image, or the untouched original if Patch
// failed or never ran.
func (c *Container) Image() []byte {
	if c.patched && c.failed == nil {
		return c.working
	}
	return c.original
}

// Patched reports whether the container holds a successfully patched
// image.
func (c *Container) Patched() bool { return c.patched && c.failed == nil }

// WriteFile writes the patched image under root, preserving the
// manifest path. It refuses to write an unpatched container.
func (c *Container) WriteFile(root string) error {
	if !c.Patched() {
		if c.failed != nil {
			return c.failed
		}
		return fmt.Errorf("container %s: not patched", c.Manifest.ID)
	}

	path := filepath.Join(root, filepath.FromSlash(c.Manifest.Path))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("container %s: %w", c.Manifest.ID, err)
	}
	return os.WriteFile(path, c.working, 0644)
}

func (c *Container) fail(err error) error {
	c.failed = err
	c.working = nil
	c.patched = false
	return err
}

// encodedTranslation returns the bytes to write for a record, or nil if
// the record passes through unchanged.
func encodedTranslation(t *table.Table, id table.ID) ([]byte, error) {
	rec, ok := t.Get(id)
	if !ok || len(rec.Tokens) == 0 {
		return nil, nil
	}

	outcome, err := layout.Validate(rec.Tokens, 0)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}
	if outcome.NeedsAlignment() {
		log.Warn("Record %s: writing with misaligned directives at offsets %v", id, outcome.Misaligned)
	}

	encoded, err := codec.Encode(rec.Tokens)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}
	return encoded, nil
}

func (c *Container) patchFixedSlot(t *table.Table, id table.ID, offset int64, length int) error {
	encoded, err := encodedTranslation(t, id)
	if err != nil || encoded == nil {
		return err
	}
	if len(encoded) > length {
		return &ContainerOverflowError{ID: id, SlotLen: length, Needed: len(encoded)}
	}

	copy(c.working[offset:], encoded)
	for i := offset + int64(len(encoded)); i < offset+int64(length); i++ {
		c.working[i] = 0x00
	}
	return nil
}

// patchTerminatedRun patches one run inside a terminated span. The
// terminator byte after the run stays put, so a shorter translation is
// padded with spaces instead of the slot sentinel.
func (c *Container) patchTerminatedRun(t *table.Table, id table.ID, offset int64, length int) error {
	encoded, err := encodedTranslation(t, id)
	if err != nil || encoded == nil {
		return err
	}
	if len(encoded) > length {
		return &ContainerOverflowError{ID: id, SlotLen: length, Needed: len(encoded)}
	}

	copy(c.working[offset:], encoded)
	for i := offset + int64(len(encoded)); i < offset+int64(length); i++ {
		c.working[i] = ' '
	}
	return nil
}

// patchIndirectSlot patches a pointer-table entry. A translation that
// fits rewrites the slot in place; a longer one relocates to a fresh
// region at the image end and the vacated span is zero-filled.
func (c *Container) patchIndirectSlot(t *table.Table, id table.ID, ptrIndex int, offset int64, length int) error {
	encoded, err := encodedTranslation(t, id)
	if err != nil || encoded == nil {
		return err
	}
	pt := c.Manifest.PointerTable

	if len(encoded) <= length {
		copy(c.working[offset:], encoded)
		for i := offset + int64(len(encoded)); i < offset+int64(length); i++ {
			c.working[i] = 0x00
		}
		if err := pt.PutEntryAt(c.working, ptrIndex, offset, len(encoded)); err != nil {
			return &PointerTableError{Container: c.Manifest.ID, Cause: err}
		}
		return nil
	}

	newOffset := int64(len(c.working))
	c.working = append(c.working, encoded...)
	for i := offset; i < offset+int64(length); i++ {
		c.working[i] = 0x00
	}
	if err := pt.PutEntryAt(c.working, ptrIndex, newOffset, len(encoded)); err != nil {
		return &PointerTableError{Container: c.Manifest.ID, Cause: err}
	}
	log.Info("Record %s: relocated to 0x%X (%d bytes)", id, newOffset, len(encoded))
	return nil
}

// validatePointerTable re-reads the whole table after patching and
// rejects out-of-bounds or overlapping entries.
func validatePointerTable(image []byte, pt *reader.PointerTable) error {
	type span struct {
		index  int
		offset int64
		end    int64
	}

	spans := make([]span, 0, pt.Count)
	for i := 0; i < pt.Count; i++ {
		offset, length, err := pt.EntryAt(image, i)
		if err != nil {
			return err
		}
		if length == 0 {
			continue
		}
		end := offset + int64(length)
		if offset < 0 || end > int64(len(image)) {
			return fmt.Errorf("entry %d spans [%d,%d) outside image of %d bytes", i, offset, end, len(image))
		}
		spans = append(spans, span{index: i, offset: offset, end: end})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].offset < spans[j].offset })
	for i := 1; i < len(spans); i++ {
		if spans[i].offset < spans[i-1].end {
			return fmt.Errorf("entries %d and %d overlap at offset 0x%X",
				spans[i-1].index, spans[i].index, spans[i].offset)
		}
	}
	return nil
}
