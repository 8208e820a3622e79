// Package reader locates and decodes the original-language byte runs of
// a binary container into string records, driven by a trusted manifest
// of entry spans.
package reader

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Manifest describes every container the pipeline touches.
type Manifest struct {
	Containers []ContainerManifest `toml:"container"`
}

// ContainerManifest lists the known entry spans of one container and,
// when entries are reached indirectly, the pointer table that indexes
// them.
type ContainerManifest struct {
	ID           string        `toml:"id"`
	Path         string        `toml:"path"`
	Entries      []EntrySpan   `toml:"entry"`
	PointerTable *PointerTable `toml:"pointer_table"`
}

// EntrySpan is one known string location. A fixed slot carries its own
// offset and length; an indirect slot names a pointer-table index
// instead. Candidate spans come from the heuristic scanner and are
// ignored until a human confirms them.
type EntrySpan struct {
	Offset       int64  `toml:"offset"`
	Length       int    `toml:"length"`
	PointerIndex *int   `toml:"pointer_index"`
	Terminator   string `toml:"terminator"`
	Candidate    bool   `toml:"candidate"`
	Context      string `toml:"context"`
}

// PointerTable describes the on-disk index of (offset, length) pairs.
// Field widths are in bytes; values are little-endian.
type PointerTable struct {
	Offset      int64 `toml:"offset"`
	Count       int   `toml:"count"`
	OffsetWidth int   `toml:"offset_width"`
	LengthWidth int   `toml:"length_width"`
}

// EntrySize returns the byte size of one pointer-table entry.
func (p *PointerTable) EntrySize() int {
	return p.OffsetWidth + p.LengthWidth
}

// EntryAt reads pointer-table entry i from the container image.
func (p *PointerTable) EntryAt(image []byte, i int) (offset int64, length int, err error) {
	if i < 0 || i >= p.Count {
		return 0, 0, fmt.Errorf("pointer table index %d out of range (count %d)", i, p.Count)
	}
	base := p.Offset + int64(i*p.EntrySize())
	end := base + int64(p.EntrySize())
	if base < 0 || end > int64(len(image)) {
		return 0, 0, fmt.Errorf("pointer table entry %d spans [%d,%d) outside image of %d bytes", i, base, end, len(image))
	}
	offset = int64(readUint(image[base : base+int64(p.OffsetWidth)]))
	length = int(readUint(image[base+int64(p.OffsetWidth) : end]))
	return offset, length, nil
}

// PutEntryAt rewrites pointer-table entry i in place.
func (p *PointerTable) PutEntryAt(image []byte, i int, offset int64, length int) error {
	if i < 0 || i >= p.Count {
		return fmt.Errorf("pointer table index %d out of range (count %d)", i, p.Count)
	}
	base := p.Offset + int64(i*p.EntrySize())
	end := base + int64(p.EntrySize())
	if base < 0 || end > int64(len(image)) {
		return fmt.Errorf("pointer table entry %d spans [%d,%d) outside image of %d bytes", i, base, end, len(image))
	}
	if !fitsWidth(uint64(offset), p.OffsetWidth) {
		return fmt.Errorf("offset %d does not fit in %d bytes", offset, p.OffsetWidth)
	}
	if !fitsWidth(uint64(length), p.LengthWidth) {
		return fmt.Errorf("length %d does not fit in %d bytes", length, p.LengthWidth)
	}
	writeUint(image[base:base+int64(p.OffsetWidth)], uint64(offset))
	writeUint(image[base+int64(p.OffsetWidth):end], uint64(length))
	return nil
}

// LoadManifest reads a TOML container manifest.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("failed to load manifest %s: %w", path, err)
	}
	for i := range m.Containers {
		c := &m.Containers[i]
		if c.ID == "" {
			return nil, fmt.Errorf("manifest %s: container %d has no id", path, i)
		}
		if c.Path == "" {
			c.Path = c.ID
		}
		if pt := c.PointerTable; pt != nil {
			if pt.OffsetWidth <= 0 || pt.OffsetWidth > 8 || pt.LengthWidth <= 0 || pt.LengthWidth > 8 {
				return nil, fmt.Errorf("manifest %s: container %s has invalid pointer table field widths", path, c.ID)
			}
		}
	}
	return &m, nil
}

// SaveManifest writes a manifest back to TOML, used when the scanner
// appends candidate entries.
func SaveManifest(path string, m *Manifest) error {
	file, err := createFile(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(m)
}

// readUint decodes a little-endian unsigned integer of 1 to 8 bytes.
func readUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func writeUint(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v)
		v >>= 8
	}
}

func fitsWidth(v uint64, width int) bool {
	if width >= 8 {
		return true
	}
	return v < (uint64(1) << (8 * width))
}
