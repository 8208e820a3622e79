package repack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/bintext-repacker/internal/codec"
	"github.com/MimeLyc/bintext-repacker/internal/reader"
	"github.com/MimeLyc/bintext-repacker/internal/table"
)

func translated(t *testing.T, id string, text string) *table.StringRecord {
	t.Helper()
	parsed, err := table.ParseID(id)
	require.NoError(t, err)
	tokens, err := codec.ParseText(text)
	require.NoError(t, err)
	return &table.StringRecord{ID: parsed, Tokens: tokens}
}

func TestPatch_FixedSlotPassthrough(t *testing.T) {
	image := make([]byte, 32)
	copy(image[8:], "OLDTEXT")
	copy(image[20:], "KEEPME")

	m := reader.ContainerManifest{
		ID: "c",
		Entries: []reader.EntrySpan{
			{Offset: 8, Length: 8},
			{Offset: 20, Length: 6},
		},
	}

	tbl := table.NewTable()
	tbl.Put(translated(t, "c:0", "NEW"))

	container := Load(image, m)
	require.NoError(t, container.Patch(tbl))

	want := make([]byte, 32)
	copy(want, image)
	copy(want[8:], "NEW\x00\x00\x00\x00\x00")
	copy(want[20:], "KEEPME")
	assert.Equal(t, want, container.Image())

	// Every byte outside the patched slot is bit-identical.
	assert.Equal(t, image[:8], container.Image()[:8])
	assert.Equal(t, image[16:], container.Image()[16:])
}

func TestPatch_FixedSlotOverflowLeavesImageUntouched(t *testing.T) {
	image := make([]byte, 16)
	copy(image[4:], "short")
	original := append([]byte(nil), image...)

	m := reader.ContainerManifest{
		ID:      "c",
		Entries: []reader.EntrySpan{{Offset: 4, Length: 6}},
	}

	tbl := table.NewTable()
	tbl.Put(translated(t, "c:0", "way too long for six"))

	container := Load(image, m)
	err := container.Patch(tbl)

	var overflow *ContainerOverflowError
	require.ErrorAs(t, err, &overflow)
	assert.Equal(t, table.ID{Container: "c", Index: 0}, overflow.ID)
	assert.Equal(t, 6, overflow.SlotLen)
	assert.Equal(t, 20, overflow.Needed)

	assert.False(t, container.Patched())
	assert.Equal(t, original, container.Image())
}

func TestPatch_TerminatedRunPadsWithSpaces(t *testing.T) {
	payload := []byte("AB@CDEF@")
	image := append(make([]byte, 4), payload...)

	m := reader.ContainerManifest{
		ID:      "c",
		Entries: []reader.EntrySpan{{Offset: 4, Length: len(payload), Terminator: "@"}},
	}

	tbl := table.NewTable()
	tbl.Put(translated(t, "c:1", "XY"))

	container := Load(image, m)
	require.NoError(t, container.Patch(tbl))

	assert.Equal(t, []byte("AB@XY  @"), container.Image()[4:])
}

func ptrManifest(entries int) reader.ContainerManifest {
	m := reader.ContainerManifest{
		ID:           "c",
		PointerTable: &reader.PointerTable{Offset: 0, Count: entries, OffsetWidth: 4, LengthWidth: 2},
	}
	for i := 0; i < entries; i++ {
		idx := i
		m.Entries = append(m.Entries, reader.EntrySpan{PointerIndex: &idx})
	}
	return m
}

func TestPatch_IndirectSlotInPlace(t *testing.T) {
	image := make([]byte, 40)
	m := ptrManifest(2)
	require.NoError(t, m.PointerTable.PutEntryAt(image, 0, 16, 5))
	require.NoError(t, m.PointerTable.PutEntryAt(image, 1, 24, 4))
	copy(image[16:], "Hello")
	copy(image[24:], "Jump")

	tbl := table.NewTable()
	tbl.Put(translated(t, "c:0", "Hi"))

	container := Load(image, m)
	require.NoError(t, container.Patch(tbl))
	patched := container.Image()

	assert.Equal(t, []byte("Hi\x00\x00\x00"), patched[16:21])
	offset, length, err := m.PointerTable.EntryAt(patched, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(16), offset)
	assert.Equal(t, 2, length)

	assert.Equal(t, []byte("Jump"), patched[24:28])
}

func TestPatch_IndirectSlotRelocates(t *testing.T) {
	image := make([]byte, 40)
	m := ptrManifest(2)
	require.NoError(t, m.PointerTable.PutEntryAt(image, 0, 16, 5))
	require.NoError(t, m.PointerTable.PutEntryAt(image, 1, 24, 4))
	copy(image[16:], "Hello")
	copy(image[24:], "Jump")

	tbl := table.NewTable()
	tbl.Put(translated(t, "c:0", "HelloWorld"))

	container := Load(image, m)
	require.NoError(t, container.Patch(tbl))
	patched := container.Image()

	require.Len(t, patched, 50)
	assert.Equal(t, []byte("HelloWorld"), patched[40:])
	// Vacated span zero-filled.
	assert.Equal(t, make([]byte, 5), patched[16:21])

	offset, length, err := m.PointerTable.EntryAt(patched, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(40), offset)
	assert.Equal(t, 10, length)

	// Untouched neighbor survives.
	assert.Equal(t, []byte("Jump"), patched[24:28])
}

func TestPatch_DetectsOverlappingPointerEntries(t *testing.T) {
	image := make([]byte, 40)
	m := ptrManifest(2)
	require.NoError(t, m.PointerTable.PutEntryAt(image, 0, 16, 8))
	require.NoError(t, m.PointerTable.PutEntryAt(image, 1, 20, 4))
	original := append([]byte(nil), image...)

	container := Load(image, m)
	err := container.Patch(table.NewTable())

	var ptErr *PointerTableError
	require.ErrorAs(t, err, &ptErr)
	assert.Equal(t, "c", ptErr.Container)
	assert.Equal(t, original, container.Image())
}

func TestWriteFile_RefusesUnpatched(t *testing.T) {
	container := Load(make([]byte, 8), reader.ContainerManifest{ID: "c", Path: "c.bin"})
	assert.Error(t, container.WriteFile(t.TempDir()))
}

func TestWriteFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	image := make([]byte, 16)
	copy(image[0:], "ABCDEF")

	m := reader.ContainerManifest{
		ID:      "c",
		Path:    "sub/c.bin",
		Entries: []reader.EntrySpan{{Offset: 0, Length: 6}},
	}

	tbl := table.NewTable()
	tbl.Put(translated(t, "c:0", "XYZ"))

	container := Load(image, m)
	require.NoError(t, container.Patch(tbl))
	require.NoError(t, container.WriteFile(dir))

	reloaded, err := LoadFile(dir, m)
	require.NoError(t, err)
	assert.Equal(t, container.Image(), reloaded.Image())
}
