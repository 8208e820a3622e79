package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.csv")

	original := NewTable()
	rec := &StringRecord{
		ID:       ID{Container: "MGDATA/00000062", Index: 0},
		Original: mustEncode(t, "!p0100!e00こんにちは"),
		Context:  "greeting",
		Notes:    "opening scene",
	}
	rec.SourceLen = len(rec.Original)
	original.Put(rec)

	require.NoError(t, WriteCSV(path, original))

	loaded, err := ReadCSV(path)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())

	got, ok := loaded.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, rec.Original, got.Original)
	assert.Equal(t, len(rec.Original), got.SourceLen)
	assert.Equal(t, "greeting", got.Context)
	assert.Equal(t, "opening scene", got.Notes)
}

func TestReadCSV_StripsNULBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.csv")

	content := "id,original,translation,context,notes\n" +
		"\"c:1\",\"\x00こん\x00にちは\",\"Hello\",\"\",\"\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	loaded, err := ReadCSV(path)
	require.NoError(t, err)

	rec, ok := loaded.Get(ID{Container: "c", Index: 1})
	require.True(t, ok)
	text, err := rec.OriginalText()
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", text)
	trans, err := rec.TranslationText()
	require.NoError(t, err)
	assert.Equal(t, "Hello", trans)
}

func TestReadCSV_MissingColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.csv")
	require.NoError(t, os.WriteFile(path, []byte("japanese,english\nこん,Hi\n"), 0644))

	_, err := ReadCSV(path)
	assert.Error(t, err)
}

func TestReadCSV_BadDirectiveReportsLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.csv")
	content := "id,original,translation,context,notes\n" +
		"\"c:1\",\"こん\",\"oops !c7\",\"\",\"\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := ReadCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadCSV_SkipsBlankRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.csv")
	content := "id,original,translation,context,notes\n" +
		"\"\",\"\",\"\",\"\",\"\"\n" +
		"\"c:1\",\"あ\",\"a\",\"\",\"\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	loaded, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
}

func TestWriteBatches(t *testing.T) {
	dir := t.TempDir()

	full := NewTable()
	for i := 0; i < 7; i++ {
		rec := &StringRecord{
			ID:       ID{Container: "c", Index: i},
			Original: mustEncode(t, "あ"),
		}
		rec.SourceLen = len(rec.Original)
		full.Put(rec)
	}

	paths, err := WriteBatches(dir, "mgdata_62", full, 3)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(dir, "mgdata_62_batch_001.csv"), paths[0])

	// Reading all batches back yields the full table.
	total := 0
	for _, p := range paths {
		shard, err := ReadCSV(p)
		require.NoError(t, err)
		total += shard.Len()
	}
	assert.Equal(t, 7, total)
}
