package table

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/bintext-repacker/internal/codec"
)

// Exchange format column order. Rows are keyed by the stable record id;
// the directive grammar appears literally in the text columns.
var csvHeader = []string{"id", "original", "translation", "context", "notes"}

// ReadCSV loads a table shard from the exchange format. Stray NUL bytes
// (an artifact of some spreadsheet tools) are stripped before parsing,
// the same way the original batch files were cleaned.
func ReadCSV(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read table file: %w", err)
	}
	content := strings.ReplaceAll(string(raw), "\x00", "")

	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse table file %s: %w", path, err)
	}
	if len(rows) == 0 {
		return NewTable(), nil
	}

	cols, err := headerIndex(rows[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	t := NewTable()
	for i, row := range rows[1:] {
		lineNum := i + 2 // header is line 1
		rec, err := rowToRecord(row, cols)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, lineNum, err)
		}
		if rec == nil {
			continue
		}
		t.Put(rec)
	}
	return t, nil
}

// WriteCSV writes a table in the exchange format.
func WriteCSV(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range t.Records() {
		original, err := rec.OriginalText()
		if err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		translation, err := rec.TranslationText()
		if err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		if err := w.Write([]string{rec.ID.String(), original, translation, rec.Context, rec.Notes}); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteBatches shards a table into fixed-size CSV files named
// <prefix>_batch_NNN.csv so several translators can work in parallel.
func WriteBatches(dir, prefix string, t *Table, batchSize int) ([]string, error) {
	if batchSize <= 0 {
		batchSize = 50
	}

	records := t.Records()
	var paths []string
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}

		batch := NewTable()
		for _, rec := range records[start:end] {
			batch.Put(rec)
		}

		name := fmt.Sprintf("%s_batch_%03d.csv", prefix, len(paths)+1)
		path := filepath.Join(dir, name)
		if err := WriteCSV(path, batch); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func headerIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"id", "original", "translation"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}
	return cols, nil
}

func rowToRecord(row []string, cols map[string]int) (*StringRecord, error) {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	idText := strings.TrimSpace(field("id"))
	if idText == "" {
		return nil, nil // blank row
	}
	id, err := ParseID(idText)
	if err != nil {
		return nil, err
	}

	originalText := field("original")
	originalTokens, err := codec.ParseText(originalText)
	if err != nil {
		return nil, fmt.Errorf("original: %w", err)
	}
	original, err := codec.Encode(originalTokens)
	if err != nil {
		return nil, fmt.Errorf("original: %w", err)
	}

	rec := &StringRecord{
		ID:        id,
		Original:  original,
		SourceLen: len(original),
		Context:   field("context"),
		Notes:     field("notes"),
	}

	if translation := field("translation"); translation != "" {
		tokens, err := codec.ParseText(translation)
		if err != nil {
			return nil, fmt.Errorf("translation: %w", err)
		}
		rec.Tokens = tokens
	}
	return rec, nil
}
