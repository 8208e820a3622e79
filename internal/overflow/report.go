package overflow

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MimeLyc/bintext-repacker/internal/table"
)

var reportHeader = []string{"id", "original", "translation", "budget_bytes", "actual_bytes", "overage"}

// WriteReportCSV writes an overflow report for offline rewriting. The
// translation column holds the over-budget text; editors shorten it in
// place and the file comes back through CSVOracle.
func WriteReportCSV(path string, reports []Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write(reportHeader); err != nil {
		return err
	}
	for _, r := range reports {
		row := []string{
			r.ID.String(),
			r.Original,
			r.Current,
			strconv.Itoa(r.BudgetBytes),
			strconv.Itoa(r.ActualBytes),
			strconv.Itoa(r.Overage),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// CSVOracle answers resolution requests from an edited report file.
type CSVOracle struct {
	replacements map[table.ID]string
}

// LoadCSVOracle reads an edited overflow report. Only the id and
// translation columns matter; everything else is carried for the
// editor's benefit.
func LoadCSVOracle(path string) (*CSVOracle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}
	content := strings.ReplaceAll(string(raw), "\x00", "")

	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse report file %s: %w", path, err)
	}
	if len(rows) == 0 {
		return &CSVOracle{replacements: map[table.ID]string{}}, nil
	}

	idCol, textCol := -1, -1
	for i, name := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "id":
			idCol = i
		case "translation":
			textCol = i
		}
	}
	if idCol < 0 || textCol < 0 {
		return nil, fmt.Errorf("report file %s: missing id or translation column", path)
	}

	oracle := &CSVOracle{replacements: make(map[table.ID]string)}
	for i, row := range rows[1:] {
		if idCol >= len(row) || textCol >= len(row) {
			continue
		}
		idText := strings.TrimSpace(row[idCol])
		if idText == "" {
			continue
		}
		id, err := table.ParseID(idText)
		if err != nil {
			return nil, fmt.Errorf("report file %s line %d: %w", path, i+2, err)
		}
		oracle.replacements[id] = row[textCol]
	}
	return oracle, nil
}

// Resolve returns the edited replacement for a record. An entry that is
// missing or unchanged from the over-budget text counts as unanswered.
func (o *CSVOracle) Resolve(_ context.Context, r Report) (string, error) {
	replacement, ok := o.replacements[r.ID]
	if !ok {
		return "", fmt.Errorf("no replacement for record %s", r.ID)
	}
	if replacement == r.Current {
		return "", fmt.Errorf("record %s: replacement unchanged", r.ID)
	}
	return replacement, nil
}
