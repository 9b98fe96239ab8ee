package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// WriteTable writes rows to path in the format its extension names. The
// summary goes to the Summary sheet of a workbook, or next to a CSV file at
// SummaryPath(path).
func WriteTable(path string, rows []Row, reports []LabeledReport) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	slog.Info("Writing table",
		slog.String("path", path),
		slog.String("format", format.String()),
		slog.Int("rows", len(rows)),
		slog.Int("reports", len(reports)))

	if format == XLSX {
		return WriteXLSX(path, rows, reports)
	}
	if err := writeFile(path, func(f *os.File) error { return WriteCSV(f, rows) }); err != nil {
		return err
	}
	if len(reports) == 0 {
		return nil
	}
	return writeFile(SummaryPath(path), func(f *os.File) error { return WriteSummaryCSV(f, reports) })
}

// ReadTable reads a lane table from a .csv or .xlsx file.
func ReadTable(path string) ([]Row, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	if format == XLSX {
		return ReadXLSX(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// SummaryPath is where WriteTable puts the summary of a CSV table.
func SummaryPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_summary" + ext
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
