package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the workbook.
const (
	LanesSheet   = "Lanes"
	SummarySheet = "Summary"
)

// WriteXLSX writes the lane table and, when reports is not empty, the
// statistics summary to a workbook at path.
func WriteXLSX(path string, rows []Row, reports []LabeledReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", LanesSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := writeSheetRow(f, LanesSheet, 1, stringsToCells(Columns)); err != nil {
		return err
	}
	for i, r := range rows {
		if err := writeSheetRow(f, LanesSheet, i+2, r.cells()); err != nil {
			return err
		}
	}

	if len(reports) > 0 {
		if _, err := f.NewSheet(SummarySheet); err != nil {
			return fmt.Errorf("failed to add summary sheet: %w", err)
		}
		if err := writeSheetRow(f, SummarySheet, 1, stringsToCells(SummaryColumns)); err != nil {
			return err
		}
		for i, l := range summaryLines(reports) {
			if err := writeSheetRow(f, SummarySheet, i+2, l.cells()); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// ReadXLSX reads the Lanes sheet of a workbook.
func ReadXLSX(path string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	records, err := f.GetRows(LanesSheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", LanesSheet, err)
	}
	return parseRecords(records)
}

func writeSheetRow(f *excelize.File, sheet string, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func (r Row) cells() []any {
	out := []any{
		r.ImageID,
		r.ROIID,
		r.LaneIndex,
		r.Group,
		r.Background,
		r.StdDev,
		r.IntegratedDensity,
		nil,
	}
	if r.HasNormalized {
		out[7] = r.NormalizedValue
	}
	return out
}

func stringsToCells(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
