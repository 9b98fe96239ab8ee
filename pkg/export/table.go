// Package export writes lane measurements and statistics to CSV or XLSX and
// reads lane tables back so loading-control data can be reused by a later
// session. The lane column set and its order are fixed.
package export

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"blotquant/internal/models"
	"blotquant/pkg/quanterr"
)

// Columns is the lane table header, in order.
var Columns = []string{
	"image_id",
	"roi_id",
	"lane_index",
	"group",
	"background",
	"stddev",
	"integrated_density",
	"normalized_value",
}

// Row is one lane of the table.
type Row struct {
	ImageID           string
	ROIID             string
	LaneIndex         int
	Group             string
	Background        float64
	StdDev            float64
	IntegratedDensity float64

	// NormalizedValue is meaningful only when HasNormalized is set
	NormalizedValue float64
	HasNormalized   bool
}

// Format is a table file format.
type Format int

const (
	CSV Format = iota
	XLSX
)

func (f Format) String() string {
	if f == XLSX {
		return "xlsx"
	}
	return "csv"
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return CSV, nil
	case ".xlsx":
		return XLSX, nil
	}
	return 0, fmt.Errorf("unsupported table extension %q (want .csv or .xlsx)", filepath.Ext(path))
}

// RowsFromMeasurements builds rows without normalized values.
func RowsFromMeasurements(ms []models.LaneMeasurement) []Row {
	rows := make([]Row, len(ms))
	for i, m := range ms {
		rows[i] = rowOf(m)
	}
	return rows
}

// RowsFromResults builds rows for the target lanes of results. Undefined
// ratios leave the normalized value empty.
func RowsFromResults(results []models.NormalizedResult) []Row {
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = rowOf(r.Target)
		if r.Valid {
			rows[i].NormalizedValue = r.Value
			rows[i].HasNormalized = true
		}
	}
	return rows
}

func rowOf(m models.LaneMeasurement) Row {
	return Row{
		ImageID:           m.ImageID,
		ROIID:             m.ROIID,
		LaneIndex:         m.LaneIndex,
		Group:             m.Group,
		Background:        m.Background,
		StdDev:            m.StdDev,
		IntegratedDensity: m.IntegratedDensity,
	}
}

func (r Row) record() []string {
	norm := ""
	if r.HasNormalized {
		norm = formatFloat(r.NormalizedValue)
	}
	return []string{
		r.ImageID,
		r.ROIID,
		strconv.Itoa(r.LaneIndex),
		r.Group,
		formatFloat(r.Background),
		formatFloat(r.StdDev),
		formatFloat(r.IntegratedDensity),
		norm,
	}
}

func parseRecord(rec []string, line int) (Row, error) {
	// Spreadsheet readers drop trailing empty cells
	for len(rec) < len(Columns) {
		rec = append(rec, "")
	}
	if len(rec) > len(Columns) {
		return Row{}, fmt.Errorf("row %d: %d fields, want %d", line, len(rec), len(Columns))
	}

	var (
		r   = Row{ImageID: rec[0], ROIID: rec[1], Group: rec[3]}
		err error
	)
	if r.LaneIndex, err = strconv.Atoi(strings.TrimSpace(rec[2])); err != nil {
		return Row{}, fmt.Errorf("row %d: lane_index: %w", line, err)
	}
	floats := []struct {
		name string
		dst  *float64
		src  string
	}{
		{"background", &r.Background, rec[4]},
		{"stddev", &r.StdDev, rec[5]},
		{"integrated_density", &r.IntegratedDensity, rec[6]},
	}
	for _, f := range floats {
		if *f.dst, err = strconv.ParseFloat(strings.TrimSpace(f.src), 64); err != nil {
			return Row{}, fmt.Errorf("row %d: %s: %w", line, f.name, err)
		}
	}
	if s := strings.TrimSpace(rec[7]); s != "" {
		if r.NormalizedValue, err = strconv.ParseFloat(s, 64); err != nil {
			return Row{}, fmt.Errorf("row %d: normalized_value: %w", line, err)
		}
		r.HasNormalized = true
	}
	return r, nil
}

func checkHeader(header []string) error {
	if len(header) != len(Columns) {
		return fmt.Errorf("header has %d columns, want %v", len(header), Columns)
	}
	for i, c := range Columns {
		h := strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
		if h != c {
			return fmt.Errorf("column %d is %q, want %q", i+1, header[i], c)
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ControlMeasurements rebuilds the loading-control measurements of one ROI
// from an imported table. Empty imageID or roiID match any value. Lane
// indices must be unique and increasing, the order Normalize pairs them in.
func ControlMeasurements(rows []Row, imageID, roiID string) ([]models.LaneMeasurement, error) {
	var out []models.LaneMeasurement
	for _, r := range rows {
		if imageID != "" && r.ImageID != imageID {
			continue
		}
		if roiID != "" && r.ROIID != roiID {
			continue
		}
		out = append(out, models.LaneMeasurement{
			ImageID:           r.ImageID,
			ROIID:             r.ROIID,
			LaneIndex:         r.LaneIndex,
			Group:             r.Group,
			Background:        r.Background,
			StdDev:            r.StdDev,
			IntegratedDensity: r.IntegratedDensity,
		})
	}
	if len(out) == 0 {
		return nil, quanterr.New(quanterr.MismatchedLaneCount, "import controls",
			"no rows match image %q roi %q", imageID, roiID).WithSource(imageID, roiID)
	}

	for i := 1; i < len(out); i++ {
		prev, cur := out[i-1].LaneIndex, out[i].LaneIndex
		if cur == prev {
			return nil, quanterr.New(quanterr.MismatchedLaneCount, "import controls",
				"lane index %d appears twice", cur).WithSource(imageID, roiID).WithLane(cur)
		}
		if cur < prev {
			return nil, quanterr.New(quanterr.MismatchedLaneCount, "import controls",
				"lane %d follows lane %d", cur, prev).WithSource(imageID, roiID).WithLane(cur)
		}
	}
	return out, nil
}
