package models

// Lane is one sub-rectangle of an ROI holding one sample replicate.
type Lane struct {
	// Index is the lane's physical position, shared across ROIs of one blot
	Index int

	// Rect spans the lane in field coordinates
	Rect Rect

	// Group is the experimental group label assigned by pairing
	Group string

	// Replicate is the 1-based position of the lane within its group
	Replicate int
}

// LaneMeasurement is the quantification result of one lane.
type LaneMeasurement struct {
	ImageID   string
	ROIID     string
	LaneIndex int
	Group     string
	Replicate int

	Background        float64
	StdDev            float64
	Threshold         float64
	IntegratedDensity float64
	PixelCount        int
}

// NormalizedResult pairs a target lane with its loading-control lane.
type NormalizedResult struct {
	Target  LaneMeasurement
	Control LaneMeasurement

	// Value is Target.IntegratedDensity / Control.IntegratedDensity
	Value float64

	// Valid is false when the ratio is undefined; Err then says why
	Valid bool
	Err   error
}
