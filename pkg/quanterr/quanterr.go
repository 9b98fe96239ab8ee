// Package quanterr defines the error kinds shared by the quantification and
// statistics packages. Every error carries enough context (image, ROI, lane)
// for a caller to locate the offending input.
package quanterr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	// InvalidGeometry means lane count, ROI or separator constraints were violated.
	InvalidGeometry Kind = iota + 1
	// MismatchedLaneCount means target and control lane sets do not line up.
	MismatchedLaneCount
	// UndefinedNormalization means a control lane had zero integrated density.
	UndefinedNormalization
	// InsufficientSamples means a test received fewer observations than it needs.
	InsufficientSamples
	// UnsupportedTestSelection means the requested test does not fit the group structure.
	UnsupportedTestSelection
	// InvalidParameter means a numeric parameter is out of range.
	InvalidParameter
)

// NoLane marks errors that are not tied to a single lane.
const NoLane = -1

func (k Kind) String() string {
	switch k {
	case InvalidGeometry:
		return "invalid geometry"
	case MismatchedLaneCount:
		return "mismatched lane count"
	case UndefinedNormalization:
		return "undefined normalization"
	case InsufficientSamples:
		return "insufficient samples"
	case UnsupportedTestSelection:
		return "unsupported test selection"
	case InvalidParameter:
		return "invalid parameter"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for errors.Is.
var (
	ErrInvalidGeometry          = &Error{Kind: InvalidGeometry, Lane: NoLane}
	ErrMismatchedLaneCount      = &Error{Kind: MismatchedLaneCount, Lane: NoLane}
	ErrUndefinedNormalization   = &Error{Kind: UndefinedNormalization, Lane: NoLane}
	ErrInsufficientSamples      = &Error{Kind: InsufficientSamples, Lane: NoLane}
	ErrUnsupportedTestSelection = &Error{Kind: UnsupportedTestSelection, Lane: NoLane}
	ErrInvalidParameter         = &Error{Kind: InvalidParameter, Lane: NoLane}
)

// Error is a classified failure with its location.
type Error struct {
	Kind    Kind
	Op      string
	ImageID string
	ROIID   string
	Lane    int
	Msg     string
	Err     error
}

// New builds an Error that is not tied to a lane.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{
		Kind: kind,
		Op:   op,
		Lane: NoLane,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Lane: NoLane, Err: err}
}

// WithLane returns a copy tagged with a lane index.
func (e *Error) WithLane(lane int) *Error {
	c := *e
	c.Lane = lane
	return &c
}

// WithSource returns a copy tagged with image and ROI ids.
func (e *Error) WithSource(imageID, roiID string) *Error {
	c := *e
	c.ImageID = imageID
	c.ROIID = roiID
	return &c
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())

	var loc []string
	if e.ImageID != "" {
		loc = append(loc, "image "+e.ImageID)
	}
	if e.ROIID != "" {
		loc = append(loc, "roi "+e.ROIID)
	}
	if e.Lane != NoLane {
		loc = append(loc, fmt.Sprintf("lane %d", e.Lane))
	}
	if len(loc) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(loc, ", "))
		b.WriteString(")")
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf extracts the kind of the first Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind, true
	}
	return 0, false
}
