package rally

import "math"

// Point is a position or velocity in normalized image coordinates.
// Positions live in the unit square with the origin at the top-left
// corner, so +Y points down and gravity is a positive Y acceleration.
type Point struct {
	X float64
	Y float64
}

// Magnitude returns the Euclidean norm.
func (p Point) Magnitude() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y)
}

// Sub returns p - o.
func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y}
}

// Distance returns the Euclidean distance between two points.
func (p Point) Distance(o Point) float64 {
	return p.Sub(o).Magnitude()
}

// Detection is a single detector output for one frame: a normalized
// center point, a confidence in [0, 1], and the frame's presentation
// timestamp. Frames with no detection carry no Detection at all.
type Detection struct {
	Center     Point
	Confidence float64
	Timestamp  MediaTime
}

// TrajectorySample is one entry in the estimator's history ring:
// the filtered position, the instantaneous velocity estimate, and the
// sample time in seconds.
type TrajectorySample struct {
	Position Point
	Velocity Point
	Time     float64 // seconds
}

// Speed returns the velocity magnitude of the sample.
func (s TrajectorySample) Speed() float64 {
	return s.Velocity.Magnitude()
}

// EvidenceBundle is the per-frame input to the rally state machine.
type EvidenceBundle struct {
	TrajectoryValid   bool
	ObjectVisible     bool
	SecondaryPresence bool
	Timestamp         float64 // seconds
}

// RallySegment is one finalized span of active play. Segments are
// immutable once emitted, mutually non-overlapping, and ordered by
// start time.
type RallySegment struct {
	StartTime float64 // seconds
	EndTime   float64 // seconds

	// Aggregate metadata over the segment's frame range.
	Confidence              float64 // mean detection confidence
	Quality                 float64 // mean composite quality score
	MaxConfidence           float64
	DetectionCount          int
	AverageTrajectoryLength float64
	EstimatedContacts       int
}

// Duration returns the segment length in seconds.
func (s RallySegment) Duration() float64 {
	return s.EndTime - s.StartTime
}
