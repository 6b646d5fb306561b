package rally

import "fmt"

// DefaultTimescale is the timescale used when constructing a MediaTime
// from plain seconds. 90 kHz is the conventional video presentation
// clock and represents typical frame rates exactly.
const DefaultTimescale = 90000

// MediaTime is a rational presentation timestamp: Value ticks on a
// clock of Timescale ticks per second. Detections arrive stamped with
// the decoder's native timescale; all internal arithmetic happens in
// float64 seconds via Seconds().
type MediaTime struct {
	Value     int64
	Timescale int32
}

// NewMediaTime builds a MediaTime from raw ticks.
func NewMediaTime(value int64, timescale int32) MediaTime {
	return MediaTime{Value: value, Timescale: timescale}
}

// MediaTimeFromSeconds builds a MediaTime on the default 90 kHz clock.
// Sub-tick precision is truncated.
func MediaTimeFromSeconds(s float64) MediaTime {
	return MediaTime{Value: int64(s * DefaultTimescale), Timescale: DefaultTimescale}
}

// Seconds converts the timestamp to seconds. A zero timescale yields 0
// rather than dividing by zero; callers treat that as an unset time.
func (t MediaTime) Seconds() float64 {
	if t.Timescale == 0 {
		return 0
	}
	return float64(t.Value) / float64(t.Timescale)
}

// IsZero reports whether the timestamp is unset.
func (t MediaTime) IsZero() bool {
	return t.Value == 0 && t.Timescale == 0
}

// Before reports whether t is strictly earlier than other.
func (t MediaTime) Before(other MediaTime) bool {
	return t.Seconds() < other.Seconds()
}

func (t MediaTime) String() string {
	return fmt.Sprintf("%.3fs", t.Seconds())
}
