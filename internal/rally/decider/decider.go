// Package decider holds the rally state machine: a two-state hysteresis
// automaton over per-frame evidence bundles. It emits provisional rally
// spans; the segment builder turns those into final RallySegments.
package decider

import (
	"math"

	"github.com/bumpsetcut/rallycore/internal/config"
	"github.com/bumpsetcut/rallycore/internal/rally"
)

// State is the machine's logical state. Buffering is expressed through
// timestamps, not sub-states.
type State string

const (
	Idle   State = "idle"
	Active State = "active"
)

// FrameContext carries the per-frame aggregates the machine folds into the
// provisional span while active. It rides alongside the EvidenceBundle so
// segment metadata never needs a second pass over the video.
type FrameContext struct {
	HasDetection        bool
	DetectionConfidence float64
	HasQuality          bool
	Quality             float64
	TrajectoryLength    int  // estimator history length this frame
	ContactSignal       bool // significant trajectory change flagged
}

// Provisional is one Active span awaiting the segment builder.
type Provisional struct {
	Start float64
	End   float64

	Frames              int
	DetectionCount      int
	SumConfidence       float64
	MaxConfidence       float64
	QualityFrames       int
	SumQuality          float64
	SumTrajectoryLength float64
	Contacts            int
}

// Machine is the hysteresis state machine. It must be driven strictly in
// timestamp order and holds no concurrency state.
type Machine struct {
	cfg config.Config

	state              State
	lastActivity       float64
	consecutiveInvalid int

	secondaryAbsent      bool
	secondaryAbsentSince float64

	lastContact    float64
	hasLastContact bool

	current *Provisional
	spans   []Provisional
}

func New(cfg config.Config) *Machine {
	return &Machine{cfg: cfg, state: Idle}
}

// State returns the current logical state.
func (m *Machine) State() State { return m.state }

// Reset returns the machine to Idle and discards all spans and timing
// anchors in one step.
func (m *Machine) Reset() {
	m.state = Idle
	m.lastActivity = 0
	m.consecutiveInvalid = 0
	m.secondaryAbsent = false
	m.secondaryAbsentSince = 0
	m.lastContact = 0
	m.hasLastContact = false
	m.current = nil
	m.spans = nil
}

// Observe advances the machine by one frame.
//
// Idle -> Active fires on a valid trajectory with the ball visible or the
// secondary presence signal set; the span start reaches StartBuffer seconds
// backward to catch the motion onset that preceded confident detection.
//
// Active -> Idle fires once EndTimeout has elapsed since the last valid
// frame AND the trajectory is currently invalid (beyond the drop grace) or
// the secondary signal has been absent past its grace. The span ends at the
// frame that first satisfies the condition.
func (m *Machine) Observe(ev rally.EvidenceBundle, ctx FrameContext) {
	t := ev.Timestamp

	if ev.TrajectoryValid {
		m.consecutiveInvalid = 0
	} else {
		m.consecutiveInvalid++
	}
	// A short detector dropout is not "currently invalid": up to
	// DropGraceFrames consecutive misses are forgiven so a single missed
	// detection cannot restart rally timing.
	currentlyInvalid := !ev.TrajectoryValid && m.consecutiveInvalid > m.cfg.DropGraceFrames

	if ev.SecondaryPresence {
		m.secondaryAbsent = false
	} else if !m.secondaryAbsent {
		m.secondaryAbsent = true
		m.secondaryAbsentSince = t
	}
	secondaryLost := m.secondaryAbsent && t-m.secondaryAbsentSince > m.cfg.SecondaryGraceSeconds

	switch m.state {
	case Idle:
		if ev.TrajectoryValid && (ev.ObjectVisible || ev.SecondaryPresence) {
			m.state = Active
			m.lastActivity = t
			m.hasLastContact = false
			m.current = &Provisional{Start: math.Max(0, t-m.cfg.StartBuffer)}
			m.accumulate(t, ctx)
		}

	case Active:
		if ev.TrajectoryValid {
			m.lastActivity = t
		}
		m.accumulate(t, ctx)

		if t-m.lastActivity >= m.cfg.EndTimeout && (currentlyInvalid || secondaryLost) {
			m.close(t)
		}
	}
}

// Finalize closes a still-open span at the end of the video and returns all
// provisional spans in emission order.
func (m *Machine) Finalize(videoEnd float64) []Provisional {
	if m.state == Active {
		m.close(math.Max(videoEnd, m.lastActivity))
	}
	return m.spans
}

func (m *Machine) accumulate(t float64, ctx FrameContext) {
	p := m.current
	p.Frames++
	if ctx.HasDetection {
		p.DetectionCount++
		p.SumConfidence += ctx.DetectionConfidence
		p.MaxConfidence = math.Max(p.MaxConfidence, ctx.DetectionConfidence)
	}
	if ctx.HasQuality {
		p.QualityFrames++
		p.SumQuality += ctx.Quality
	}
	p.SumTrajectoryLength += float64(ctx.TrajectoryLength)

	if ctx.ContactSignal && (!m.hasLastContact || t-m.lastContact >= m.cfg.MinContactSeparation) {
		p.Contacts++
		m.lastContact = t
		m.hasLastContact = true
	}
}

func (m *Machine) close(end float64) {
	m.current.End = end
	m.spans = append(m.spans, *m.current)
	m.current = nil
	m.state = Idle
	m.consecutiveInvalid = 0
}
