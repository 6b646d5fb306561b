// Package pipeline wires the rally detection core together: detections flow
// one way per frame through the estimator, physics gate, classifier, quality
// scorer, and rally state machine, and the segment builder runs once at end
// of video. One Pipeline per video; instances share nothing.
package pipeline

import (
	"github.com/bumpsetcut/rallycore/internal/config"
	"github.com/bumpsetcut/rallycore/internal/monitoring"
	"github.com/bumpsetcut/rallycore/internal/rally"
	"github.com/bumpsetcut/rallycore/internal/rally/classify"
	"github.com/bumpsetcut/rallycore/internal/rally/decider"
	"github.com/bumpsetcut/rallycore/internal/rally/gate"
	"github.com/bumpsetcut/rallycore/internal/rally/quality"
	"github.com/bumpsetcut/rallycore/internal/rally/segments"
	"github.com/bumpsetcut/rallycore/internal/rally/track"
)

// Frame is the per-frame input: the frame's presentation timestamp, an
// optional detection, and the externally supplied secondary presence signal
// (player activity, audio, scoreboard motion).
type Frame struct {
	Timestamp         rally.MediaTime
	Detection         *rally.Detection
	SecondaryPresence bool
}

// FrameRecord is the telemetry value emitted to the EventSink after each
// processed frame. Diagnostic only; segment output never depends on a sink
// being attached.
type FrameRecord struct {
	FrameIndex int
	Timestamp  float64

	HasDetection      bool
	DetectionAccepted bool

	Position           rally.Point
	Velocity           rally.Point
	TrackingConfidence float64

	GateValid  bool
	GateReason string
	Physics    rally.PhysicsScore
	FitTier    rally.FitTier

	Classification rally.Classification
	Quality        rally.QualityScore

	Evidence rally.EvidenceBundle
	State    decider.State
}

// EventSink receives per-frame telemetry and recoverable diagnostics. All
// calls happen on the processing goroutine; implementations must not block.
// A nil sink costs a single comparison per frame.
type EventSink interface {
	RecordFrame(FrameRecord)
	RecordDiagnostic(message string)
}

// ProcessingStats aggregates one run.
type ProcessingStats struct {
	FramesProcessed    int
	DetectionsSeen     int
	DetectionsAccepted int
	PhysicsValidFrames int
	NumericalResets    int
	SkippedFrames      int // out-of-order frames dropped

	sumQuality    float64
	qualityFrames int
}

// PhysicsValidPercent returns the share of frames with full rally evidence.
func (s ProcessingStats) PhysicsValidPercent() float64 {
	if s.FramesProcessed == 0 {
		return 0
	}
	return 100 * float64(s.PhysicsValidFrames) / float64(s.FramesProcessed)
}

// MeanQuality returns the mean composite quality over scored frames.
func (s ProcessingStats) MeanQuality() float64 {
	if s.qualityFrames == 0 {
		return 0
	}
	return s.sumQuality / float64(s.qualityFrames)
}

// Pipeline drives one video. Not safe for concurrent use.
type Pipeline struct {
	cfg config.Config

	estimator  *track.Estimator
	validator  *gate.Validator
	classifier *classify.Classifier
	scorer     *quality.Scorer
	machine    *decider.Machine
	builder    *segments.Builder

	sink EventSink

	frameIndex int
	lastTime   float64
	hasFrames  bool
	stats      ProcessingStats
}

// New builds a pipeline for a validated config. An invalid config is a
// programming error at this layer; callers run config.Validate (or Resolve)
// first.
func New(cfg config.Config) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		estimator:  track.New(cfg),
		validator:  gate.NewValidator(cfg),
		classifier: classify.New(cfg),
		scorer:     quality.New(cfg),
		machine:    decider.New(cfg),
		builder:    segments.New(cfg),
	}
	p.estimator.OnNumericalReset = func() {
		p.stats.NumericalResets++
		if p.sink != nil {
			p.sink.RecordDiagnostic("estimator numerical reset, frame handled as missed detection")
		}
	}
	return p
}

// SetSink attaches a telemetry sink. Attach before the first frame; the
// sink sees every frame from then on.
func (p *Pipeline) SetSink(sink EventSink) { p.sink = sink }

// Process consumes one frame. Frames must arrive in non-decreasing
// timestamp order; an out-of-order frame is dropped with a diagnostic
// rather than corrupting the machine's timing anchors.
func (p *Pipeline) Process(frame Frame) {
	t := frame.Timestamp.Seconds()
	if p.hasFrames && t < p.lastTime {
		p.stats.SkippedFrames++
		if p.sink != nil {
			p.sink.RecordDiagnostic("out-of-order frame dropped")
		}
		return
	}

	accepted := false
	if frame.Detection != nil {
		p.stats.DetectionsSeen++
		accepted = p.estimator.Update(frame.Detection.Center, frame.Detection.Confidence, t)
		if accepted {
			p.stats.DetectionsAccepted++
		}
	} else if p.estimator.Initialized() {
		dt := t - p.lastTime
		if !p.hasFrames || dt <= 0 {
			dt = p.cfg.DefaultTimeStep
		}
		p.estimator.PredictWithoutDetection(dt)
	}

	res := p.validator.Validate(p.estimator.History(0))
	cls := p.classifier.Classify(res)
	q := p.scorer.Score(res.Score)

	// Full rally evidence needs all three gates: physics validity, a
	// known movement class, and the quality floor.
	trajectoryValid := res.Valid && cls.Class != rally.MovementUnknown && p.scorer.Passes(q)

	ev := rally.EvidenceBundle{
		TrajectoryValid:   trajectoryValid,
		ObjectVisible:     accepted,
		SecondaryPresence: frame.SecondaryPresence,
		Timestamp:         t,
	}
	ctx := decider.FrameContext{
		HasDetection:     frame.Detection != nil,
		HasQuality:       res.Samples >= p.cfg.MinPointsForFit,
		Quality:          q.Composite,
		TrajectoryLength: p.estimator.HistoryLen(),
		ContactSignal:    p.estimator.SignificantTrajectoryChange(),
	}
	if frame.Detection != nil {
		ctx.DetectionConfidence = frame.Detection.Confidence
	}
	p.machine.Observe(ev, ctx)

	p.stats.FramesProcessed++
	if trajectoryValid {
		p.stats.PhysicsValidFrames++
	}
	if ctx.HasQuality {
		p.stats.qualityFrames++
		p.stats.sumQuality += q.Composite
	}

	if p.sink != nil {
		p.sink.RecordFrame(FrameRecord{
			FrameIndex:         p.frameIndex,
			Timestamp:          t,
			HasDetection:       frame.Detection != nil,
			DetectionAccepted:  accepted,
			Position:           p.estimator.Position(),
			Velocity:           p.estimator.Velocity(),
			TrackingConfidence: p.estimator.Confidence(),
			GateValid:          res.Valid,
			GateReason:         res.Reason,
			Physics:            res.Score,
			FitTier:            res.Tier,
			Classification:     cls,
			Quality:            q,
			Evidence:           ev,
			State:              p.machine.State(),
		})
	}

	p.frameIndex++
	p.lastTime = t
	p.hasFrames = true
}

// Finalize closes any open rally at videoDuration and returns the final
// segment list. The pipeline can keep processing a new video only after
// Reset.
func (p *Pipeline) Finalize(videoDuration float64) []rally.RallySegment {
	if videoDuration < p.lastTime {
		videoDuration = p.lastTime
	}
	spans := p.machine.Finalize(videoDuration)
	segs := p.builder.Build(spans, videoDuration)
	monitoring.Logf("rally: finalized %d segment(s) over %.1fs (%d frames, %.1f%% valid)",
		len(segs), videoDuration, p.stats.FramesProcessed, p.stats.PhysicsValidPercent())
	return segs
}

// Stats returns the running aggregates for this video.
func (p *Pipeline) Stats() ProcessingStats { return p.stats }

// Reset atomically returns the pipeline to its initial state: estimator,
// history ring, state machine anchors, counters. The attached sink is kept.
func (p *Pipeline) Reset() {
	p.estimator.Reset()
	p.machine.Reset()
	p.frameIndex = 0
	p.lastTime = 0
	p.hasFrames = false
	p.stats = ProcessingStats{}
}
