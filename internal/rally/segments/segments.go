// Package segments turns the state machine's provisional rally spans into
// the final RallySegment list: pre/post-roll padding, clamping to the video,
// gap merging, minimum-length filtering, and aggregate metadata.
package segments

import (
	"math"
	"sort"

	"github.com/bumpsetcut/rallycore/internal/config"
	"github.com/bumpsetcut/rallycore/internal/rally"
	"github.com/bumpsetcut/rallycore/internal/rally/decider"
)

// Builder is the post-pass over a video's provisional spans.
type Builder struct {
	cfg config.Config
}

func New(cfg config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// padded is a provisional span after padding, carrying its aggregates
// through the merge step.
type padded struct {
	start, end float64
	agg        decider.Provisional
}

// Build produces the ordered, non-overlapping segment list. Short raw
// rallies get a capped pre-roll so a false start cannot pull a long lead-in
// into the cut.
func (b *Builder) Build(spans []decider.Provisional, videoDuration float64) []rally.RallySegment {
	ranges := make([]padded, 0, len(spans))
	for _, p := range spans {
		preroll := b.cfg.PrerollSeconds
		if p.End-p.Start < b.cfg.ShortSegmentThreshold {
			preroll = math.Min(preroll, b.cfg.MaxPrerollForShort)
		}
		start := math.Max(0, p.Start-preroll)
		end := math.Min(videoDuration, p.End+b.cfg.PostrollSeconds)
		if end <= start {
			continue
		}
		ranges = append(ranges, padded{start: start, end: end, agg: p})
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })

	var merged []padded
	for _, r := range ranges {
		if n := len(merged); n > 0 && r.start-merged[n-1].end <= b.cfg.MergeGapSeconds {
			merged[n-1].end = math.Max(merged[n-1].end, r.end)
			merged[n-1].agg = combine(merged[n-1].agg, r.agg)
			continue
		}
		merged = append(merged, r)
	}

	out := make([]rally.RallySegment, 0, len(merged))
	for _, r := range merged {
		if r.end-r.start < b.cfg.MinSegmentSeconds {
			continue
		}
		out = append(out, finalize(r))
	}
	return out
}

// combine folds the aggregates of two merged spans.
func combine(a, b decider.Provisional) decider.Provisional {
	a.Frames += b.Frames
	a.DetectionCount += b.DetectionCount
	a.SumConfidence += b.SumConfidence
	a.MaxConfidence = math.Max(a.MaxConfidence, b.MaxConfidence)
	a.QualityFrames += b.QualityFrames
	a.SumQuality += b.SumQuality
	a.SumTrajectoryLength += b.SumTrajectoryLength
	a.Contacts += b.Contacts
	return a
}

func finalize(r padded) rally.RallySegment {
	seg := rally.RallySegment{
		StartTime:         r.start,
		EndTime:           r.end,
		MaxConfidence:     r.agg.MaxConfidence,
		DetectionCount:    r.agg.DetectionCount,
		EstimatedContacts: r.agg.Contacts,
	}
	if r.agg.DetectionCount > 0 {
		seg.Confidence = r.agg.SumConfidence / float64(r.agg.DetectionCount)
	}
	if r.agg.QualityFrames > 0 {
		seg.Quality = r.agg.SumQuality / float64(r.agg.QualityFrames)
	}
	if r.agg.Frames > 0 {
		seg.AverageTrajectoryLength = r.agg.SumTrajectoryLength / float64(r.agg.Frames)
	}
	return seg
}

// ExportStats summarizes what a segment list keeps of the source video.
type ExportStats struct {
	Segments         int
	KeptSeconds      float64
	VideoSeconds     float64
	Coverage         float64 // kept fraction of the video, [0, 1]
	CompressionRatio float64 // video length over kept length
}

// Statistics computes export statistics for a final segment list.
func Statistics(segs []rally.RallySegment, videoDuration float64) ExportStats {
	st := ExportStats{Segments: len(segs), VideoSeconds: videoDuration}
	for _, s := range segs {
		st.KeptSeconds += s.Duration()
	}
	if videoDuration > 0 {
		st.Coverage = st.KeptSeconds / videoDuration
	}
	if st.KeptSeconds > 0 {
		st.CompressionRatio = videoDuration / st.KeptSeconds
	}
	return st
}
