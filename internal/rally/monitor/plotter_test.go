package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bumpsetcut/rallycore/internal/rally"
	"github.com/bumpsetcut/rallycore/internal/rally/decider"
	"github.com/bumpsetcut/rallycore/internal/rally/pipeline"
)

func syntheticRecords(n int) []pipeline.FrameRecord {
	recs := make([]pipeline.FrameRecord, 0, n)
	for i := 0; i < n; i++ {
		t := float64(i) / 30.0
		recs = append(recs, pipeline.FrameRecord{
			FrameIndex:         i,
			Timestamp:          t,
			HasDetection:       true,
			DetectionAccepted:  i%7 != 0,
			Position:           rally.Point{X: 0.2 + 0.4*t, Y: 0.8 - 0.9*t + 1.25*t*t},
			TrackingConfidence: 0.9,
			GateValid:          i > 10,
			Physics:            rally.PhysicsScore{RSquared: 0.9, Smoothness: 0.8, AccelerationPattern: 0.85, VelocityConsistency: 0.95, VerticalMotion: 0.6},
			Quality:            rally.QualityScore{Composite: 0.7},
			State:              decider.Active,
		})
	}
	return recs
}

func TestGeneratePlotsWritesFiles(t *testing.T) {
	t.Parallel()

	rp := NewRunPlotter()
	dir := filepath.Join(t.TempDir(), "plots")
	require.NoError(t, rp.Start(dir))
	require.True(t, rp.IsEnabled())

	for _, rec := range syntheticRecords(60) {
		rp.RecordFrame(rec)
	}
	rp.RecordDiagnostic("dropped out-of-order frame at t=0.500")
	rp.Stop()

	count, err := rp.GeneratePlots()
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	for _, name := range []string{"position.png", "confidence.png", "physics.png", "state.png"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Greater(t, info.Size(), int64(0), name)
	}

	assert.Equal(t, 60, rp.SampleCount())
	assert.Equal(t, []string{"dropped out-of-order frame at t=0.500"}, rp.Diagnostics())
}

func TestDisabledPlotterDropsRecords(t *testing.T) {
	t.Parallel()

	rp := NewRunPlotter()
	rp.RecordFrame(pipeline.FrameRecord{})
	rp.RecordDiagnostic("ignored")
	assert.Equal(t, 0, rp.SampleCount())
	assert.Empty(t, rp.Diagnostics())

	_, err := rp.GeneratePlots()
	assert.Error(t, err) // no output directory configured
}

func TestEmptyRunGeneratesNothing(t *testing.T) {
	t.Parallel()

	rp := NewRunPlotter()
	require.NoError(t, rp.Start(t.TempDir()))
	count, err := rp.GeneratePlots()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
