// Package sqlite persists finished processing runs: one row per run with its
// aggregate stats and one row per emitted rally segment. Results storage
// only; the processing core never touches the database.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bumpsetcut/rallycore/internal/rally"
	"github.com/bumpsetcut/rallycore/internal/rally/pipeline"
)

type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the results database at path and ensures
// the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			source TEXT,
			preset TEXT,
			video_duration DOUBLE,
			frames INTEGER,
			detections INTEGER,
			detections_accepted INTEGER,
			valid_percent DOUBLE,
			mean_quality DOUBLE,
			numerical_resets INTEGER,
			segment_count INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS segments (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			start_time DOUBLE NOT NULL,
			end_time DOUBLE NOT NULL,
			confidence DOUBLE,
			quality DOUBLE,
			max_confidence DOUBLE,
			detection_count INTEGER,
			avg_trajectory_length DOUBLE,
			estimated_contacts INTEGER,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure results schema: %w", err)
	}
	return &Store{db}, nil
}

// Run describes one persisted processing run.
type Run struct {
	ID            string
	Source        string
	Preset        string
	VideoDuration float64
	SegmentCount  int
	CreatedAt     time.Time
}

// SaveRun stores a finished run and its segments in one transaction and
// returns the generated run ID.
func (s *Store) SaveRun(source, preset string, videoDuration float64, stats pipeline.ProcessingStats, segs []rally.RallySegment) (string, error) {
	runID := uuid.NewString()

	tx, err := s.Begin()
	if err != nil {
		return "", fmt.Errorf("begin run tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO runs
		(run_id, source, preset, video_duration, frames, detections, detections_accepted,
		 valid_percent, mean_quality, numerical_resets, segment_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, source, preset, videoDuration,
		stats.FramesProcessed, stats.DetectionsSeen, stats.DetectionsAccepted,
		stats.PhysicsValidPercent(), stats.MeanQuality(), stats.NumericalResets, len(segs))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for i, seg := range segs {
		_, err = tx.Exec(`INSERT INTO segments
			(run_id, seq, start_time, end_time, confidence, quality, max_confidence,
			 detection_count, avg_trajectory_length, estimated_contacts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, i, seg.StartTime, seg.EndTime, seg.Confidence, seg.Quality,
			seg.MaxConfidence, seg.DetectionCount, seg.AverageTrajectoryLength, seg.EstimatedContacts)
		if err != nil {
			return "", fmt.Errorf("insert segment %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return runID, nil
}

// Segments returns a run's segments ordered by start time.
func (s *Store) Segments(runID string) ([]rally.RallySegment, error) {
	rows, err := s.Query(`SELECT start_time, end_time, confidence, quality, max_confidence,
		detection_count, avg_trajectory_length, estimated_contacts
		FROM segments WHERE run_id = ? ORDER BY start_time`, runID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segs []rally.RallySegment
	for rows.Next() {
		var seg rally.RallySegment
		if err := rows.Scan(&seg.StartTime, &seg.EndTime, &seg.Confidence, &seg.Quality,
			&seg.MaxConfidence, &seg.DetectionCount, &seg.AverageTrajectoryLength,
			&seg.EstimatedContacts); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

// SegmentsInRange returns a run's segments overlapping [from, to).
func (s *Store) SegmentsInRange(runID string, from, to float64) ([]rally.RallySegment, error) {
	rows, err := s.Query(`SELECT start_time, end_time, confidence, quality, max_confidence,
		detection_count, avg_trajectory_length, estimated_contacts
		FROM segments WHERE run_id = ? AND end_time > ? AND start_time < ?
		ORDER BY start_time`, runID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query segments in range: %w", err)
	}
	defer rows.Close()

	var segs []rally.RallySegment
	for rows.Next() {
		var seg rally.RallySegment
		if err := rows.Scan(&seg.StartTime, &seg.EndTime, &seg.Confidence, &seg.Quality,
			&seg.MaxConfidence, &seg.DetectionCount, &seg.AverageTrajectoryLength,
			&seg.EstimatedContacts); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

// Runs lists persisted runs, newest first.
func (s *Store) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Query(`SELECT run_id, source, preset, video_duration, segment_count, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Source, &r.Preset, &r.VideoDuration, &r.SegmentCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
