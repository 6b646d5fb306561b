// Package config holds every tunable threshold and weight of the rally
// detection core in a single Config struct. A Config is loaded (or built from
// a preset) once per processing run, validated before the first frame, and
// treated as read-only afterwards. Partial configs are expressed as an
// Overrides value of pointer fields merged into a base Config.
package config

import (
	"fmt"
	"math"
)

// Config is the complete tuning surface of the rally detection core.
// Positions and distances are in normalized image coordinates (unit square,
// +y down), velocities in units/s, accelerations in units/s², times in
// seconds.
type Config struct {
	// Sampling
	FrameRate       float64 `json:"frame_rate"`        // nominal detector frame rate, Hz
	DefaultTimeStep float64 `json:"default_time_step"` // predict dt when no timestamps are available

	// State estimator (Kalman tracker)
	ProcessNoisePosition     float64 `json:"process_noise_position"`
	ProcessNoiseVelocity     float64 `json:"process_noise_velocity"`
	MeasurementNoise         float64 `json:"measurement_noise"`
	MinMeasurementConfidence float64 `json:"min_measurement_confidence"` // floor for confidence-scaled R
	GateSigma                float64 `json:"gate_sigma"`                 // innovation gate, standard deviations
	Gravity                  float64 `json:"gravity"`                    // downward acceleration, units/s²
	MaxSpeed                 float64 `json:"max_speed"`                  // velocity magnitude clamp, units/s
	MaxTrajectoryHistory     int     `json:"max_trajectory_history"`     // ring buffer capacity, samples
	ConfidenceDecayRate      float64 `json:"confidence_decay_rate"`
	ConfidenceBoost          float64 `json:"confidence_boost"` // added on each accepted measurement
	VelocityChangeThreshold  float64 `json:"velocity_change_threshold"`

	// Trajectory validator (physics gate)
	FitWindowSeconds  float64 `json:"fit_window_seconds"`
	MinPointsForFit   int     `json:"min_points_for_fit"`
	MinRSquared       float64 `json:"min_r_squared"`
	RSquaredGood      float64 `json:"r_squared_good"`
	RSquaredExcellent float64 `json:"r_squared_excellent"`
	MaxJumpPerFrame   float64 `json:"max_jump_per_frame"`
	ROIRadius         float64 `json:"roi_radius"`
	MinActiveVelocity float64 `json:"min_active_velocity"`
	GravityBandWanted bool    `json:"gravity_band_wanted"` // apply the curvature band check
	GravityBandLow    float64 `json:"gravity_band_low"`    // fitted vertical acceleration, units/s²
	GravityBandHigh   float64 `json:"gravity_band_high"`
	MaxVelocityX      float64 `json:"max_velocity_x"` // per-axis caps for velocity consistency
	MaxVelocityY      float64 `json:"max_velocity_y"`
	MaxAccelVariance  float64 `json:"max_accel_variance"`  // smoothness normalization
	VerticalMotionRef float64 `json:"vertical_motion_ref"` // vertical range mapping to score 1.0

	// Movement classifier
	AirborneMinBallistic        float64 `json:"airborne_min_ballistic"`
	AirborneMinSmoothness       float64 `json:"airborne_min_smoothness"`
	RollingMaxVerticalMotion    float64 `json:"rolling_max_vertical_motion"`
	RollingMinSmoothness        float64 `json:"rolling_min_smoothness"`
	RollingMaxAcceleration      float64 `json:"rolling_max_acceleration"` // mean |a|, units/s²
	CarriedMinInconsistency     float64 `json:"carried_min_inconsistency"`
	CarriedMaxSmoothness        float64 `json:"carried_max_smoothness"`
	MinClassificationConfidence float64 `json:"min_classification_confidence"`

	// Quality scorer. The four weights must sum to 1.0 within ±0.01.
	WeightVelocityConsistency float64 `json:"weight_velocity_consistency"`
	WeightAccelerationPattern float64 `json:"weight_acceleration_pattern"`
	WeightSmoothness          float64 `json:"weight_smoothness"`
	WeightVerticalMotion      float64 `json:"weight_vertical_motion"`
	QualityGood               float64 `json:"quality_good"`
	QualityExcellent          float64 `json:"quality_excellent"`
	MinQuality                float64 `json:"min_quality"`

	// Rally state machine
	StartBuffer           float64 `json:"start_buffer"`            // seconds reached backward at rally start
	EndTimeout            float64 `json:"end_timeout"`             // inactivity before a rally may close
	DropGraceFrames       int     `json:"drop_grace_frames"`       // consecutive invalid frames tolerated
	SecondaryGraceSeconds float64 `json:"secondary_grace_seconds"` // secondary-presence absence tolerated
	MinContactSeparation  float64 `json:"min_contact_separation"`  // seconds between counted contacts

	// Segment builder
	PrerollSeconds        float64 `json:"preroll_seconds"`
	PostrollSeconds       float64 `json:"postroll_seconds"`
	MergeGapSeconds       float64 `json:"merge_gap_seconds"`
	MinSegmentSeconds     float64 `json:"min_segment_seconds"`
	ShortSegmentThreshold float64 `json:"short_segment_threshold"` // rallies under this get a capped pre-roll
	MaxPrerollForShort    float64 `json:"max_preroll_for_short"`
}

// quality weights must sum to 1.0 within this tolerance.
const weightSumTolerance = 0.01

// DefaultConfig returns the baseline tuning. Values are calibrated for
// 30 fps normalized-coordinate detection streams of court sports.
func DefaultConfig() Config {
	return Config{
		FrameRate:       30.0,
		DefaultTimeStep: 1.0 / 30.0,

		ProcessNoisePosition:     0.001,
		ProcessNoiseVelocity:     0.01,
		MeasurementNoise:         0.0004,
		MinMeasurementConfidence: 0.1,
		GateSigma:                4.0,
		Gravity:                  2.5,
		MaxSpeed:                 5.0,
		MaxTrajectoryHistory:     300,
		ConfidenceDecayRate:      0.95,
		ConfidenceBoost:          0.1,
		VelocityChangeThreshold:  1.2,

		FitWindowSeconds:  0.8,
		MinPointsForFit:   5,
		MinRSquared:       0.55,
		RSquaredGood:      0.75,
		RSquaredExcellent: 0.90,
		MaxJumpPerFrame:   0.15,
		ROIRadius:         0.12,
		MinActiveVelocity: 0.10,
		GravityBandWanted: true,
		GravityBandLow:    0.5,
		GravityBandHigh:   6.0,
		MaxVelocityX:      3.0,
		MaxVelocityY:      3.0,
		MaxAccelVariance:  40.0,
		VerticalMotionRef: 0.25,

		AirborneMinBallistic:        0.70,
		AirborneMinSmoothness:       0.50,
		RollingMaxVerticalMotion:    0.15,
		RollingMinSmoothness:        0.60,
		RollingMaxAcceleration:      0.80,
		CarriedMinInconsistency:     0.50,
		CarriedMaxSmoothness:        0.40,
		MinClassificationConfidence: 0.30,

		WeightVelocityConsistency: 0.30,
		WeightAccelerationPattern: 0.30,
		WeightSmoothness:          0.20,
		WeightVerticalMotion:      0.20,
		QualityGood:               0.65,
		QualityExcellent:          0.80,
		MinQuality:                0.45,

		StartBuffer:           0.3,
		EndTimeout:            1.0,
		DropGraceFrames:       3,
		SecondaryGraceSeconds: 2.0,
		MinContactSeparation:  0.3,

		PrerollSeconds:        0.5,
		PostrollSeconds:       0.3,
		MergeGapSeconds:       1.5,
		MinSegmentSeconds:     2.0,
		ShortSegmentThreshold: 3.0,
		MaxPrerollForShort:    0.25,
	}
}

// Preset names accepted by Preset and the CLI -preset flag.
const (
	PresetDefault       = "default"
	PresetOutdoorLoose  = "outdoor-loose"
	PresetIndoorTight   = "indoor-tight"
	PresetHighPrecision = "high-precision"
)

// Preset returns a named tuning preset. outdoor-loose trades false positives
// for recall (windy courts, long shots); indoor-tight is the conservative
// gym tuning; high-precision keeps only the cleanest rallies.
func Preset(name string) (Config, error) {
	c := DefaultConfig()
	switch name {
	case "", PresetDefault:
		return c, nil
	case PresetOutdoorLoose:
		c.MinRSquared = 0.45
		c.GravityBandLow = 0.3
		c.GravityBandHigh = 8.0
		c.MinQuality = 0.35
		c.MinSegmentSeconds = 1.0
		c.MergeGapSeconds = 2.0
		return c, nil
	case PresetIndoorTight:
		c.MinRSquared = 0.65
		c.MinQuality = 0.55
		c.AirborneMinBallistic = 0.75
		c.EndTimeout = 0.8
		return c, nil
	case PresetHighPrecision:
		c.MinRSquared = 0.75
		c.MinQuality = 0.65
		c.QualityExcellent = 0.85
		c.AirborneMinBallistic = 0.80
		c.MinSegmentSeconds = 3.0
		return c, nil
	default:
		return Config{}, fmt.Errorf("unknown config preset %q", name)
	}
}

// ValidationError reports a single invalid configuration field. Config
// validation fails fast on the first violation; a ValidationError is the
// only fatal error kind the core produces.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, v ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, v...)}
}

// Validate checks every tunable for range and mutual-consistency violations.
// It must pass before any frame is processed; values are never silently
// clamped.
func (c *Config) Validate() error {
	if c.FrameRate <= 0 {
		return invalid("frame_rate", "must be positive, got %g", c.FrameRate)
	}
	if c.DefaultTimeStep <= 0 {
		return invalid("default_time_step", "must be positive, got %g", c.DefaultTimeStep)
	}
	if r := c.DefaultTimeStep * c.FrameRate; math.Abs(r-1.0) > 0.01 {
		return invalid("default_time_step",
			"inconsistent with frame_rate: %g * %g Hz = %g, want 1.0 +/- 0.01",
			c.DefaultTimeStep, c.FrameRate, r)
	}

	if c.ProcessNoisePosition <= 0 {
		return invalid("process_noise_position", "must be positive, got %g", c.ProcessNoisePosition)
	}
	if c.ProcessNoiseVelocity <= 0 {
		return invalid("process_noise_velocity", "must be positive, got %g", c.ProcessNoiseVelocity)
	}
	if c.MeasurementNoise <= 0 {
		return invalid("measurement_noise", "must be positive, got %g", c.MeasurementNoise)
	}
	if c.MinMeasurementConfidence <= 0 || c.MinMeasurementConfidence > 1 {
		return invalid("min_measurement_confidence", "must be in (0, 1], got %g", c.MinMeasurementConfidence)
	}
	if c.GateSigma <= 0 {
		return invalid("gate_sigma", "must be positive, got %g", c.GateSigma)
	}
	if c.Gravity <= 0 {
		return invalid("gravity", "must be positive, got %g", c.Gravity)
	}
	if c.MaxSpeed <= 0 {
		return invalid("max_speed", "must be positive, got %g", c.MaxSpeed)
	}
	if c.MaxTrajectoryHistory <= 0 {
		return invalid("max_trajectory_history", "must be positive, got %d", c.MaxTrajectoryHistory)
	}
	if c.ConfidenceDecayRate <= 0 || c.ConfidenceDecayRate > 1 {
		return invalid("confidence_decay_rate", "must be in (0, 1], got %g", c.ConfidenceDecayRate)
	}
	if c.ConfidenceBoost < 0 || c.ConfidenceBoost > 1 {
		return invalid("confidence_boost", "must be in [0, 1], got %g", c.ConfidenceBoost)
	}
	if c.VelocityChangeThreshold <= 0 {
		return invalid("velocity_change_threshold", "must be positive, got %g", c.VelocityChangeThreshold)
	}

	if c.FitWindowSeconds <= 0 {
		return invalid("fit_window_seconds", "must be positive, got %g", c.FitWindowSeconds)
	}
	if c.MinPointsForFit < 3 {
		return invalid("min_points_for_fit", "quadratic fit needs at least 3 points, got %d", c.MinPointsForFit)
	}
	if c.MinRSquared < 0 || c.MinRSquared > 1 {
		return invalid("min_r_squared", "must be in [0, 1], got %g", c.MinRSquared)
	}
	if c.RSquaredGood < c.MinRSquared || c.RSquaredExcellent < c.RSquaredGood || c.RSquaredExcellent > 1 {
		return invalid("r_squared_good", "tiers must order min <= good <= excellent <= 1, got %g/%g/%g",
			c.MinRSquared, c.RSquaredGood, c.RSquaredExcellent)
	}
	if c.MaxJumpPerFrame <= 0 {
		return invalid("max_jump_per_frame", "must be positive, got %g", c.MaxJumpPerFrame)
	}
	if c.ROIRadius <= 0 {
		return invalid("roi_radius", "must be positive, got %g", c.ROIRadius)
	}
	if c.MinActiveVelocity < 0 {
		return invalid("min_active_velocity", "must be non-negative, got %g", c.MinActiveVelocity)
	}
	if c.GravityBandWanted && c.GravityBandLow >= c.GravityBandHigh {
		return invalid("gravity_band_low", "band low %g must be below band high %g", c.GravityBandLow, c.GravityBandHigh)
	}
	if c.MaxVelocityX <= 0 || c.MaxVelocityY <= 0 {
		return invalid("max_velocity_x", "per-axis velocity caps must be positive, got %g/%g", c.MaxVelocityX, c.MaxVelocityY)
	}
	if c.MaxAccelVariance <= 0 {
		return invalid("max_accel_variance", "must be positive, got %g", c.MaxAccelVariance)
	}
	if c.VerticalMotionRef <= 0 {
		return invalid("vertical_motion_ref", "must be positive, got %g", c.VerticalMotionRef)
	}

	for _, f := range []struct {
		name string
		v    float64
	}{
		{"airborne_min_ballistic", c.AirborneMinBallistic},
		{"airborne_min_smoothness", c.AirborneMinSmoothness},
		{"rolling_max_vertical_motion", c.RollingMaxVerticalMotion},
		{"rolling_min_smoothness", c.RollingMinSmoothness},
		{"carried_min_inconsistency", c.CarriedMinInconsistency},
		{"carried_max_smoothness", c.CarriedMaxSmoothness},
		{"min_classification_confidence", c.MinClassificationConfidence},
	} {
		if f.v < 0 || f.v > 1 {
			return invalid(f.name, "must be in [0, 1], got %g", f.v)
		}
	}
	if c.RollingMaxAcceleration <= 0 {
		return invalid("rolling_max_acceleration", "must be positive, got %g", c.RollingMaxAcceleration)
	}

	sum := c.WeightVelocityConsistency + c.WeightAccelerationPattern +
		c.WeightSmoothness + c.WeightVerticalMotion
	if math.Abs(sum-1.0) > weightSumTolerance {
		return invalid("quality weights", "must sum to 1.0 +/- %g, got %g", weightSumTolerance, sum)
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"weight_velocity_consistency", c.WeightVelocityConsistency},
		{"weight_acceleration_pattern", c.WeightAccelerationPattern},
		{"weight_smoothness", c.WeightSmoothness},
		{"weight_vertical_motion", c.WeightVerticalMotion},
	} {
		if f.v < 0 {
			return invalid(f.name, "must be non-negative, got %g", f.v)
		}
	}
	if c.MinQuality < 0 || c.MinQuality > 1 {
		return invalid("min_quality", "must be in [0, 1], got %g", c.MinQuality)
	}
	if c.QualityGood < c.MinQuality || c.QualityExcellent < c.QualityGood || c.QualityExcellent > 1 {
		return invalid("quality_good", "tiers must order min <= good <= excellent <= 1, got %g/%g/%g",
			c.MinQuality, c.QualityGood, c.QualityExcellent)
	}

	if c.StartBuffer < 0 {
		return invalid("start_buffer", "must be non-negative, got %g", c.StartBuffer)
	}
	if c.EndTimeout <= 0 {
		return invalid("end_timeout", "must be positive, got %g", c.EndTimeout)
	}
	if c.DropGraceFrames < 0 {
		return invalid("drop_grace_frames", "must be non-negative, got %d", c.DropGraceFrames)
	}
	if c.SecondaryGraceSeconds < 0 {
		return invalid("secondary_grace_seconds", "must be non-negative, got %g", c.SecondaryGraceSeconds)
	}
	if c.MinContactSeparation <= 0 {
		return invalid("min_contact_separation", "must be positive, got %g", c.MinContactSeparation)
	}

	if c.PrerollSeconds < 0 || c.PostrollSeconds < 0 {
		return invalid("preroll_seconds", "padding must be non-negative, got %g/%g", c.PrerollSeconds, c.PostrollSeconds)
	}
	if c.MergeGapSeconds < 0 {
		return invalid("merge_gap_seconds", "must be non-negative, got %g", c.MergeGapSeconds)
	}
	if c.MinSegmentSeconds <= 0 {
		return invalid("min_segment_seconds", "must be positive, got %g", c.MinSegmentSeconds)
	}
	if c.ShortSegmentThreshold <= 0 {
		return invalid("short_segment_threshold", "must be positive, got %g", c.ShortSegmentThreshold)
	}
	if c.MaxPrerollForShort < 0 || c.MaxPrerollForShort > c.PrerollSeconds {
		return invalid("max_preroll_for_short", "must be in [0, preroll_seconds=%g], got %g",
			c.PrerollSeconds, c.MaxPrerollForShort)
	}

	return nil
}
