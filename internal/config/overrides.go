package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Overrides is a partial configuration: every field is optional and only
// non-nil fields are merged into a base Config. The JSON schema mirrors
// Config field for field, plus "preset" naming the base to start from, so a
// tuning file can carry just the handful of values under experiment.
type Overrides struct {
	Preset *string `json:"preset,omitempty"`

	FrameRate       *float64 `json:"frame_rate,omitempty"`
	DefaultTimeStep *float64 `json:"default_time_step,omitempty"`

	ProcessNoisePosition     *float64 `json:"process_noise_position,omitempty"`
	ProcessNoiseVelocity     *float64 `json:"process_noise_velocity,omitempty"`
	MeasurementNoise         *float64 `json:"measurement_noise,omitempty"`
	MinMeasurementConfidence *float64 `json:"min_measurement_confidence,omitempty"`
	GateSigma                *float64 `json:"gate_sigma,omitempty"`
	Gravity                  *float64 `json:"gravity,omitempty"`
	MaxSpeed                 *float64 `json:"max_speed,omitempty"`
	MaxTrajectoryHistory     *int     `json:"max_trajectory_history,omitempty"`
	ConfidenceDecayRate      *float64 `json:"confidence_decay_rate,omitempty"`
	ConfidenceBoost          *float64 `json:"confidence_boost,omitempty"`
	VelocityChangeThreshold  *float64 `json:"velocity_change_threshold,omitempty"`

	FitWindowSeconds  *float64 `json:"fit_window_seconds,omitempty"`
	MinPointsForFit   *int     `json:"min_points_for_fit,omitempty"`
	MinRSquared       *float64 `json:"min_r_squared,omitempty"`
	RSquaredGood      *float64 `json:"r_squared_good,omitempty"`
	RSquaredExcellent *float64 `json:"r_squared_excellent,omitempty"`
	MaxJumpPerFrame   *float64 `json:"max_jump_per_frame,omitempty"`
	ROIRadius         *float64 `json:"roi_radius,omitempty"`
	MinActiveVelocity *float64 `json:"min_active_velocity,omitempty"`
	GravityBandWanted *bool    `json:"gravity_band_wanted,omitempty"`
	GravityBandLow    *float64 `json:"gravity_band_low,omitempty"`
	GravityBandHigh   *float64 `json:"gravity_band_high,omitempty"`
	MaxVelocityX      *float64 `json:"max_velocity_x,omitempty"`
	MaxVelocityY      *float64 `json:"max_velocity_y,omitempty"`
	MaxAccelVariance  *float64 `json:"max_accel_variance,omitempty"`
	VerticalMotionRef *float64 `json:"vertical_motion_ref,omitempty"`

	AirborneMinBallistic        *float64 `json:"airborne_min_ballistic,omitempty"`
	AirborneMinSmoothness       *float64 `json:"airborne_min_smoothness,omitempty"`
	RollingMaxVerticalMotion    *float64 `json:"rolling_max_vertical_motion,omitempty"`
	RollingMinSmoothness        *float64 `json:"rolling_min_smoothness,omitempty"`
	RollingMaxAcceleration      *float64 `json:"rolling_max_acceleration,omitempty"`
	CarriedMinInconsistency     *float64 `json:"carried_min_inconsistency,omitempty"`
	CarriedMaxSmoothness        *float64 `json:"carried_max_smoothness,omitempty"`
	MinClassificationConfidence *float64 `json:"min_classification_confidence,omitempty"`

	WeightVelocityConsistency *float64 `json:"weight_velocity_consistency,omitempty"`
	WeightAccelerationPattern *float64 `json:"weight_acceleration_pattern,omitempty"`
	WeightSmoothness          *float64 `json:"weight_smoothness,omitempty"`
	WeightVerticalMotion      *float64 `json:"weight_vertical_motion,omitempty"`
	QualityGood               *float64 `json:"quality_good,omitempty"`
	QualityExcellent          *float64 `json:"quality_excellent,omitempty"`
	MinQuality                *float64 `json:"min_quality,omitempty"`

	StartBuffer           *float64 `json:"start_buffer,omitempty"`
	EndTimeout            *float64 `json:"end_timeout,omitempty"`
	DropGraceFrames       *int     `json:"drop_grace_frames,omitempty"`
	SecondaryGraceSeconds *float64 `json:"secondary_grace_seconds,omitempty"`
	MinContactSeparation  *float64 `json:"min_contact_separation,omitempty"`

	PrerollSeconds        *float64 `json:"preroll_seconds,omitempty"`
	PostrollSeconds       *float64 `json:"postroll_seconds,omitempty"`
	MergeGapSeconds       *float64 `json:"merge_gap_seconds,omitempty"`
	MinSegmentSeconds     *float64 `json:"min_segment_seconds,omitempty"`
	ShortSegmentThreshold *float64 `json:"short_segment_threshold,omitempty"`
	MaxPrerollForShort    *float64 `json:"max_preroll_for_short,omitempty"`
}

func setF(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setI(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setB(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// Apply merges the non-nil fields of o into c. The Preset field is not
// applied here; Resolve handles preset selection before merging.
func (o *Overrides) Apply(c *Config) {
	setF(&c.FrameRate, o.FrameRate)
	setF(&c.DefaultTimeStep, o.DefaultTimeStep)

	setF(&c.ProcessNoisePosition, o.ProcessNoisePosition)
	setF(&c.ProcessNoiseVelocity, o.ProcessNoiseVelocity)
	setF(&c.MeasurementNoise, o.MeasurementNoise)
	setF(&c.MinMeasurementConfidence, o.MinMeasurementConfidence)
	setF(&c.GateSigma, o.GateSigma)
	setF(&c.Gravity, o.Gravity)
	setF(&c.MaxSpeed, o.MaxSpeed)
	setI(&c.MaxTrajectoryHistory, o.MaxTrajectoryHistory)
	setF(&c.ConfidenceDecayRate, o.ConfidenceDecayRate)
	setF(&c.ConfidenceBoost, o.ConfidenceBoost)
	setF(&c.VelocityChangeThreshold, o.VelocityChangeThreshold)

	setF(&c.FitWindowSeconds, o.FitWindowSeconds)
	setI(&c.MinPointsForFit, o.MinPointsForFit)
	setF(&c.MinRSquared, o.MinRSquared)
	setF(&c.RSquaredGood, o.RSquaredGood)
	setF(&c.RSquaredExcellent, o.RSquaredExcellent)
	setF(&c.MaxJumpPerFrame, o.MaxJumpPerFrame)
	setF(&c.ROIRadius, o.ROIRadius)
	setF(&c.MinActiveVelocity, o.MinActiveVelocity)
	setB(&c.GravityBandWanted, o.GravityBandWanted)
	setF(&c.GravityBandLow, o.GravityBandLow)
	setF(&c.GravityBandHigh, o.GravityBandHigh)
	setF(&c.MaxVelocityX, o.MaxVelocityX)
	setF(&c.MaxVelocityY, o.MaxVelocityY)
	setF(&c.MaxAccelVariance, o.MaxAccelVariance)
	setF(&c.VerticalMotionRef, o.VerticalMotionRef)

	setF(&c.AirborneMinBallistic, o.AirborneMinBallistic)
	setF(&c.AirborneMinSmoothness, o.AirborneMinSmoothness)
	setF(&c.RollingMaxVerticalMotion, o.RollingMaxVerticalMotion)
	setF(&c.RollingMinSmoothness, o.RollingMinSmoothness)
	setF(&c.RollingMaxAcceleration, o.RollingMaxAcceleration)
	setF(&c.CarriedMinInconsistency, o.CarriedMinInconsistency)
	setF(&c.CarriedMaxSmoothness, o.CarriedMaxSmoothness)
	setF(&c.MinClassificationConfidence, o.MinClassificationConfidence)

	setF(&c.WeightVelocityConsistency, o.WeightVelocityConsistency)
	setF(&c.WeightAccelerationPattern, o.WeightAccelerationPattern)
	setF(&c.WeightSmoothness, o.WeightSmoothness)
	setF(&c.WeightVerticalMotion, o.WeightVerticalMotion)
	setF(&c.QualityGood, o.QualityGood)
	setF(&c.QualityExcellent, o.QualityExcellent)
	setF(&c.MinQuality, o.MinQuality)

	setF(&c.StartBuffer, o.StartBuffer)
	setF(&c.EndTimeout, o.EndTimeout)
	setI(&c.DropGraceFrames, o.DropGraceFrames)
	setF(&c.SecondaryGraceSeconds, o.SecondaryGraceSeconds)
	setF(&c.MinContactSeparation, o.MinContactSeparation)

	setF(&c.PrerollSeconds, o.PrerollSeconds)
	setF(&c.PostrollSeconds, o.PostrollSeconds)
	setF(&c.MergeGapSeconds, o.MergeGapSeconds)
	setF(&c.MinSegmentSeconds, o.MinSegmentSeconds)
	setF(&c.ShortSegmentThreshold, o.ShortSegmentThreshold)
	setF(&c.MaxPrerollForShort, o.MaxPrerollForShort)
}

// Resolve builds a validated Config: the named preset (or the preset named
// inside o, or the default) with o's non-nil fields merged on top. A nil o
// is allowed.
func Resolve(presetName string, o *Overrides) (Config, error) {
	if presetName == "" && o != nil && o.Preset != nil {
		presetName = *o.Preset
	}
	c, err := Preset(presetName)
	if err != nil {
		return Config{}, err
	}
	if o != nil {
		o.Apply(&c)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// maxConfigFileSize bounds tuning files; anything larger is a mistake.
const maxConfigFileSize = 1 * 1024 * 1024

// LoadOverrides reads a partial tuning config from a JSON file. The file
// must have a .json extension and stay under maxConfigFileSize; fields it
// omits keep their preset values. Unknown fields are rejected so a typo in
// a parameter name fails loudly instead of silently tuning nothing.
func LoadOverrides(path string) (*Overrides, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	o := &Overrides{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(o); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return o, nil
}
