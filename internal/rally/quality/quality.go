// Package quality folds the physics sub-scores into one composite frame
// quality value via the configured weights. The weights are validated to sum
// to 1.0 at config load, so the composite stays in [0, 1] by construction.
package quality

import (
	"github.com/bumpsetcut/rallycore/internal/config"
	"github.com/bumpsetcut/rallycore/internal/rally"
)

// Scorer computes composite quality. Stateless apart from config.
type Scorer struct {
	cfg config.Config
}

func New(cfg config.Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score weights the four sub-scores and bands the result. A frame whose
// composite lands below the minimum fails quality gating entirely and is
// excluded from rally evidence even when physics validity passed.
func (s *Scorer) Score(p rally.PhysicsScore) rally.QualityScore {
	composite := s.cfg.WeightVelocityConsistency*p.VelocityConsistency +
		s.cfg.WeightAccelerationPattern*p.AccelerationPattern +
		s.cfg.WeightSmoothness*p.Smoothness +
		s.cfg.WeightVerticalMotion*p.VerticalMotion

	return rally.QualityScore{
		Composite:           composite,
		VelocityConsistency: s.cfg.WeightVelocityConsistency * p.VelocityConsistency,
		AccelerationPattern: s.cfg.WeightAccelerationPattern * p.AccelerationPattern,
		Smoothness:          s.cfg.WeightSmoothness * p.Smoothness,
		VerticalMotion:      s.cfg.WeightVerticalMotion * p.VerticalMotion,
		Tier:                s.tier(composite),
	}
}

// Passes reports whether q clears the minimum quality gate.
func (s *Scorer) Passes(q rally.QualityScore) bool {
	return q.Composite >= s.cfg.MinQuality
}

func (s *Scorer) tier(composite float64) rally.QualityTier {
	switch {
	case composite >= s.cfg.QualityExcellent:
		return rally.QualityExcellent
	case composite >= s.cfg.QualityGood:
		return rally.QualityGood
	case composite >= s.cfg.MinQuality:
		return rally.QualityAcceptable
	default:
		return rally.QualityFailed
	}
}
