// Package classify labels a trajectory window as airborne, rolling, carried,
// or unknown from the physics gate's sub-scores. Rules are deterministic
// thresholds evaluated first-match-wins in a fixed order.
package classify

import (
	"math"

	"github.com/bumpsetcut/rallycore/internal/config"
	"github.com/bumpsetcut/rallycore/internal/rally"
	"github.com/bumpsetcut/rallycore/internal/rally/gate"
)

// Classifier applies the movement rules. Stateless apart from config.
type Classifier struct {
	cfg config.Config
}

func New(cfg config.Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify evaluates the rules in the fixed order airborne, rolling,
// carried, unknown. The order is load-bearing: a clean parabola must win
// over the rolling rule's looser smoothness demands. A match whose
// confidence falls below the configured minimum is demoted to unknown;
// unknown never contributes positive rally evidence.
func (c *Classifier) Classify(res gate.Result) rally.Classification {
	s := res.Score
	out := c.match(res, s)
	if out.Class != rally.MovementUnknown && out.Confidence < c.cfg.MinClassificationConfidence {
		out.Class = rally.MovementUnknown
	}
	return out
}

func (c *Classifier) match(res gate.Result, s rally.PhysicsScore) rally.Classification {
	// Airborne: good ballistic fit, smooth, curving the way gravity pulls.
	if s.BallisticScore() >= c.cfg.AirborneMinBallistic &&
		s.Smoothness >= c.cfg.AirborneMinSmoothness &&
		res.Curvature > 0 && s.AccelerationPattern >= 0.5 {
		return rally.Classification{
			Class:      rally.MovementAirborne,
			Confidence: (s.BallisticScore() + s.Smoothness) / 2,
		}
	}

	// Rolling: flat, smooth, gently decelerating. Confidence scales with
	// the measured deceleration; a window with no acceleration at all
	// carries no ground-contact evidence and demotes to unknown.
	if s.VerticalMotion <= c.cfg.RollingMaxVerticalMotion &&
		s.Smoothness >= c.cfg.RollingMinSmoothness &&
		res.MeanAccel <= c.cfg.RollingMaxAcceleration {
		return rally.Classification{
			Class:      rally.MovementRolling,
			Confidence: s.Smoothness * clamp01(res.MeanAccel/c.cfg.RollingMaxAcceleration),
		}
	}

	// Carried: erratic, hand-damped motion. Inconsistency is the inverse
	// of how ballistic the inter-sample velocities and curvature look.
	inconsistency := 1 - (s.VelocityConsistency+s.AccelerationPattern)/2
	if inconsistency >= c.cfg.CarriedMinInconsistency &&
		s.Smoothness <= c.cfg.CarriedMaxSmoothness {
		return rally.Classification{
			Class:      rally.MovementCarried,
			Confidence: (inconsistency + (1 - s.Smoothness)) / 2,
		}
	}

	return rally.Classification{Class: rally.MovementUnknown}
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
