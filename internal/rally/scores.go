package rally

// PhysicsScore holds the sub-scores produced by the trajectory
// validator. All components are in [0, 1] except RSquared, which may
// be negative for fits worse than the mean; callers must clamp it
// before combining it with other scores.
type PhysicsScore struct {
	RSquared            float64
	VelocityConsistency float64
	AccelerationPattern float64
	Smoothness          float64
	VerticalMotion      float64
}

// ClampedRSquared returns RSquared clamped to [0, 1] for use in
// composite scoring.
func (p PhysicsScore) ClampedRSquared() float64 {
	if p.RSquared < 0 {
		return 0
	}
	if p.RSquared > 1 {
		return 1
	}
	return p.RSquared
}

// BallisticScore combines fit quality and acceleration-pattern
// plausibility into a single projectile-likeness value in [0, 1].
func (p PhysicsScore) BallisticScore() float64 {
	return 0.6*p.ClampedRSquared() + 0.4*p.AccelerationPattern
}

// FitTier bands the R-squared of a trajectory fit for reporting.
type FitTier string

const (
	FitExcellent  FitTier = "excellent"
	FitGood       FitTier = "good"
	FitAcceptable FitTier = "acceptable"
	FitPoor       FitTier = "poor"
)

// MovementClass labels the motion pattern of a trajectory window.
type MovementClass string

const (
	MovementAirborne MovementClass = "airborne"
	MovementCarried  MovementClass = "carried"
	MovementRolling  MovementClass = "rolling"
	MovementUnknown  MovementClass = "unknown"
)

// Classification is the movement classifier's output: a class plus a
// confidence in [0, 1]. Unknown classifications never contribute
// positive evidence to the rally state machine.
type Classification struct {
	Class      MovementClass
	Confidence float64
}

// QualityTier bands the composite quality score for reporting.
type QualityTier string

const (
	QualityExcellent  QualityTier = "excellent"
	QualityGood       QualityTier = "good"
	QualityAcceptable QualityTier = "acceptable"
	QualityFailed     QualityTier = "failed"
)

// QualityScore is the weighted composite quality value together with
// the weighted sub-scores that produced it.
type QualityScore struct {
	Composite           float64
	VelocityConsistency float64
	AccelerationPattern float64
	Smoothness          float64
	VerticalMotion      float64
	Tier                QualityTier
}
