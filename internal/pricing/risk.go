package pricing

// RiskTier is the user-selected appetite for momentum amplification.
type RiskTier string

const (
	RiskNone   RiskTier = "no_risk"
	RiskLow    RiskTier = "low_risk"
	RiskMedium RiskTier = "medium_risk"
	RiskHigh   RiskTier = "high_risk"
)

// Multiplier maps the tier to its sizing scalar. Unknown tiers fall back to
// 1.0 rather than failing.
func (t RiskTier) Multiplier() float64 {
	switch t {
	case RiskNone:
		return 1.0
	case RiskLow:
		return 1.2
	case RiskMedium:
		return 1.5
	case RiskHigh:
		return 2.0
	default:
		return 1.0
	}
}

// Valid reports whether the tier is one of the recognised values.
func (t RiskTier) Valid() bool {
	switch t {
	case RiskNone, RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}
