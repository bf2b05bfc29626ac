package pricing

import "testing"

func TestRiskTierMultiplier(t *testing.T) {
	cases := []struct {
		tier RiskTier
		want float64
	}{
		{RiskNone, 1.0},
		{RiskLow, 1.2},
		{RiskMedium, 1.5},
		{RiskHigh, 2.0},
		{RiskTier("unknown"), 1.0},
		{RiskTier(""), 1.0},
	}

	for _, tc := range cases {
		if got := tc.tier.Multiplier(); got != tc.want {
			t.Errorf("%q.Multiplier() = %v, 期望 %v", tc.tier, got, tc.want)
		}
	}
}

func TestRiskTierValid(t *testing.T) {
	for _, tier := range []RiskTier{RiskNone, RiskLow, RiskMedium, RiskHigh} {
		if !tier.Valid() {
			t.Errorf("%q 应为合法风险等级", tier)
		}
	}
	if RiskTier("yolo").Valid() {
		t.Error("未知风险等级不应通过校验")
	}
}
