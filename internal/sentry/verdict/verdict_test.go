package verdict

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

func TestClassifyInternalIsAlwaysBenign(t *testing.T) {
	require.Equal(t, model.VerdictBenign, Classify(100, model.RiskSuspicious, model.TrustUnknown, 5, true))
}

func TestClassifyLegitimateBaseLine(t *testing.T) {
	require.Equal(t, model.VerdictBenign, Classify(40, model.RiskLegitimate, model.TrustTrusted, 0, false))
	require.Equal(t, model.VerdictLowRisk, Classify(55, model.RiskLegitimate, model.TrustTrusted, 0, false))
}

func TestClassifyScenarioS3ConfirmedMalicious(t *testing.T) {
	// ConfirmedMalicious needs a score of at least 95; at 90 the same
	// inputs land in the likely-malicious tier.
	got := Classify(95, model.RiskSuspicious, model.TrustUnknown, 2, false)
	require.Equal(t, model.VerdictConfirmedMalicious, got)
	require.Equal(t, model.VerdictLikelyMalicious, Classify(90, model.RiskSuspicious, model.TrustUnknown, 2, false))
}

func TestClassifyLikelyMaliciousRequiresOneCorrelation(t *testing.T) {
	require.Equal(t, model.VerdictLikelyMalicious, Classify(86, model.RiskSuspicious, model.TrustUnknown, 1, false))
	require.Equal(t, model.VerdictSuspicious, Classify(86, model.RiskSuspicious, model.TrustUnknown, 0, false),
		"without a correlation hit, score 86 falls back to the plain suspicious tier")
}

func TestClassifyTrustedNeverEscalatesPastSuspicious(t *testing.T) {
	got := Classify(99, model.RiskSuspicious, model.TrustTrusted, 5, false)
	require.Equal(t, model.VerdictSuspicious, got, "a trusted binary cannot reach likely/confirmed malicious regardless of score")
}

func TestClassifyLowRiskFloor(t *testing.T) {
	require.Equal(t, model.VerdictLowRisk, Classify(35, model.RiskSuspicious, model.TrustTrusted, 0, false))
	require.Equal(t, model.VerdictBenign, Classify(34, model.RiskSuspicious, model.TrustTrusted, 0, false))
}

func TestComputeRiskScoreCapsAtOneHundred(t *testing.T) {
	require.Equal(t, uint8(100), ComputeRiskScore(90, 22))
	require.Equal(t, uint8(82), ComputeRiskScore(70, 12))
}
