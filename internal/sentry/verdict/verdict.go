// Package verdict implements the final threat classifier (C6): a
// pure, total function over risk score, base suspicion level, trust,
// correlation count, and whether the process is the engine's own.
package verdict

import "github.com/sentrymesh/nyxsentry/internal/sentry/model"

// Classify implements §4.6's decision table.
func Classify(riskScore uint8, baseLevel model.RiskLevel, trust model.TrustLevel, correlationCount int, internal bool) model.ThreatVerdict {
	if internal {
		return model.VerdictBenign
	}

	if baseLevel == model.RiskLegitimate {
		if riskScore >= 55 {
			return model.VerdictLowRisk
		}
		return model.VerdictBenign
	}

	untrusted := trust == model.TrustUnknown
	suspicious := baseLevel == model.RiskSuspicious

	switch {
	case suspicious && untrusted && riskScore >= 95 && correlationCount >= 2:
		return model.VerdictConfirmedMalicious
	case suspicious && untrusted && riskScore >= 86 && correlationCount >= 1:
		return model.VerdictLikelyMalicious
	case suspicious && riskScore >= 70:
		return model.VerdictSuspicious
	case riskScore >= 35:
		return model.VerdictLowRisk
	default:
		return model.VerdictBenign
	}
}

// ComputeRiskScore applies the capped-correlation-bonus formula from
// §4.5: the suspicion base score plus the correlation bonus total
// (itself already capped at 22 by the correlation tracker), clamped
// to 100.
func ComputeRiskScore(baseScore uint8, correlationBonus uint8) uint8 {
	total := uint16(baseScore) + uint16(correlationBonus)
	if total > 100 {
		return 100
	}
	return uint8(total)
}
