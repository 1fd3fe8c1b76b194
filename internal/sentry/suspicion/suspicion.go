// Package suspicion implements the heuristic scorer (C3): a pure
// function from a process's observed attributes to a suspicion score,
// level, and evidence reasons.
package suspicion

import (
	"strings"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

var scriptHosts = []string{
	"powershell.exe",
	"cmd.exe",
	"wscript.exe",
	"cscript.exe",
	"rundll32.exe",
	"mshta.exe",
}

var officeParents = []string{
	"winword.exe",
	"excel.exe",
	"powerpnt.exe",
	"outlook.exe",
	"acrord32.exe",
}

// thresholds holds the (suspicious, unknown) score cutoffs per profile.
var thresholds = map[model.DetectionProfile][2]uint8{
	model.ProfileConservative: {85, 45},
	model.ProfileBalanced:     {70, 35},
	model.ProfileAggressive:   {55, 25},
}

// Input carries the attributes the scorer needs beyond the metric
// itself — the parent's name (if known) and whether the binary's
// signature was verified.
type Input struct {
	Name       string
	ExePath    string
	ParentName string
	IsSigned   *bool
	CPUSpike   bool
	Profile    model.DetectionProfile
}

// Assess scores a process per §4.3, accumulating points for each
// matched signal and saturating at 255 before the level thresholds
// (which operate on the full range) are applied. The final Score
// field is truncated to the 0-100 range used everywhere else in the
// pipeline by the caller via risk-score computation; here it mirrors
// the original's u8 saturating arithmetic up to 255 headroom, which in
// practice never exceeds 162 given the fixed signal weights.
func Assess(in Input) model.Suspicion {
	var reasons []string
	var score uint16

	name := strings.ToLower(in.Name)
	parent := strings.ToLower(in.ParentName)
	pathLower := strings.ToLower(in.ExePath)

	if pathLower != "" {
		if strings.Contains(pathLower, `\appdata\local\temp`) ||
			strings.Contains(pathLower, `\windows\temp`) ||
			strings.Contains(pathLower, `\temp\`) {
			score += 45
			reasons = append(reasons, "Executable running from temporary directory")
		}

		if strings.Contains(pathLower, `\appdata\roaming\`) && isScriptHost(name) {
			score += 30
			reasons = append(reasons, "Script host launched from roaming profile path")
		}
	}

	if isScriptHost(name) && isOfficeParent(parent) {
		score += 40
		reasons = append(reasons, "Suspicious parent-child relation: office app spawning script host")
	}

	if in.IsSigned != nil && !*in.IsSigned {
		score += 35
		reasons = append(reasons, "Binary is unsigned or signature is invalid")
	}

	if in.CPUSpike {
		score += 12
		reasons = append(reasons, "Sustained CPU spike above baseline (performance anomaly)")
	}

	if score > 255 {
		score = 255
	}
	score8 := uint8(score)

	bounds := thresholds[in.Profile]
	var level model.RiskLevel
	switch {
	case score8 >= bounds[0]:
		level = model.RiskSuspicious
	case score8 >= bounds[1]:
		level = model.RiskUnknown
	default:
		level = model.RiskLegitimate
	}

	confidence := float32(score8) / 100.0
	if confidence < 0.1 {
		confidence = 0.1
	}
	if confidence > 0.99 {
		confidence = 0.99
	}

	return model.Suspicion{
		Level:      level,
		Score:      score8,
		Reasons:    reasons,
		Confidence: confidence,
	}
}

func isScriptHost(lowerName string) bool {
	for _, host := range scriptHosts {
		if host == lowerName {
			return true
		}
	}
	return false
}

func isOfficeParent(lowerParent string) bool {
	for _, parent := range officeParents {
		if parent == lowerParent {
			return true
		}
	}
	return false
}
