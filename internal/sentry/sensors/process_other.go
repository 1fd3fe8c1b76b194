//go:build !windows

package sensors

import "github.com/sentrymesh/nyxsentry/internal/sentry/model"

type stubProcessSensor struct{}

// NewProcessSensor returns a stub on non-Windows builds: the engine's
// telemetry is Windows-specific, so this reports an always-empty
// snapshot rather than failing the tick loop.
func NewProcessSensor() ProcessSensor {
	return stubProcessSensor{}
}

func (stubProcessSensor) Sample() ([]model.ProcessMetric, error) {
	return nil, nil
}
