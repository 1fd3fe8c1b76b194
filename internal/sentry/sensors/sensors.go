// Package sensors implements the sensor adapters (C1): the five
// platform-facing collectors behind a shared sample/health contract,
// per §9's "sensors as a capability set" design note.
package sensors

import "github.com/sentrymesh/nyxsentry/internal/sentry/model"

// Names of the five sensors, used as the SensorHealth.Sensor field and
// as the sensor field of emitted events.
const (
	NameProcess   = "process"
	NameGPU       = "gpu"
	NameNetwork   = "network"
	NameRegistry  = "registry"
	NameSignature = "signature"
)

// ProcessSensor returns a fresh per-process snapshot. Never fails
// partially: on an OS-level error it returns an empty slice.
type ProcessSensor interface {
	Sample() ([]model.ProcessMetric, error)
}

// GPUSensor returns per-PID utilization percentage, summed across
// engine instances and clamped to [0, 100].
type GPUSensor interface {
	Sample() (map[uint32]float32, error)
}

// NetworkSensor returns the deduplicated current connection list.
type NetworkSensor interface {
	Sample() ([]model.NetworkConnection, error)
}

// RegistrySensor returns a flat snapshot of the fixed persistence
// watchlist: `"{hive}\{path}\{value_name}" -> value`.
type RegistrySensor interface {
	Sample() (map[string]string, error)
}

// SignatureSensor verifies a single executable's authenticode
// signature. Called directly against the per-tick probe budget, not
// on a tick cadence.
type SignatureSensor interface {
	Probe(path string) (bool, error)
}
