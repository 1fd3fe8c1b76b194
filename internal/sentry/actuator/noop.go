//go:build !windows

package actuator

import "fmt"

// noopActuator backs non-Windows builds: the response engine's policy
// gating and cooldown logic still exercise fully, but the dispatch
// itself reports an unsupported-platform error, matching the
// original's non-Windows stub behavior.
type noopActuator struct{}

// NewPlatform returns the non-Windows stub actuator.
func NewPlatform() Actuator {
	return noopActuator{}
}

func (noopActuator) Suspend(pid uint32) (string, error) {
	return "", fmt.Errorf("unsupported platform")
}

func (noopActuator) Terminate(pid uint32) (string, error) {
	return "", fmt.Errorf("unsupported platform")
}

func (noopActuator) BlockNetwork(pid uint32, exePath string) (string, error) {
	return "", fmt.Errorf("unsupported platform")
}

func (noopActuator) VerifySignature(path string) (bool, error) {
	return false, fmt.Errorf("unsupported platform")
}
