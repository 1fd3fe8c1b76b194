//go:build !windows

package sensors

import "github.com/sentrymesh/nyxsentry/internal/sentry/model"

type stubNetworkSensor struct{}

// NewNetworkSensor returns a stub reporting no connections.
func NewNetworkSensor() NetworkSensor {
	return stubNetworkSensor{}
}

func (stubNetworkSensor) Sample() ([]model.NetworkConnection, error) {
	return nil, nil
}
