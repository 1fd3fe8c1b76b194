//go:build !windows

package sensors

type stubRegistrySensor struct{}

// NewRegistrySensor returns a stub reporting an empty watchlist.
func NewRegistrySensor() RegistrySensor {
	return stubRegistrySensor{}
}

func (stubRegistrySensor) Sample() (map[string]string, error) {
	return map[string]string{}, nil
}
