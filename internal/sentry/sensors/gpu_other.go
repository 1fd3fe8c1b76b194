//go:build !windows

package sensors

type stubGPUSensor struct{}

// NewGPUSensor returns a stub reporting no GPU activity.
func NewGPUSensor() GPUSensor {
	return stubGPUSensor{}
}

func (stubGPUSensor) Sample() (map[uint32]float32, error) {
	return map[uint32]float32{}, nil
}
