//go:build !windows

package inventory

import "github.com/sentrymesh/nyxsentry/internal/sentry/model"

type stubProgramLister struct{}

// NewProgramLister returns a stub reporting an empty inventory.
func NewProgramLister() ProgramLister { return stubProgramLister{} }

func (stubProgramLister) List() ([]model.InstalledProgram, error) {
	return nil, nil
}
