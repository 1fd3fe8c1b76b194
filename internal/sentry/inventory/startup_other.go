//go:build !windows

package inventory

import "github.com/sentrymesh/nyxsentry/internal/sentry/model"

type stubStartupLister struct{}

// NewStartupLister returns a stub reporting an empty inventory.
func NewStartupLister() StartupLister { return stubStartupLister{} }

func (stubStartupLister) List() ([]model.StartupProcess, error) {
	return nil, nil
}
