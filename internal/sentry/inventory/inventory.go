// Package inventory implements the installed-program and startup-item
// enumeration the scheduler refreshes every 300 ticks. Spec.md treats
// this as a "simple inventory refresh" external collaborator; the
// adapters here are grounded on the original agent's programs.rs and
// startup.rs, reusing the trust package's key-normalization and
// command-extraction helpers.
package inventory

import "github.com/sentrymesh/nyxsentry/internal/sentry/model"

// ProgramLister returns the current installed-program inventory,
// deduplicated and sorted by name.
type ProgramLister interface {
	List() ([]model.InstalledProgram, error)
}

// StartupLister returns the current startup-item inventory.
type StartupLister interface {
	List() ([]model.StartupProcess, error)
}
