// Package actuator implements the platform actuator collaborator
// (§6): suspend/terminate/block-network against a live process, and
// authenticode signature verification.
package actuator

// Actuator is the platform-specific collaborator the response engine
// (C9) dispatches against. Implementations are synchronous and must
// never be called while a runtime-state lock is held (§5).
type Actuator interface {
	Suspend(pid uint32) (string, error)
	Terminate(pid uint32) (string, error)
	BlockNetwork(pid uint32, exePath string) (string, error)
	VerifySignature(path string) (bool, error)
}

// CriticalProcessNames is the fixed safe-mode denylist from §4.9: the
// response engine refuses to act against any process whose base name
// (extension stripped) matches, case-insensitively.
var CriticalProcessNames = []string{
	"system",
	"registry",
	"smss",
	"csrss",
	"wininit",
	"services",
	"lsass",
	"winlogon",
	"explorer",
	"dwm",
}
