//go:build windows

package actuator

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// windowsActuator shells out to powershell/taskkill/netsh, matching
// the original agent's process-control surface.
type windowsActuator struct{}

// NewPlatform returns the Windows actuator.
func NewPlatform() Actuator {
	return windowsActuator{}
}

// creationFlagsNoWindow suppresses the console window a spawned
// helper process would otherwise briefly flash (CREATE_NO_WINDOW).
const creationFlagsNoWindow = 0x08000000

func hiddenCommand(name string, args ...string) *exec.Cmd {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: creationFlagsNoWindow}
	return cmd
}

func (windowsActuator) Suspend(pid uint32) (string, error) {
	script := fmt.Sprintf("$ErrorActionPreference='Stop'; Suspend-Process -Id %d -ErrorAction Stop; 'ok'", pid)
	out, err := hiddenCommand("powershell.exe", "-NoProfile", "-Command", script).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("suspend process failed: %s", strings.TrimSpace(string(out)))
	}
	return fmt.Sprintf("process %d suspended", pid), nil
}

func (windowsActuator) Terminate(pid uint32) (string, error) {
	out, err := hiddenCommand("taskkill", "/PID", fmt.Sprint(pid), "/T", "/F").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("terminate process failed: %s", strings.TrimSpace(string(out)))
	}
	return fmt.Sprintf("process %d terminated", pid), nil
}

func (windowsActuator) BlockNetwork(pid uint32, exePath string) (string, error) {
	path := strings.TrimSpace(exePath)
	if path == "" {
		return "", fmt.Errorf("process path unavailable for firewall block action")
	}

	ruleName := fmt.Sprintf("NyxSentry_Block_PID_%d_%d", pid, time.Now().Unix())
	args := []string{
		"advfirewall", "firewall", "add", "rule",
		"name=" + ruleName,
		"dir=out",
		"action=block",
		"program=" + path,
		"enable=yes",
		"profile=any",
	}
	out, err := hiddenCommand("netsh", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("block network failed: %s", strings.TrimSpace(string(out)))
	}
	return fmt.Sprintf("outbound network blocked by firewall rule %s", ruleName), nil
}

func (windowsActuator) VerifySignature(path string) (bool, error) {
	script := fmt.Sprintf("(Get-AuthenticodeSignature -LiteralPath '%s').Status", strings.ReplaceAll(path, "'", "''"))
	out, err := hiddenCommand("powershell.exe", "-NoProfile", "-Command", script).CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("signature check failed: %s", strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)) == "Valid", nil
}
