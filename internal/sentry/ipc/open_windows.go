//go:build windows

package ipc

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"
)

const creationFlagsNoWindow = 0x08000000

func hiddenCommand(name string, args ...string) *exec.Cmd {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: creationFlagsNoWindow}
	return cmd
}

// openPath implements open_path_in_explorer by handing the path to
// Explorer with /select, matching the original agent's reveal-in-shell
// behavior.
func openPath(path string) error {
	out, err := hiddenCommand("explorer.exe", "/select,", path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ipc: open path in explorer failed: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// openURL implements open_url_in_browser via the shell's URL protocol
// handler, avoiding a hardcoded browser path.
func openURL(url string) error {
	out, err := hiddenCommand("rundll32.exe", "url.dll,FileProtocolHandler", url).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ipc: open url in browser failed: %s", strings.TrimSpace(string(out)))
	}
	return nil
}
