//go:build !windows

package ipc

import "fmt"

func openPath(path string) error {
	return fmt.Errorf("ipc: open path in explorer is unsupported on this platform")
}

func openURL(url string) error {
	return fmt.Errorf("ipc: open url in browser is unsupported on this platform")
}
