//go:build windows

package sensors

import (
	"fmt"

	"golang.org/x/sys/windows/registry"
)

type runKeySpec struct {
	root  registry.Key
	label string
	path  string
}

var runKeys = []runKeySpec{
	{registry.CURRENT_USER, "HKCU", `SOFTWARE\Microsoft\Windows\CurrentVersion\Run`},
	{registry.CURRENT_USER, "HKCU", `SOFTWARE\Microsoft\Windows\CurrentVersion\RunOnce`},
	{registry.LOCAL_MACHINE, "HKLM", `SOFTWARE\Microsoft\Windows\CurrentVersion\Run`},
	{registry.LOCAL_MACHINE, "HKLM", `SOFTWARE\Microsoft\Windows\CurrentVersion\RunOnce`},
	{registry.LOCAL_MACHINE, "HKLM", `SOFTWARE\Microsoft\Windows NT\CurrentVersion\Winlogon`},
}

const ifeoPath = `SOFTWARE\Microsoft\Windows NT\CurrentVersion\Image File Execution Options`

type windowsRegistrySensor struct{}

// NewRegistrySensor returns the Run/RunOnce/Winlogon/IFEO watchlist
// sensor, grounded on the fixed watchlist from §4.1.
func NewRegistrySensor() RegistrySensor {
	return windowsRegistrySensor{}
}

func (windowsRegistrySensor) Sample() (map[string]string, error) {
	snapshot := make(map[string]string)

	for _, spec := range runKeys {
		collectStringValues(spec, snapshot)
	}
	collectIFEODebuggerValues(snapshot)

	return snapshot, nil
}

func collectStringValues(spec runKeySpec, snapshot map[string]string) {
	key, err := registry.OpenKey(spec.root, spec.path, registry.READ)
	if err != nil {
		return
	}
	defer key.Close()

	names, err := key.ReadValueNames(-1)
	if err != nil {
		return
	}
	for _, name := range names {
		value, _, err := key.GetStringValue(name)
		if err != nil {
			continue
		}
		snapshot[fmt.Sprintf(`%s\%s\%s`, spec.label, spec.path, name)] = value
	}
}

func collectIFEODebuggerValues(snapshot map[string]string) {
	root, err := registry.OpenKey(registry.LOCAL_MACHINE, ifeoPath, registry.READ)
	if err != nil {
		return
	}
	defer root.Close()

	subkeyNames, err := root.ReadSubKeyNames(-1)
	if err != nil {
		return
	}
	for _, name := range subkeyNames {
		subkey, err := registry.OpenKey(registry.LOCAL_MACHINE, ifeoPath+`\`+name, registry.READ)
		if err != nil {
			continue
		}
		debugger, _, err := subkey.GetStringValue("Debugger")
		subkey.Close()
		if err != nil {
			continue
		}
		snapshot[fmt.Sprintf(`HKLM\%s\%s\Debugger`, ifeoPath, name)] = debugger
	}
}
