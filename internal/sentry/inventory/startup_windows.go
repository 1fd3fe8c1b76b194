//go:build windows

package inventory

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/windows/registry"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
	"github.com/sentrymesh/nyxsentry/internal/sentry/trust"
)

type runKeyHive struct {
	root   registry.Key
	path   string
	source string
}

var startupRunKeys = []runKeyHive{
	{registry.LOCAL_MACHINE, `SOFTWARE\Microsoft\Windows\CurrentVersion\Run`, "HKLM Run"},
	{registry.CURRENT_USER, `SOFTWARE\Microsoft\Windows\CurrentVersion\Run`, "HKCU Run"},
}

const allUsersStartupFolder = `C:\ProgramData\Microsoft\Windows\Start Menu\Programs\Startup`

type windowsStartupLister struct{}

// NewStartupLister returns the Run-key and Startup-folder scanner.
func NewStartupLister() StartupLister { return windowsStartupLister{} }

func (windowsStartupLister) List() ([]model.StartupProcess, error) {
	var items []model.StartupProcess
	seen := make(map[string]struct{})

	for _, hive := range startupRunKeys {
		collectRunKey(hive, &items, seen)
	}
	collectStartupFolder(allUsersStartupFolder, "Startup Folder (All Users)", &items, seen)

	if roaming := os.Getenv("APPDATA"); roaming != "" {
		userStartup := filepath.Join(roaming, "Microsoft", "Windows", "Start Menu", "Programs", "Startup")
		collectStartupFolder(userStartup, "Startup Folder (Current User)", &items, seen)
	}

	sort.Slice(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items, nil
}

func collectRunKey(hive runKeyHive, out *[]model.StartupProcess, seen map[string]struct{}) {
	key, err := registry.OpenKey(hive.root, hive.path, registry.READ)
	if err != nil {
		return
	}
	defer key.Close()

	names, err := key.ReadValueNames(-1)
	if err != nil {
		return
	}

	for _, name := range names {
		command, _, err := key.GetStringValue(name)
		if err != nil {
			continue
		}
		executable, _ := trust.ExtractExecutableFromCommand(command)

		dedupeKey := strings.ToLower(name) + "|" + strings.ToLower(command)
		if _, exists := seen[dedupeKey]; exists {
			continue
		}
		seen[dedupeKey] = struct{}{}

		*out = append(*out, model.StartupProcess{
			Name:       name,
			Command:    command,
			Location:   executable,
			Source:     hive.source,
			TrustLevel: trust.ClassifyProcessTrust(executable, nil),
		})
	}
}

func collectStartupFolder(dir, source string, out *[]model.StartupProcess, seen map[string]struct{}) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if name == "" {
			continue
		}
		location := filepath.Join(dir, entry.Name())

		dedupeKey := strings.ToLower(name) + "|" + strings.ToLower(location)
		if _, exists := seen[dedupeKey]; exists {
			continue
		}
		seen[dedupeKey] = struct{}{}

		*out = append(*out, model.StartupProcess{
			Name:       name,
			Command:    location,
			Location:   location,
			Source:     source,
			TrustLevel: trust.ClassifyProcessTrust(location, nil),
		})
	}
}
