//go:build windows

package inventory

import (
	"sort"
	"strings"

	"golang.org/x/sys/windows/registry"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
	"github.com/sentrymesh/nyxsentry/internal/sentry/trust"
)

type uninstallHive struct {
	root   registry.Key
	path   string
	source string
}

var uninstallHives = []uninstallHive{
	{registry.LOCAL_MACHINE, `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`, "HKLM"},
	{registry.LOCAL_MACHINE, `SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\Uninstall`, "HKLM-WOW6432"},
	{registry.CURRENT_USER, `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`, "HKCU"},
}

type windowsProgramLister struct{}

// NewProgramLister returns the registry-backed Uninstall-key scanner.
func NewProgramLister() ProgramLister { return windowsProgramLister{} }

func (windowsProgramLister) List() ([]model.InstalledProgram, error) {
	var programs []model.InstalledProgram
	seen := make(map[string]struct{})

	for _, hive := range uninstallHives {
		collectFromHive(hive, &programs, seen)
	}

	sort.Slice(programs, func(i, j int) bool {
		return strings.ToLower(programs[i].Name) < strings.ToLower(programs[j].Name)
	})
	return programs, nil
}

func collectFromHive(hive uninstallHive, out *[]model.InstalledProgram, seen map[string]struct{}) {
	root, err := registry.OpenKey(hive.root, hive.path, registry.READ)
	if err != nil {
		return
	}
	defer root.Close()

	names, err := root.ReadSubKeyNames(-1)
	if err != nil {
		return
	}

	for _, keyName := range names {
		app, err := registry.OpenKey(hive.root, hive.path+`\`+keyName, registry.READ)
		if err != nil {
			continue
		}
		program, ok := readProgram(app, hive.source)
		app.Close()
		if !ok {
			continue
		}

		dedupeKey := strings.ToLower(program.Name) + "|" + strings.ToLower(stringOrEmpty(program.Version)) + "|" + strings.ToLower(stringOrEmpty(program.Publisher))
		if _, exists := seen[dedupeKey]; exists {
			continue
		}
		seen[dedupeKey] = struct{}{}
		*out = append(*out, program)
	}
}

func readProgram(app registry.Key, source string) (model.InstalledProgram, bool) {
	name, _, err := app.GetStringValue("DisplayName")
	if err != nil || strings.TrimSpace(name) == "" {
		return model.InstalledProgram{}, false
	}

	version := optionalString(app, "DisplayVersion")
	publisher := optionalString(app, "Publisher")
	installDate := optionalString(app, "InstallDate")
	installLocation := optionalString(app, "InstallLocation")
	displayIcon := optionalString(app, "DisplayIcon")
	uninstallString := optionalString(app, "UninstallString")

	executablePath := extractExecutable(displayIcon)
	if executablePath == nil {
		executablePath = extractExecutable(uninstallString)
	}

	var execValue, installValue string
	if executablePath != nil {
		execValue = *executablePath
	}
	if installLocation != nil {
		installValue = *installLocation
	}
	var publisherValue string
	if publisher != nil {
		publisherValue = *publisher
	}
	trustLevel := trust.ClassifyProgramTrust(publisherValue, installValue, execValue)

	return model.InstalledProgram{
		Name:            name,
		Version:         version,
		Publisher:       publisher,
		InstallDate:     installDate,
		InstallLocation: installLocation,
		ExecutablePath:  executablePath,
		TrustLevel:      trustLevel,
		Source:          source,
	}, true
}

func optionalString(key registry.Key, name string) *string {
	value, _, err := key.GetStringValue(name)
	if err != nil || value == "" {
		return nil
	}
	return &value
}

func extractExecutable(command *string) *string {
	if command == nil {
		return nil
	}
	path, ok := trust.ExtractExecutableFromCommand(*command)
	if !ok {
		return nil
	}
	return &path
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
