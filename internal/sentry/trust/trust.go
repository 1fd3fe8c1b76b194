// Package trust implements the pure publisher/authenticode trust
// classifier (C2) and the key-normalization rules used to match
// processes and programs against known-entity overrides.
package trust

import (
	"strings"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

// trustedPublishers is a fixed allowlist of lowercase substrings
// checked against an installed program's publisher field.
var trustedPublishers = []string{
	"microsoft",
	"google",
	"mozilla",
	"adobe",
	"intel",
	"nvidia",
	"amd",
	"oracle",
	"vmware",
	"docker",
	"github",
	"valve",
	"electronic arts",
	"epic games",
	"jetbrains",
}

// selfIdentifiers mark the engine's own processes as internal,
// exempting them from alerts and responses.
var selfIdentifiers = []string{
	"nyx sentry",
	"nyx-sentry",
	"nyxsentryd",
	"sentryd",
}

// IsWindowsPath reports whether path sits under the system directory:
// c:\windows\, \windows\system32\, or \windows\syswow64\.
func IsWindowsPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasPrefix(lower, `c:\windows\`) ||
		strings.HasPrefix(lower, `\\?\c:\windows\`) ||
		strings.Contains(lower, `\windows\system32\`) ||
		strings.Contains(lower, `\windows\syswow64\`)
}

// ClassifyProcessTrust implements C2's process branch: windows-native
// path, then signed, else unknown.
func ClassifyProcessTrust(path string, isSigned *bool) model.TrustLevel {
	if IsWindowsPath(path) {
		return model.TrustWindowsNative
	}
	if isSigned != nil && *isSigned {
		return model.TrustTrusted
	}
	return model.TrustUnknown
}

// ClassifyProgramTrust implements C2's program branch: windows-native
// path/install location, then a trusted-publisher allowlist match,
// else unknown.
func ClassifyProgramTrust(publisher, installLocation, executablePath string) model.TrustLevel {
	if IsWindowsPath(executablePath) || IsWindowsPath(installLocation) {
		return model.TrustWindowsNative
	}

	normalizedPublisher := strings.ToLower(publisher)
	for _, candidate := range trustedPublishers {
		if strings.Contains(normalizedPublisher, candidate) {
			return model.TrustTrusted
		}
	}
	return model.TrustUnknown
}

// IsInternalProcess forces Trusted with label "Nyx Internal" when the
// process name contains one of the engine's self-identifiers, or when
// the path has a directory named exactly after one of them.
func IsInternalProcess(name, path string) bool {
	lowerName := strings.ToLower(name)
	for _, id := range selfIdentifiers {
		if strings.Contains(lowerName, id) {
			return true
		}
	}
	if path == "" {
		return false
	}
	lowerPath := strings.ToLower(path)
	for _, id := range selfIdentifiers {
		if strings.Contains(lowerPath, `\`+id+`\`) {
			return true
		}
	}
	return false
}

// NormalizeKey lowercases, converts forward slashes to backslashes,
// strips a leading \\?\ prefix, and trims surrounding quotes — the
// canonical form used for known-entity key matching.
func NormalizeKey(value string) (string, bool) {
	normalized := strings.Trim(strings.TrimSpace(value), `"`)
	normalized = strings.ToLower(normalized)
	normalized = strings.TrimPrefix(normalized, `\\?\`)
	normalized = strings.ReplaceAll(normalized, "/", `\`)
	if normalized == "" {
		return "", false
	}
	return normalized, true
}

// ProcessMatchKeys returns the candidate override keys for a process:
// {exe_path, name}.
func ProcessMatchKeys(path, name string) []string {
	var keys []string
	if key, ok := NormalizeKey(path); ok {
		keys = append(keys, key)
	}
	if key, ok := NormalizeKey(name); ok {
		keys = append(keys, key)
	}
	return keys
}

// ProgramMatchKeys returns the candidate override keys for a program:
// {exe_path, install_location, name}.
func ProgramMatchKeys(executablePath, installLocation, name string) []string {
	var keys []string
	if key, ok := NormalizeKey(executablePath); ok {
		keys = append(keys, key)
	}
	if key, ok := NormalizeKey(installLocation); ok {
		keys = append(keys, key)
	}
	if key, ok := NormalizeKey(name); ok {
		keys = append(keys, key)
	}
	return keys
}

// ProgramPrimaryKey picks the first available normalized key among
// executable path, install location, and name, falling back to a
// sentinel when none normalize to anything.
func ProgramPrimaryKey(executablePath, installLocation, name string) string {
	if key, ok := NormalizeKey(executablePath); ok {
		return key
	}
	if key, ok := NormalizeKey(installLocation); ok {
		return key
	}
	if key, ok := NormalizeKey(name); ok {
		return key
	}
	return "unknown-program"
}

// ExtractExecutableFromCommand pulls the executable path out of a
// registry Run-key command string or a DisplayIcon/UninstallString
// value, which may be quoted and/or carry trailing arguments or an
// icon-index suffix after a comma.
func ExtractExecutableFromCommand(command string) (string, bool) {
	raw := strings.TrimSpace(command)
	if raw == "" {
		return "", false
	}

	cleaned := raw
	if idx := strings.Index(raw, ","); idx >= 0 {
		cleaned = strings.TrimSpace(raw[:idx])
	}

	if rest, ok := strings.CutPrefix(cleaned, `"`); ok {
		if end := strings.Index(rest, `"`); end >= 0 {
			return rest[:end], true
		}
	}

	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return "", false
	}
	return strings.Trim(fields[0], `"`), true
}
