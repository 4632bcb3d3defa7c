package util

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	illegalChars = regexp.MustCompile(`[\\/:*?"<>|]+`)
	dashRuns     = regexp.MustCompile(`-{2,}`)
)

// Device names Windows refuses as file or folder names.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeFolderName makes one path component safe on Windows, macOS and
// Linux. Illegal characters become dashes; leading and trailing dots,
// spaces and dashes are dropped.
func SanitizeFolderName(name string) string {
	name = controlChars.ReplaceAllString(name, "")
	name = illegalChars.ReplaceAllString(name, "-")
	name = dashRuns.ReplaceAllString(name, "-")
	name = strings.Trim(name, " .-")
	if reservedNames[strings.ToUpper(name)] {
		name += "_"
	}
	return name
}

// SanitizeFolderPath sanitizes every component of a relative sub-folder
// path such as "Plans/Ground floor". Parent references and empty
// components are dropped, so the result never leaves its base folder.
func SanitizeFolderPath(p string) string {
	parts := strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
	kept := parts[:0]
	for _, part := range parts {
		if part == "." || part == ".." {
			continue
		}
		if s := SanitizeFolderName(part); s != "" {
			kept = append(kept, s)
		}
	}
	return filepath.Join(kept...)
}

// EnsureWritableDir creates dir if needed and checks that files can be
// written into it.
func EnsureWritableDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("folder path cannot be empty")
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory: %s", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}

	probe, err := os.CreateTemp(dir, ".archoctopus-write-check-*")
	if err != nil {
		return fmt.Errorf("no write permission for %s: %w", dir, err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}
