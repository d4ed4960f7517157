// Package validation checks that computed download paths stay inside the
// output directory.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// windowsReserved are device names Windows refuses as file names, with or
// without an extension.
var windowsReserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// ValidateFilename rejects names that cannot be used as a single path
// element: empty, "." or "..", containing separators or NUL, or a Windows
// device name. Product names come from the API and pass through here after
// normalization.
func ValidateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if strings.ContainsRune(filename, 0) {
		return fmt.Errorf("filename contains null byte: %q", filename)
	}
	if strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("filename cannot contain path separators: %s", filename)
	}
	if filename == "." || filename == ".." {
		return fmt.Errorf("filename cannot be %q", filename)
	}

	stem := strings.ToUpper(strings.TrimSuffix(filename, filepath.Ext(filename)))
	if windowsReserved[stem] {
		return fmt.Errorf("filename is a reserved device name: %s", filename)
	}
	return nil
}

// ValidatePathInDirectory checks that path, resolved against baseDir when
// relative, does not escape baseDir.
//
//	ValidatePathInDirectory("../../etc/passwd", "/srv/books") // error
//	ValidatePathInDirectory("Go/Go.pdf", "/srv/books")        // ok
func ValidatePathInDirectory(path, baseDir string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if baseDir == "" {
		return fmt.Errorf("base directory cannot be empty")
	}

	base, err := filepath.Abs(filepath.Clean(baseDir))
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}

	resolved := filepath.Clean(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(base, resolved)
	}

	rel, err := filepath.Rel(base, resolved)
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s (base: %s)", path, baseDir)
	}
	return nil
}
