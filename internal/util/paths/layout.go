package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArchiveExt is the extension archive formats are renamed to.
const ArchiveExt = ".zip"

// TargetPath returns where format of the item named name is written:
// root/name.ext, or root/name/name.ext in separate mode. suffix is inserted
// before the extension (e.g. "_code").
func TargetPath(root, name, format, suffix string, separate bool) string {
	file := name + suffix + "." + format
	if separate {
		return filepath.Join(root, name, file)
	}
	return filepath.Join(root, file)
}

// ArchivePath returns path with its extension replaced by .zip.
func ArchivePath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ArchiveExt
}

// NextFreePath returns path if nothing exists there, otherwise the first of
// base_1.ext, base_2.ext, ... that is free.
func NextFreePath(path string) (string, error) {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path, nil
	} else if err != nil {
		return "", err
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; i < 1000; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free name for %s", path)
}

// Exists reports whether anything is present at path.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
