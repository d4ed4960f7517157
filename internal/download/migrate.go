package download

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/packtdl/packt-dl/internal/constants"
	"github.com/packtdl/packt-dl/internal/util/paths"
)

// migrateFlat moves files an earlier flat-layout run left in root into the
// item's own folder. Existing files in the folder are never overwritten; the
// moved file gets the next free name_N.ext instead.
func (o *Orchestrator) migrateFlat(name string, formats []string) (int, error) {
	dir := filepath.Join(o.opts.Root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create item folder: %w", err)
	}

	exts := slices.Clone(constants.DefaultFormats)
	for _, f := range formats {
		if !slices.Contains(exts, f) {
			exts = append(exts, f)
		}
	}
	exts = append(exts, strings.TrimPrefix(paths.ArchiveExt, "."))

	moved := 0
	for _, base := range []string{name, name + codeSuffix} {
		for _, ext := range exts {
			src := filepath.Join(o.opts.Root, base+"."+ext)
			info, err := os.Lstat(src)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}

			dst, err := paths.NextFreePath(filepath.Join(dir, base+"."+ext))
			if err != nil {
				return moved, err
			}
			if err := os.Rename(src, dst); err != nil {
				return moved, fmt.Errorf("failed to move %s: %w", src, err)
			}
			o.logger.Info().Str("from", src).Str("to", dst).Msg("Moved into item folder")
			moved++
		}
	}
	return moved, nil
}
