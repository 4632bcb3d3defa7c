// Package export packs a task directory into a zip archive.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mholt/archives"

	"github.com/archoctopus/archoctopus-go/internal/util"
)

// Zip writes dir to w as a zip archive whose top-level folder is the
// directory's name. Unfinished downloads are left out.
func Zip(ctx context.Context, dir string, w io.Writer) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("export %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("export %s: not a directory", dir)
	}

	files, err := archives.FilesFromDisk(ctx, nil, map[string]string{
		dir: filepath.Base(dir),
	})
	if err != nil {
		return fmt.Errorf("collect files: %w", err)
	}

	kept := files[:0]
	for _, f := range files {
		if strings.HasSuffix(f.NameInArchive, ".tmp") {
			continue
		}
		kept = append(kept, f)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return util.NaturalSortLess(kept[i].NameInArchive, kept[j].NameInArchive)
	})

	if err := (archives.Zip{}).Archive(ctx, w, kept); err != nil {
		return fmt.Errorf("write zip: %w", err)
	}
	return nil
}
