package engine

import (
	"os"

	"github.com/hupe1980/refdb/internal/fs"
)

// syncDir makes the directory entries of dir durable after a volume file
// was created in it.
func syncDir(fsys fs.FileSystem, dir string) error {
	f, err := fsys.OpenFile(dir, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return f.Sync()
}
