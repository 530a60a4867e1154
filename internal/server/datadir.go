package server

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultDBFile = "sitedrop.db"

// storagePaths locates the daemon's on-disk state.
type storagePaths struct {
	Root string
	DB   string
}

// prepareStorage makes root usable by the daemon and resolves where the
// database lives. A non-empty dbOverride wins over the default file under
// root; its parent directory is created too.
func prepareStorage(root, dbOverride string) (storagePaths, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return storagePaths{}, fmt.Errorf("resolve data directory %s: %w", root, err)
	}
	paths := storagePaths{Root: abs, DB: filepath.Join(abs, defaultDBFile)}
	if dbOverride != "" {
		paths.DB = dbOverride
	}

	for _, dir := range []string{paths.Root, filepath.Dir(paths.DB)} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return paths, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	if err := checkWritable(paths.Root); err != nil {
		return paths, err
	}
	return paths, nil
}

// checkWritable fails early on a read-only mount instead of at the first
// sqlite write.
func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".writecheck-*")
	if err != nil {
		return fmt.Errorf("data directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("remove write check file %s: %w", name, err)
	}
	return nil
}
