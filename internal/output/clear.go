package output

import (
	"fmt"
	"os"
	"path/filepath"
)

// ClearDirectory leaves path as an existing, empty directory. A missing
// directory is created with its parents; otherwise every direct child is
// removed, directories recursively. This cannot be undone.
func ClearDirectory(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			return nil
		}
		return fmt.Errorf("read output dir: %w", err)
	}
	for _, entry := range entries {
		child := filepath.Join(path, entry.Name())
		if entry.IsDir() {
			err = os.RemoveAll(child)
		} else {
			err = os.Remove(child)
		}
		if err != nil {
			return fmt.Errorf("clear output dir: %w", err)
		}
	}
	return nil
}
