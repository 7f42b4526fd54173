package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileDestination writes snapshots to a local path. The file is replaced
// atomically so readers never see a partial snapshot.
type FileDestination struct {
	path string
}

// NewFileDestination returns a destination writing to path.
func NewFileDestination(path string) *FileDestination {
	return &FileDestination{path: path}
}

// Name identifies the destination in logs.
func (d *FileDestination) Name() string {
	return d.path
}

// Write replaces the file with data.
func (d *FileDestination) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(d.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(d.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("rename to %s: %w", d.path, err)
	}
	return nil
}
