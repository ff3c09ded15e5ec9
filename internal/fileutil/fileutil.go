package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// Default permissions for directories and files created by hearth.
const (
	DefaultDirMode  os.FileMode = 0o755
	DefaultFileMode os.FileMode = 0o644
)

// WriteFileAtomic commits data to path so readers observe either the previous
// content or the new content, never a partial write. The data is written to a
// temporary file in the same directory, synced, and renamed over path.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true
	syncDir(dir)
	return nil
}

// syncDir flushes the rename to disk. Some filesystems reject fsync on
// directories; the commit is still visible to other processes.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// TryReplaceSymlink points link at target, replacing any existing file at
// link. It falls back to a hard link and reports false when neither can be
// created.
func TryReplaceSymlink(link, target string) bool {
	if link == "" || target == "" {
		return false
	}
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return false
	}
	if err := os.Symlink(target, link); err == nil {
		return true
	}
	return os.Link(target, link) == nil
}
