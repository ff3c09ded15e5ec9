package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// SocketDir returns a short-lived directory with a short path, suitable for
// unix sockets. It is removed when the test ends.
func SocketDir(t testing.TB) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "hearth")
	if err != nil {
		t.Fatalf("mkdir socket dir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(dir)
	})
	return dir
}

// WriteExecutable writes a shell script at path with the executable bit set.
func WriteExecutable(t testing.TB, path, script string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
