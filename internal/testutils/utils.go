package testutils

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTempFile writes content to name below a fresh test directory and returns its path.
// name may contain sub directories.
func WriteTempFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create directory for %q: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %q: %v", name, err)
	}
	return path
}
