package apiserver

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func writeTestFile(t *testing.T, root, relPath, contents string) error {
	t.Helper()
	full := filepath.Join(root, relPath)
	return os.WriteFile(full, []byte(contents), 0o644)
}

func itoa(n int) string { return strconv.Itoa(n) }
