package launch

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRemoveDirGuardClosesRemovesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "container-root")
	if err := os.MkdirAll(filepath.Join(dir, "rootfs"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}

	guard := newRemoveDirGuard(dir)
	guard.Close()

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed, stat err = %v", dir, err)
	}
}

func TestRemoveDirGuardCloseOnNilIsNoop(t *testing.T) {
	var guard *removeDirGuard
	guard.Close()
}

func TestRemoveDirGuardCloseOnMissingDirIsNoop(t *testing.T) {
	guard := newRemoveDirGuard(filepath.Join(t.TempDir(), "never-created"))
	guard.Close()
}
