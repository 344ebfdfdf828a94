// Package fsperm checks that persisted secrets are not readable by other users.
package fsperm

import (
	"os"
	"runtime"
	"testing"
)

// AssertPrivateDirPerm verifies that dir exists and is 0700.
func AssertPrivateDirPerm(t testing.TB, dir string) {
	t.Helper()
	assertPerm(t, dir, true, 0o700)
}

// AssertPrivateFilePerm verifies that path is a regular file with mode 0600.
func AssertPrivateFilePerm(t testing.TB, path string) {
	t.Helper()
	assertPerm(t, path, false, 0o600)
}

func assertPerm(t testing.TB, path string, wantDir bool, want os.FileMode) {
	t.Helper()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s failed: %v", path, err)
	}
	if info.IsDir() != wantDir {
		t.Fatalf("unexpected file type for %s: dir=%v", path, info.IsDir())
	}
	if runtime.GOOS == "windows" {
		return
	}
	if perm := info.Mode().Perm(); perm != want {
		t.Fatalf("expected perm %04o, got %04o for %s", want, perm, path)
	}
}
