package securestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// File is a sealed JSON document on disk. The zero value is disabled.
type File struct {
	Path       string
	Passphrase string
	// Label is bound as associated data so a file cannot be swapped for
	// another sealed document under the same passphrase.
	Label string
}

func (f File) Enabled() bool {
	return strings.TrimSpace(f.Path) != "" && strings.TrimSpace(f.Passphrase) != ""
}

// Load decodes the file into v. A missing file reports found=false.
func (f File) Load(v any) (bool, error) {
	if !f.Enabled() {
		return false, nil
	}
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	plain, err := Open(f.Passphrase, raw, []byte(f.Label))
	if err != nil {
		return false, err
	}
	defer clear(plain)
	if err := json.Unmarshal(plain, v); err != nil {
		return false, fmt.Errorf("securestore: decode %s: %w", f.Path, err)
	}
	return true, nil
}

// Save writes v through a temp file and rename so readers never see a partial body.
func (f File) Save(v any) error {
	if !f.Enabled() {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sealed, err := Seal(f.Passphrase, payload, []byte(f.Label))
	clear(payload)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(sealed); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, f.Path)
}

func (f File) Remove() error {
	if strings.TrimSpace(f.Path) == "" {
		return nil
	}
	err := os.Remove(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
