package securestore

import (
	"errors"
	"path/filepath"
	"testing"

	"aetos-counter/go-backend/internal/testutil/fsperm"
)

func TestSealOpenRoundtrip(t *testing.T) {
	data, err := Seal("pass", []byte("session"), []byte("wallet-session"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	plain, err := Open("pass", data, []byte("wallet-session"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if string(plain) != "session" {
		t.Fatalf("unexpected plaintext: %q", string(plain))
	}
}

func TestOpenWrongPassphraseOrLabel(t *testing.T) {
	data, err := Seal("pass", []byte("session"), []byte("a"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if _, err := Open("other", data, []byte("a")); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed for wrong passphrase, got %v", err)
	}
	if _, err := Open("pass", data, []byte("b")); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed for wrong label, got %v", err)
	}
}

func TestOpenTamperedFails(t *testing.T) {
	data, err := Seal("pass", []byte("session"), nil)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	data[len(data)-3] ^= 0xFF
	_, err = Open("pass", data, nil)
	if !errors.Is(err, ErrAuthFailed) && !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrAuthFailed or ErrInvalid, got %v", err)
	}
}

func TestOpenRejectsPlaintext(t *testing.T) {
	if _, err := Open("pass", []byte(`{"address":"SP..."}`), nil); !errors.Is(err, ErrNotEncrypted) {
		t.Fatalf("expected ErrNotEncrypted, got %v", err)
	}
}

func TestSealRequiresPassphrase(t *testing.T) {
	if _, err := Seal("", []byte("x"), nil); !errors.Is(err, ErrNoPassphrase) {
		t.Fatalf("expected ErrNoPassphrase, got %v", err)
	}
}

func TestFileSaveLoadRemove(t *testing.T) {
	type doc struct {
		Address string `json:"address"`
	}
	path := filepath.Join(t.TempDir(), "state", "session.enc")
	f := File{Path: path, Passphrase: "pass", Label: "session"}

	var got doc
	found, err := f.Load(&got)
	if err != nil || found {
		t.Fatalf("expected missing file, found=%v err=%v", found, err)
	}

	if err := f.Save(doc{Address: "SP312F1KXPTFJH6BHVFJTB5VYYGZQBYPYC7VT62SV"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	fsperm.AssertPrivateFilePerm(t, path)
	fsperm.AssertPrivateDirPerm(t, filepath.Dir(path))

	found, err = f.Load(&got)
	if err != nil || !found {
		t.Fatalf("load failed: found=%v err=%v", found, err)
	}
	if got.Address != "SP312F1KXPTFJH6BHVFJTB5VYYGZQBYPYC7VT62SV" {
		t.Fatalf("unexpected address %q", got.Address)
	}

	if err := f.Remove(); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := f.Remove(); err != nil {
		t.Fatalf("second remove failed: %v", err)
	}
	found, err = f.Load(&got)
	if err != nil || found {
		t.Fatalf("expected missing file after remove, found=%v err=%v", found, err)
	}
}

func TestDisabledFileIsNoop(t *testing.T) {
	var f File
	if f.Enabled() {
		t.Fatal("zero File must be disabled")
	}
	if err := f.Save(map[string]string{"a": "b"}); err != nil {
		t.Fatalf("save on disabled file: %v", err)
	}
	found, err := f.Load(&struct{}{})
	if err != nil || found {
		t.Fatalf("load on disabled file: found=%v err=%v", found, err)
	}
}
