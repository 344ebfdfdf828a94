// Package securestore seals small local state files with a passphrase.
package securestore

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	kdfName         = "argon2id"
	saltSize        = 16
	filePrefix      = "CNTENC1\n"
)

// Argon2id cost. Stored in each envelope so it can be raised later without
// breaking existing files.
const (
	kdfTime     uint32 = 2
	kdfMemoryKB uint32 = 64 * 1024
	kdfThreads  uint8  = 1
)

var (
	ErrAuthFailed   = errors.New("securestore: authentication failed")
	ErrInvalid      = errors.New("securestore: envelope is invalid")
	ErrNotEncrypted = errors.New("securestore: data is not a sealed envelope")
	ErrNoPassphrase = errors.New("securestore: empty passphrase")
)

type Envelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

// Seal encrypts plaintext and returns the prefixed file body. aad is bound to
// the ciphertext and must be repeated on Open.
func Seal(passphrase string, plaintext, aad []byte) ([]byte, error) {
	env, err := sealEnvelope(passphrase, plaintext, aad)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(filePrefix), raw...), nil
}

func Open(passphrase string, data, aad []byte) ([]byte, error) {
	body, ok := bytes.CutPrefix(data, []byte(filePrefix))
	if !ok {
		return nil, ErrNotEncrypted
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return openEnvelope(passphrase, &env, aad)
}

func sealEnvelope(passphrase string, plaintext, aad []byte) (*Envelope, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := deriveKey(passphrase, salt, kdfTime, kdfMemoryKB, kdfThreads)
	defer clear(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return &Envelope{
		Version:     envelopeVersion,
		KDF:         kdfName,
		KDFTime:     kdfTime,
		KDFMemoryKB: kdfMemoryKB,
		KDFThreads:  kdfThreads,
		Salt:        salt,
		Nonce:       nonce,
		Ciphertext:  aead.Seal(nil, nonce, plaintext, aad),
	}, nil
}

func openEnvelope(passphrase string, env *Envelope, aad []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	if env.Version != envelopeVersion || env.KDF != kdfName {
		return nil, ErrInvalid
	}
	if len(env.Salt) != saltSize || len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrInvalid
	}
	if env.KDFTime == 0 || env.KDFMemoryKB == 0 || env.KDFThreads == 0 {
		return nil, ErrInvalid
	}
	key := deriveKey(passphrase, env.Salt, env.KDFTime, env.KDFMemoryKB, env.KDFThreads)
	defer clear(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func deriveKey(passphrase string, salt []byte, time, memoryKB uint32, threads uint8) []byte {
	return argon2.IDKey([]byte(passphrase), salt, time, memoryKB, threads, chacha20poly1305.KeySize)
}
