package wallet

import (
	"aetos-counter/go-backend/internal/securestore"
)

const sessionLabel = "counter-wallet-session/v1"

// SessionStore persists the signed-in session across restarts as a sealed
// file. A store without path or secret keeps nothing.
type SessionStore struct {
	file securestore.File
}

func NewSessionStore(path, secret string) *SessionStore {
	return &SessionStore{file: securestore.File{Path: path, Passphrase: secret, Label: sessionLabel}}
}

func (s *SessionStore) Enabled() bool {
	return s != nil && s.file.Enabled()
}

func (s *SessionStore) Load() (Session, bool, error) {
	if !s.Enabled() {
		return Session{}, false, nil
	}
	var sess Session
	found, err := s.file.Load(&sess)
	if err != nil || !found || sess.Address == "" {
		return Session{}, false, err
	}
	return sess, true, nil
}

func (s *SessionStore) Save(sess Session) error {
	if !s.Enabled() {
		return nil
	}
	return s.file.Save(sess)
}

func (s *SessionStore) Clear() error {
	if s == nil {
		return nil
	}
	return s.file.Remove()
}
