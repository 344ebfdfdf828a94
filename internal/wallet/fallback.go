package wallet

import (
	"context"
	"fmt"
	"strings"

	"aetos-counter/go-backend/internal/clarity"
	"aetos-counter/go-backend/internal/stacks"
)

// StaticAuthenticator signs in as a configured address without prompting.
type StaticAuthenticator struct {
	session Session
}

func NewStaticAuthenticator(address string) (*StaticAuthenticator, error) {
	address = strings.TrimSpace(address)
	p, err := clarity.ParsePrincipal(address)
	if err != nil {
		return nil, fmt.Errorf("fallback address: %w", err)
	}
	if p.IsContract() {
		return nil, fmt.Errorf("fallback address %q is a contract principal", address)
	}
	network := stacks.Mainnet
	if !clarity.IsMainnetVersion(p.Version) {
		network = stacks.Testnet
	}
	return &StaticAuthenticator{session: Session{Address: address, Network: network}}, nil
}

func (a *StaticAuthenticator) AuthenticationRequest(ctx context.Context, _ AppDetails) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	return a.session, nil
}
