package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"aetos-counter/go-backend/internal/stacks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mainnetAddr = "SP312F1KXPTFJH6BHVFJTB5VYYGZQBYPYC7VT62SV"
	testnetAddr = "ST000000000000000000002AMW42H"
)

var counterContract = stacks.ContractRef{Address: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7", Name: "counter"}

type recordedRequest struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Token  string          `json:"-"`
}

type fakeBridge struct {
	t       *testing.T
	mu      sync.Mutex
	reqs    []recordedRequest
	results map[string]any
	errors  map[string]*BridgeError
}

func newFakeBridge(t *testing.T) (*fakeBridge, *httptest.Server) {
	t.Helper()
	b := &fakeBridge{
		t: t,
		results: map[string]any{
			"getInfo": map[string]any{"version": "1.0.0", "methods": []string{"getAddresses", "stx_callContract"}},
			"getAddresses": map[string]any{"addresses": []map[string]string{
				{"address": "bc1qxyz", "symbol": "BTC", "purpose": "payment"},
				{"address": testnetAddr, "symbol": "STX", "purpose": "stacks"},
				{"address": mainnetAddr, "symbol": "STX", "purpose": "stacks"},
			}},
			"stx_callContract": map[string]any{"txid": "0xfeed"},
		},
		errors: map[string]*BridgeError{},
	}
	srv := httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *fakeBridge) serve(w http.ResponseWriter, r *http.Request) {
	var req recordedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		b.t.Errorf("decode bridge request: %v", err)
		return
	}
	req.Token = r.Header.Get(bridgeTokenHeader)
	b.mu.Lock()
	b.reqs = append(b.reqs, req)
	result := b.results[req.Method]
	bridgeErr := b.errors[req.Method]
	b.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if bridgeErr != nil {
		resp["error"] = bridgeErr
	} else {
		resp["result"] = result
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (b *fakeBridge) setResult(method string, result any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[method] = result
}

func (b *fakeBridge) setError(method string, err *BridgeError) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.errors, method)
		return
	}
	b.errors[method] = err
}

func (b *fakeBridge) last(method string) recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.reqs) - 1; i >= 0; i-- {
		if b.reqs[i].Method == method {
			return b.reqs[i]
		}
	}
	b.t.Fatalf("no %s request recorded", method)
	return recordedRequest{}
}

func loadProvider(t *testing.T, url string, opts ...ProviderOption) Provider {
	t.Helper()
	p, err := NewRPCLoader(BridgeConfig{URL: url, Token: "bridge-token"}, stacks.Mainnet, opts...)(context.Background())
	require.NoError(t, err)
	return p
}

func TestLoaderWithoutBridgeIsUnavailable(t *testing.T) {
	_, err := NewRPCLoader(BridgeConfig{}, stacks.Mainnet)(context.Background())
	require.ErrorIs(t, err, ErrCapabilityUnavailable)
	require.ErrorIs(t, err, ErrNoBridge)
}

func TestLoaderUnreachableBridgeIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewRPCLoader(BridgeConfig{URL: url}, stacks.Mainnet)(context.Background())
	require.ErrorIs(t, err, ErrCapabilityUnavailable)
}

func TestConnectPicksNetworkAddress(t *testing.T) {
	bridge, srv := newFakeBridge(t)
	p := loadProvider(t, srv.URL)
	assert.False(t, p.IsSignedIn())

	sess, err := p.Connect(context.Background(), AppDetails{Name: "Counter"})
	require.NoError(t, err)
	assert.Equal(t, mainnetAddr, sess.Address)
	assert.Equal(t, stacks.Mainnet, sess.Network)
	assert.True(t, p.IsSignedIn())

	loaded, ok := p.LoadSession()
	require.True(t, ok)
	assert.Equal(t, sess, loaded)

	req := bridge.last("getAddresses")
	assert.Equal(t, "bridge-token", req.Token)
	_, err = uuid.Parse(req.ID)
	assert.NoError(t, err, "request ids are uuids")
}

func TestConnectUserRejected(t *testing.T) {
	bridge, srv := newFakeBridge(t)
	bridge.setError("getAddresses", &BridgeError{Code: codeUserRejected, Message: "User rejected request"})
	p := loadProvider(t, srv.URL)

	_, err := p.Connect(context.Background(), AppDetails{Name: "Counter"})
	require.ErrorIs(t, err, ErrUserCancelled)
	assert.False(t, p.IsSignedIn())
}

func TestConnectWithoutStacksAddress(t *testing.T) {
	bridge, srv := newFakeBridge(t)
	bridge.setResult("getAddresses", map[string]any{"addresses": []map[string]string{
		{"address": "bc1qxyz", "symbol": "BTC", "purpose": "payment"},
	}})
	p := loadProvider(t, srv.URL)

	_, err := p.Connect(context.Background(), AppDetails{})
	require.ErrorIs(t, err, ErrNoAddress)
}

func TestSubmitContractCall(t *testing.T) {
	bridge, srv := newFakeBridge(t)
	p := loadProvider(t, srv.URL)

	_, err := p.SubmitContractCall(context.Background(), ContractCall{Contract: counterContract, FunctionName: "increment"})
	require.ErrorIs(t, err, ErrNotSignedIn)

	_, err = p.Connect(context.Background(), AppDetails{Name: "Counter"})
	require.NoError(t, err)

	res, err := p.SubmitContractCall(context.Background(), ContractCall{
		Contract:     counterContract,
		FunctionName: "increment",
		App:          AppDetails{Name: "Counter"},
	})
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", res.TransactionID)

	var params callContractParams
	require.NoError(t, json.Unmarshal(bridge.last("stx_callContract").Params, &params))
	assert.Equal(t, counterContract.ID(), params.Contract)
	assert.Equal(t, "increment", params.FunctionName)
	assert.Equal(t, []string{}, params.FunctionArgs)
	assert.Equal(t, "mainnet", params.Network)
}

func TestSubmitContractCallErrors(t *testing.T) {
	bridge, srv := newFakeBridge(t)
	p := loadProvider(t, srv.URL)
	_, err := p.Connect(context.Background(), AppDetails{})
	require.NoError(t, err)

	bridge.setError("stx_callContract", &BridgeError{Code: codeUserRejected, Message: "cancelled"})
	_, err = p.SubmitContractCall(context.Background(), ContractCall{Contract: counterContract, FunctionName: "decrement"})
	require.ErrorIs(t, err, ErrUserCancelled)

	bridge.setError("stx_callContract", &BridgeError{Code: -32603, Message: "insufficient funds"})
	_, err = p.SubmitContractCall(context.Background(), ContractCall{Contract: counterContract, FunctionName: "decrement"})
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, -32603, subErr.Code)
	assert.Equal(t, "decrement", subErr.Function)
	assert.Contains(t, subErr.Error(), "insufficient funds")

	bridge.setError("stx_callContract", nil)
	bridge.setResult("stx_callContract", map[string]any{"txid": ""})
	_, err = p.SubmitContractCall(context.Background(), ContractCall{Contract: counterContract, FunctionName: "decrement"})
	require.ErrorAs(t, err, &subErr)
}

func TestSessionPersistsAcrossLoads(t *testing.T) {
	_, srv := newFakeBridge(t)
	store := NewSessionStore(filepath.Join(t.TempDir(), "session.enc"), "secret")

	p := loadProvider(t, srv.URL, WithSessionStore(store))
	_, err := p.Connect(context.Background(), AppDetails{})
	require.NoError(t, err)

	restored := loadProvider(t, srv.URL, WithSessionStore(store))
	sess, ok := restored.LoadSession()
	require.True(t, ok)
	assert.Equal(t, mainnetAddr, sess.Address)

	require.NoError(t, restored.SignOut())
	assert.False(t, restored.IsSignedIn())

	again := loadProvider(t, srv.URL, WithSessionStore(store))
	assert.False(t, again.IsSignedIn())
}

func TestSessionStoreWrongSecretIsIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.enc")
	require.NoError(t, NewSessionStore(path, "one").Save(Session{Address: mainnetAddr}))

	_, ok, err := NewSessionStore(path, "two").Load()
	assert.False(t, ok)
	assert.Error(t, err)

	var disabled *SessionStore
	_, ok, err = disabled.Load()
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.NoError(t, disabled.Save(Session{Address: mainnetAddr}))
	assert.NoError(t, disabled.Clear())
}

func TestStaticAuthenticator(t *testing.T) {
	auth, err := NewStaticAuthenticator(testnetAddr)
	require.NoError(t, err)
	sess, err := auth.AuthenticationRequest(context.Background(), AppDetails{})
	require.NoError(t, err)
	assert.Equal(t, Session{Address: testnetAddr, Network: stacks.Testnet}, sess)

	_, err = NewStaticAuthenticator("not-an-address")
	assert.Error(t, err)
	_, err = NewStaticAuthenticator(counterContract.ID())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = auth.AuthenticationRequest(ctx, AppDetails{})
	assert.True(t, errors.Is(err, context.Canceled))
}
