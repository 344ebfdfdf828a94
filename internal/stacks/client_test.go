package stacks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var testContract = ContractRef{Address: "SP312F1KXPTFJH6BHVFJTB5VYYGZQBYPYC7VT62SV", Name: "counter"}

func TestCallReadOnlyPostsSenderAndArguments(t *testing.T) {
	var gotPath string
	var gotBody callReadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(callReadResponse{Okay: true, Result: "0x0701000000000000000000000000000007"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/"})
	result, err := c.CallReadOnly(context.Background(), ReadOnlyCall{
		Contract:     testContract,
		FunctionName: "get-counter",
		Sender:       testContract.Address,
	})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if result != "0x0701000000000000000000000000000007" {
		t.Fatalf("unexpected result %q", result)
	}
	if gotPath != "/v2/contracts/call-read/SP312F1KXPTFJH6BHVFJTB5VYYGZQBYPYC7VT62SV/counter/get-counter" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody.Sender != testContract.Address {
		t.Fatalf("expected self-read sender, got %q", gotBody.Sender)
	}
	if gotBody.Arguments == nil || len(gotBody.Arguments) != 0 {
		t.Fatalf("expected empty argument list, got %#v", gotBody.Arguments)
	}
}

func TestCallReadOnlyRejectedCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(callReadResponse{Okay: false, Cause: "Unchecked(NoSuchPublicFunction)"})
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).CallReadOnly(context.Background(), ReadOnlyCall{Contract: testContract, FunctionName: "nope"})
	if !errors.Is(err, ErrCallRejected) {
		t.Fatalf("expected ErrCallRejected, got %v", err)
	}
}

func TestCallReadOnlyHTTPErrorIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).CallReadOnly(context.Background(), ReadOnlyCall{Contract: testContract, FunctionName: "get-counter"})
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transportErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected status %d", transportErr.StatusCode)
	}
}

func TestCallReadOnlyTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.CallReadOnly(context.Background(), ReadOnlyCall{Contract: testContract, FunctionName: "get-counter"})
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestContractRefValidateAndNetwork(t *testing.T) {
	if err := testContract.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if testContract.NetworkOf() != Mainnet {
		t.Fatal("expected mainnet contract")
	}
	bad := ContractRef{Address: "SP312F1KXPTFJH6BHVFJTB5VYYGZQBYPYC7VT62SV", Name: ""}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for empty contract name")
	}
	testnet := ContractRef{Address: "ST000000000000000000002AMW42H", Name: "counter"}
	if testnet.NetworkOf() != Testnet {
		t.Fatal("expected testnet contract")
	}
}

func TestExplorerURLs(t *testing.T) {
	if got := ExplorerTxURL("abc", Mainnet); got != "https://explorer.hiro.so/txid/0xabc?chain=mainnet" {
		t.Fatalf("unexpected tx url %q", got)
	}
	if got := ExplorerTxURL("", Mainnet); got != "" {
		t.Fatalf("expected empty url, got %q", got)
	}
	if got := ExplorerAddressURL(testContract.Address, Testnet); got != "https://explorer.hiro.so/address/SP312F1KXPTFJH6BHVFJTB5VYYGZQBYPYC7VT62SV?chain=testnet" {
		t.Fatalf("unexpected address url %q", got)
	}
}
