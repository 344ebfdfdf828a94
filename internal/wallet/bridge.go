package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxBridgeResponseBytes int64 = 1 << 20 // 1 MiB
	bridgeTokenHeader            = "X-Counter-Wallet-Token"

	// codeUserRejected is the wallet RPC convention for a dismissed prompt.
	codeUserRejected = 4001
)

// BridgeError is an error object returned by the wallet bridge.
type BridgeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("wallet bridge error %d: %s", e.Code, e.Message)
}

func (e *BridgeError) UserRejected() bool {
	return e.Code == codeUserRejected
}

type bridgeRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type bridgeResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *BridgeError    `json:"error"`
}

// bridgeClient speaks JSON-RPC 2.0 over HTTP to a wallet bridge. Calls that
// prompt the user may take as long as the user does, so only the probe has a
// fixed timeout.
type bridgeClient struct {
	endpoint     string
	token        string
	probeTimeout time.Duration
	http         *http.Client
}

func (c *bridgeClient) call(ctx context.Context, method string, params, out any) (retErr error) {
	body, err := json.Marshal(bridgeRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(c.token); token != "" {
		req.Header.Set(bridgeTokenHeader, token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && retErr == nil {
			retErr = closeErr
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wallet bridge status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBridgeResponseBytes))
	if err != nil {
		return err
	}
	var decoded bridgeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("wallet bridge response: %w", err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil {
		return nil
	}
	if len(decoded.Result) == 0 || string(decoded.Result) == "null" {
		return errors.New("wallet bridge returned empty result")
	}
	return json.Unmarshal(decoded.Result, out)
}

func (c *bridgeClient) probe(ctx context.Context) (bridgeInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	var info bridgeInfo
	err := c.call(ctx, "getInfo", nil, &info)
	return info, err
}

type bridgeInfo struct {
	Version string   `json:"version"`
	Methods []string `json:"methods"`
}

type addressEntry struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Purpose string `json:"purpose"`
}

type getAddressesResult struct {
	Addresses []addressEntry `json:"addresses"`
}

type callContractParams struct {
	Contract     string   `json:"contract"`
	FunctionName string   `json:"functionName"`
	FunctionArgs []string `json:"functionArgs"`
	Network      string   `json:"network,omitempty"`
	AppName      string   `json:"appName,omitempty"`
	AppIcon      string   `json:"appIcon,omitempty"`
}

type callContractResult struct {
	TxID string `json:"txid"`
}
