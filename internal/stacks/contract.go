package stacks

import (
	"fmt"
	"net/url"
	"strings"

	"aetos-counter/go-backend/internal/clarity"
)

type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

const (
	DefaultMainnetAPI = "https://api.mainnet.hiro.so"
	DefaultTestnetAPI = "https://api.testnet.hiro.so"
	explorerBaseURL   = "https://explorer.hiro.so"
)

// ContractRef identifies the deployed contract. It is fixed configuration.
type ContractRef struct {
	Address string `yaml:"address" json:"address" env:"COUNTER_CONTRACT_ADDRESS"`
	Name    string `yaml:"name" json:"name" env:"COUNTER_CONTRACT_NAME"`
}

func (c ContractRef) ID() string {
	return c.Address + "." + c.Name
}

func (c ContractRef) Validate() error {
	if _, err := clarity.ParsePrincipal(c.ID()); err != nil {
		return fmt.Errorf("invalid contract %q: %w", c.ID(), err)
	}
	return nil
}

// NetworkOf infers the network from the contract address version.
func (c ContractRef) NetworkOf() Network {
	version, _, err := clarity.DecodeAddress(c.Address)
	if err == nil && !clarity.IsMainnetVersion(version) {
		return Testnet
	}
	return Mainnet
}

func ParseNetwork(raw string) (Network, error) {
	switch Network(strings.ToLower(strings.TrimSpace(raw))) {
	case Mainnet, "":
		return Mainnet, nil
	case Testnet:
		return Testnet, nil
	default:
		return "", fmt.Errorf("unknown network %q", raw)
	}
}

func DefaultAPIURL(n Network) string {
	if n == Testnet {
		return DefaultTestnetAPI
	}
	return DefaultMainnetAPI
}

func ExplorerTxURL(txID string, n Network) string {
	txID = strings.TrimSpace(txID)
	if txID == "" {
		return ""
	}
	if !strings.HasPrefix(txID, "0x") {
		txID = "0x" + txID
	}
	return explorerBaseURL + "/txid/" + url.PathEscape(txID) + "?chain=" + string(n)
}

func ExplorerAddressURL(address string, n Network) string {
	return explorerBaseURL + "/address/" + url.PathEscape(address) + "?chain=" + string(n)
}
