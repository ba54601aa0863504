// Package networks holds the built-in JSON-RPC endpoint presets.
package networks

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const Default = "gnosis"

var ErrUnknownNetwork = errors.New("networks: unknown network")

type Network struct {
	Name    string
	URL     string
	ChainID uint64
	// Unit is the native fee currency.
	Unit        string
	ExplorerURL string
}

var presets = map[string]Network{
	"gnosis": {
		Name:        "gnosis",
		URL:         "https://rpc.gnosischain.com",
		ChainID:     100,
		Unit:        "xDAI",
		ExplorerURL: "https://gnosisscan.io",
	},
	"ethereum": {
		Name:        "ethereum",
		URL:         "https://ethereum-rpc.publicnode.com",
		ChainID:     1,
		Unit:        "ETH",
		ExplorerURL: "https://etherscan.io",
	},
	"sepolia": {
		Name:        "sepolia",
		URL:         "https://ethereum-sepolia-rpc.publicnode.com",
		ChainID:     11155111,
		Unit:        "ETH",
		ExplorerURL: "https://sepolia.etherscan.io",
	},
	"localhost": {
		Name:    "localhost",
		URL:     "http://localhost:8545",
		ChainID: 31337,
		Unit:    "ETH",
	},
}

// Lookup returns the preset called name (case-insensitive).
func Lookup(name string) (Network, error) {
	n, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Network{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownNetwork, name, strings.Join(Names(), ", "))
	}
	return n, nil
}

// Resolve looks up name and applies an optional endpoint override. An overridden endpoint
// keeps the preset's chain id only when name was given explicitly.
func Resolve(name, rpcURL string) (Network, error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if strings.TrimSpace(name) == "" {
		if rpcURL == "" {
			return Lookup(Default)
		}
		return Network{Name: "custom", URL: rpcURL}, nil
	}
	n, err := Lookup(name)
	if err != nil {
		return Network{}, err
	}
	if rpcURL != "" {
		n.URL = rpcURL
	}
	return n, nil
}

func Names() []string {
	out := make([]string, 0, len(presets))
	for name := range presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// TxURL links to a transaction on the network's block explorer, or "" when there is none.
func (n Network) TxURL(txHash common.Hash) string {
	if n.ExplorerURL == "" {
		return ""
	}
	return strings.TrimRight(n.ExplorerURL, "/") + "/tx/" + txHash.Hex()
}
