package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/juno-intents/token-transfer/internal/amount"
	"github.com/juno-intents/token-transfer/internal/erc20"
	"github.com/juno-intents/token-transfer/internal/eth"
	"github.com/juno-intents/token-transfer/internal/networks"
	"github.com/juno-intents/token-transfer/internal/transfer"
)

const defaultToken = "0xcd6A51559254030cA30C2FB2cbdf5c492e8Caf9c"

type outputDoc struct {
	Network     string `json:"network"`
	ChainID     uint64 `json:"chain_id"`
	Token       string `json:"token"`
	Symbol      string `json:"symbol,omitempty"`
	Decimals    uint8  `json:"decimals"`
	Holder      string `json:"holder,omitempty"`
	Balance     string `json:"balance,omitempty"`
	BalanceBase string `json:"balance_base_units,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := runMain(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runMain(ctx context.Context, args []string, stdout io.Writer) error {
	var (
		network  string
		rpcURL   string
		token    string
		holder   string
		keyEnv   string
		asJSON   bool
		deadline time.Duration
	)

	fs := flag.NewFlagSet("token-info", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&network, "network", "", "network preset: "+strings.Join(networks.Names(), "|")+" (default gnosis unless --rpc-url is set)")
	fs.StringVar(&rpcURL, "rpc-url", "", "JSON-RPC endpoint (overrides the preset endpoint)")
	fs.StringVar(&token, "token", defaultToken, "token contract address")
	fs.StringVar(&holder, "holder", "", "address whose balance to report")
	fs.StringVar(&keyEnv, "key-env", "", "env var holding a hex private key; its address is used when --holder is empty")
	fs.BoolVar(&asJSON, "json", false, "print a JSON document instead of text")
	fs.DurationVar(&deadline, "timeout", 30*time.Second, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tokenAddr, err := transfer.ParseAddress(token)
	if err != nil {
		return fmt.Errorf("--token: %w", err)
	}
	if holder != "" && keyEnv != "" {
		return errors.New("use only one of --holder or --key-env")
	}
	if keyEnv != "" {
		key, err := eth.ParsePrivateKeyHex(os.Getenv(keyEnv))
		if err != nil {
			return err
		}
		holder = crypto.PubkeyToAddress(key.PublicKey).Hex()
	}
	var (
		doc        outputDoc
		holderAddr common.Address
	)
	if holder != "" {
		holderAddr, err = transfer.ParseAddress(holder)
		if err != nil {
			return fmt.Errorf("--holder: %w", err)
		}
		doc.Holder = holderAddr.Hex()
	}

	net, err := networks.Resolve(network, rpcURL)
	if err != nil {
		return err
	}
	doc.Network = net.Name

	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	client, err := ethclient.DialContext(ctx, net.URL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", eth.Classify(err))
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("fetch chain id: %w", eth.Classify(err))
	}
	doc.ChainID = chainID.Uint64()

	tok, err := erc20.NewToken(tokenAddr, client)
	if err != nil {
		return err
	}
	doc.Token = tokenAddr.Hex()
	if doc.Decimals, err = tok.Decimals(ctx); err != nil {
		return err
	}
	if sym, err := tok.Symbol(ctx); err == nil {
		doc.Symbol = sym
	}
	if doc.Holder != "" {
		bal, err := tok.BalanceOf(ctx, holderAddr)
		if err != nil {
			return err
		}
		doc.BalanceBase = bal.String()
		doc.Balance = amount.FormatUnits(bal, doc.Decimals)
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	unit := doc.Symbol
	if unit == "" {
		unit = "tokens"
	}
	fmt.Fprintf(stdout, "Token: %s (%s) on %s, chain %d\n", doc.Token, unit, doc.Network, doc.ChainID)
	fmt.Fprintf(stdout, "Decimals: %d\n", doc.Decimals)
	if doc.Holder != "" {
		fmt.Fprintf(stdout, "Balance of %s: %s %s\n", doc.Holder, doc.Balance, unit)
	}
	return nil
}
