// Package faucet transfers a fixed amount of test currency to a wallet. The
// faucet account's key stays in the server: transactions are signed locally
// and submitted through an Ethereum JSON-RPC node, then polled until mined.
package faucet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	// transferGas is the intrinsic gas of a plain value transfer.
	transferGas = 21000

	defaultReceiptTimeout = 2 * time.Minute
	defaultPollInterval   = 2 * time.Second
)

// ValidAddress reports whether s is a 0x-prefixed 20-byte hex address.
func ValidAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// Transferer is what the account service depends on.
//
// Send returns a non-empty hash together with an error when the transaction
// was broadcast but its outcome is unknown (for example the receipt wait
// timed out). Callers must then treat the funds as possibly sent.
type Transferer interface {
	Send(ctx context.Context, to string) (txHash string, err error)
}

// Backend is the subset of *ethclient.Client the faucet uses.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config selects the node, the faucet key and the transfer amount.
type Config struct {
	RPCURL string
	// PrivateKey is the hex encoded faucet key, with or without 0x.
	PrivateKey     string
	AmountWei      string
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

// Client signs and submits faucet transfers. Submissions are serialized so
// concurrent claims never reuse a nonce.
type Client struct {
	backend        Backend
	key            *ecdsa.PrivateKey
	from           common.Address
	amount         *big.Int
	receiptTimeout time.Duration
	pollInterval   time.Duration

	mu      sync.Mutex
	chainID *big.Int
}

// Dial validates cfg and connects to cfg.RPCURL with ethclient. Over HTTP
// no request is made until the first Send.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("faucet: rpc url is required")
	}
	if _, _, err := parseConfig(cfg); err != nil {
		return nil, err
	}
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("faucet: dial: %w", err)
	}
	return New(cfg, ec)
}

// New builds a Client over an existing backend. cfg.RPCURL is ignored.
func New(cfg Config, backend Backend) (*Client, error) {
	key, amount, err := parseConfig(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{
		backend:        backend,
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		amount:         amount,
		receiptTimeout: cfg.ReceiptTimeout,
		pollInterval:   cfg.PollInterval,
	}
	if c.receiptTimeout <= 0 {
		c.receiptTimeout = defaultReceiptTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	return c, nil
}

func parseConfig(cfg Config) (*ecdsa.PrivateKey, *big.Int, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, nil, fmt.Errorf("faucet: invalid private key: %w", err)
	}
	amount, ok := new(big.Int).SetString(cfg.AmountWei, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, nil, fmt.Errorf("faucet: invalid amount %q", cfg.AmountWei)
	}
	return key, amount, nil
}

// From is the faucet account address.
func (c *Client) From() string {
	return c.from.Hex()
}

// Send transfers the configured amount to `to` and waits for the
// transaction to be mined.
func (c *Client) Send(ctx context.Context, to string) (string, error) {
	if !ValidAddress(to) {
		return "", fmt.Errorf("faucet: invalid recipient %q", to)
	}

	tx, err := c.submit(ctx, common.HexToAddress(to))
	if err != nil {
		return "", err
	}
	hash := tx.Hash().Hex()

	receipt, err := c.waitMined(ctx, tx.Hash())
	if err != nil {
		return hash, fmt.Errorf("faucet: wait for %s: %w", hash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("faucet: transaction %s failed", hash)
	}
	return hash, nil
}

func (c *Client) submit(ctx context.Context, to common.Address) (*types.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chainID == nil {
		id, err := c.backend.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("faucet: chain id: %w", err)
		}
		c.chainID = id
	}

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("faucet: nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("faucet: gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int).Set(c.amount),
		Gas:      transferGas,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("faucet: sign: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("faucet: send: %w", err)
	}
	return signed, nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
