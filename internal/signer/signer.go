// Package signer holds the transaction signing identity of a harness run.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoKey is returned when no signing credential is configured
var ErrNoKey = errors.New("no signing key configured")

// Signer signs transactions for one chain
type Signer interface {
	Address() common.Address
	ChainID() *big.Int
	SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

// NonceSource reports the next nonce for an account
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// LocalSigner signs with an in-memory secp256k1 key and tracks the nonce
// cursor of its account.
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	signer     types.Signer

	mu        sync.Mutex
	nextNonce *uint64
}

// NewLocalSigner creates a LocalSigner from a hex-encoded private key, with
// or without a 0x prefix.
func NewLocalSigner(hexKey string, chainID *big.Int) (*LocalSigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return FromECDSA(privateKey, chainID), nil
}

// FromECDSA wraps an existing key
func FromECDSA(privateKey *ecdsa.PrivateKey, chainID *big.Int) *LocalSigner {
	return &LocalSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    new(big.Int).Set(chainID),
		signer:     types.LatestSignerForChainID(chainID),
	}
}

// LoadKey returns the hex key from an inline value or a key file. Inline wins.
func LoadKey(inline, file string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if file == "" {
		return "", ErrNoKey
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("reading key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("key file %s is empty", file)
	}
	return key, nil
}

// Address returns the signer's account address
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// ChainID returns the chain ID used for signing
func (s *LocalSigner) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// SignTransaction signs tx with the local key
func (s *LocalSigner) SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	signedTx, err := types.SignTx(tx, s.signer, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signedTx, nil
}

// NextNonce returns the nonce for the next transaction and advances the
// cursor. The first call reads the pending nonce from the ledger.
func (s *LocalSigner) NextNonce(ctx context.Context, src NonceSource) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextNonce == nil {
		n, err := src.PendingNonceAt(ctx, s.address)
		if err != nil {
			return 0, fmt.Errorf("reading pending nonce: %w", err)
		}
		s.nextNonce = &n
	}
	n := *s.nextNonce
	*s.nextNonce = n + 1
	return n, nil
}

// ResetNonce drops the cursor so the next call re-reads it from the ledger,
// used after a submission failed and the nonce was not consumed.
func (s *LocalSigner) ResetNonce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextNonce = nil
}
