// Package signer holds the searcher key and the nonce allocator shared by
// concurrent sandwich attempts.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Key signs transactions and messages with a single secp256k1 key
type Key struct {
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
}

// NewKey parses a hex private key, with or without 0x prefix
func NewKey(hexKey string, chainID *big.Int) (*Key, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return FromECDSA(key, chainID), nil
}

// FromECDSA wraps an already parsed key
func FromECDSA(key *ecdsa.PrivateKey, chainID *big.Int) *Key {
	return &Key{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(chainID),
	}
}

// Address of the key
func (k *Key) Address() common.Address {
	return k.address
}

// SignTx signs tx for the configured chain
func (k *Key) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, k.signer, k.key)
}

// SignMessage produces an EIP-191 personal signature over msg with V in
// {27, 28}, the form relays expect in their auth header.
func (k *Key) SignMessage(msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), k.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
