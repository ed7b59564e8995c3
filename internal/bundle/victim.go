package bundle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrIntegrity means a re-encoded victim no longer hashes to the
	// observed transaction hash. It is a defect, not a skip.
	ErrIntegrity         = errors.New("victim re-encoding hash mismatch")
	ErrUnsupportedTxType = errors.New("unsupported victim transaction type")
)

// EncodeVictim re-encodes the observed victim verbatim and checks it still
// hashes to observed. Legacy, access-list and dynamic-fee transactions are
// supported.
func EncodeVictim(tx *types.Transaction, observed common.Hash) ([]byte, error) {
	switch tx.Type() {
	case types.LegacyTxType, types.AccessListTxType, types.DynamicFeeTxType:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedTxType, tx.Type())
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode victim: %w", err)
	}
	if err := VerifyRaw(raw, observed); err != nil {
		return nil, err
	}
	return raw, nil
}

// VerifyRaw checks keccak256(raw) against the expected hash
func VerifyRaw(raw []byte, observed common.Hash) error {
	if got := crypto.Keccak256Hash(raw); got != observed {
		return fmt.Errorf("%w: encoded %s, observed %s", ErrIntegrity, got.Hex(), observed.Hex())
	}
	return nil
}
