package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mev-protocol/sandwich/internal/bundle"
	"github.com/mev-protocol/sandwich/internal/sandwich"
	"github.com/mev-protocol/sandwich/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want types.AbortReason
	}{
		{nil, types.ReasonNone},
		{ErrNotApplicable, types.ReasonNotApplicable},
		{fmt.Errorf("victim: %w", bundle.ErrUnsupportedTxType), types.ReasonNotApplicable},
		{sandwich.ErrNoOpportunity, types.ReasonNoOpportunity},
		{sandwich.ErrUnprofitable, types.ReasonNoOpportunity},
		{fmt.Errorf("%w: hash", bundle.ErrIntegrity), types.ReasonIntegrity},
		{fmt.Errorf("%w: leg 2", ErrSimulation), types.ReasonSimulation},
		{bundle.ErrBribeVeto, types.ReasonBribeVeto},
		{ErrVictimMined, types.ReasonVictimMined},
		{fmt.Errorf("%w: %w", ErrSubmission, errors.New("503")), types.ReasonSubmission},
		{errors.New("boom"), types.ReasonChainError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(context.Background(), tt.err), "%v", tt.err)
	}
}

func TestClassifyPrefersMinedCause(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(ErrVictimMined)
	assert.Equal(t, types.ReasonVictimMined, classify(ctx, fmt.Errorf("%w: %w", ErrSimulation, context.Canceled)))
}

func TestClassifySuccessIgnoresMinedCause(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(ErrVictimMined)
	assert.Equal(t, types.ReasonNone, classify(ctx, nil))
}

func TestEtherFormatting(t *testing.T) {
	wei, _ := new(big.Int).SetString("316621785946025817", 10)
	assert.Equal(t, "0.316621785946025817", ether(wei))
	assert.Equal(t, "-0.000000000000000005", ether(big.NewInt(-5)))
	assert.Equal(t, "30", gwei(big.NewInt(30_000_000_000)))
	assert.Equal(t, "0", ether(nil))
}
