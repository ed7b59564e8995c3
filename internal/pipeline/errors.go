package pipeline

import (
	"context"
	"errors"

	"github.com/mev-protocol/sandwich/internal/bundle"
	"github.com/mev-protocol/sandwich/internal/sandwich"
	"github.com/mev-protocol/sandwich/pkg/types"
)

// Error is a pipeline abort class
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrNotApplicable Error = "transaction is not a sandwichable swap"
	ErrVictimMined   Error = "victim transaction already mined"
	ErrSimulation    Error = "bundle simulation failed"
	ErrSubmission    Error = "bundle submission failed"
	ErrChain         Error = "chain read failed"
)

// classify maps the error that stopped an attempt to its outcome. A failed
// attempt whose victim was observed mined is reported as victim mined,
// whatever error the cancellation produced.
func classify(ctx context.Context, err error) types.AbortReason {
	if err == nil {
		return types.ReasonNone
	}
	if errors.Is(context.Cause(ctx), ErrVictimMined) {
		return types.ReasonVictimMined
	}
	switch {
	case errors.Is(err, ErrNotApplicable), errors.Is(err, bundle.ErrUnsupportedTxType):
		return types.ReasonNotApplicable
	case errors.Is(err, sandwich.ErrNoOpportunity),
		errors.Is(err, sandwich.ErrUnprofitable),
		errors.Is(err, sandwich.ErrInvalidPlan):
		return types.ReasonNoOpportunity
	case errors.Is(err, bundle.ErrIntegrity):
		return types.ReasonIntegrity
	case errors.Is(err, ErrSimulation):
		return types.ReasonSimulation
	case errors.Is(err, bundle.ErrBribeVeto):
		return types.ReasonBribeVeto
	case errors.Is(err, ErrVictimMined):
		return types.ReasonVictimMined
	case errors.Is(err, ErrSubmission):
		return types.ReasonSubmission
	default:
		return types.ReasonChainError
	}
}
