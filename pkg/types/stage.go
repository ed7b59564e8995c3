package types

// Stage of a single pending-transaction evaluation
type Stage int

const (
	StageReceived Stage = iota
	StageClassified
	StageReservesFetched
	StageOptimized
	StageSimulated
	StageBribed
	StageSubmitted
	StageAborted
)

var stageNames = [...]string{
	StageReceived:        "received",
	StageClassified:      "classified",
	StageReservesFetched: "reserves_fetched",
	StageOptimized:       "optimized",
	StageSimulated:       "simulated",
	StageBribed:          "bribed",
	StageSubmitted:       "submitted",
	StageAborted:         "aborted",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Terminal reports whether no further transition is possible
func (s Stage) Terminal() bool {
	return s == StageSubmitted || s == StageAborted
}

// AbortReason classifies why an evaluation stopped before submission
type AbortReason int

const (
	ReasonNone AbortReason = iota
	ReasonNotApplicable
	ReasonNoOpportunity
	ReasonIntegrity
	ReasonSimulation
	ReasonBribeVeto
	ReasonVictimMined
	ReasonSubmission
	ReasonChainError
)

var reasonNames = [...]string{
	ReasonNone:          "submitted",
	ReasonNotApplicable: "not_applicable",
	ReasonNoOpportunity: "no_opportunity",
	ReasonIntegrity:     "integrity",
	ReasonSimulation:    "simulation",
	ReasonBribeVeto:     "bribe_veto",
	ReasonVictimMined:   "victim_mined",
	ReasonSubmission:    "submission",
	ReasonChainError:    "chain_error",
}

func (r AbortReason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return "unknown"
	}
	return reasonNames[r]
}

// AllReasons lists every outcome label, submitted first
func AllReasons() []AbortReason {
	out := make([]AbortReason, 0, len(reasonNames))
	for r := range reasonNames {
		out = append(out, AbortReason(r))
	}
	return out
}
