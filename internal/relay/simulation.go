package relay

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SimulationResult from eth_callBundle
type SimulationResult struct {
	BundleGasPrice    string               `json:"bundleGasPrice"`
	BundleHash        string               `json:"bundleHash"`
	CoinbaseDiff      string               `json:"coinbaseDiff"`
	EthSentToCoinbase string               `json:"ethSentToCoinbase"`
	GasFees           string               `json:"gasFees"`
	Results           []TxSimulationResult `json:"results"`
	StateBlockNumber  uint64               `json:"stateBlockNumber"`
	TotalGasUsed      uint64               `json:"totalGasUsed"`
	FirstRevert       *TxSimulationResult  `json:"firstRevert,omitempty"`
}

// TxSimulationResult for individual tx
type TxSimulationResult struct {
	CoinbaseDiff      string         `json:"coinbaseDiff"`
	EthSentToCoinbase string         `json:"ethSentToCoinbase"`
	FromAddress       common.Address `json:"fromAddress"`
	GasFees           string         `json:"gasFees"`
	GasPrice          string         `json:"gasPrice"`
	GasUsed           uint64         `json:"gasUsed"`
	ToAddress         common.Address `json:"toAddress"`
	TxHash            common.Hash    `json:"txHash"`
	Value             string         `json:"value"`
	Error             string         `json:"error,omitempty"`
	Revert            string         `json:"revert,omitempty"`
}

// SimOutcome is one of SimSuccess, SimReverted or SimFailed
type SimOutcome interface {
	simOutcome()
}

// SimSuccess means every leg executed
type SimSuccess struct {
	Result *SimulationResult
}

// SimReverted means a leg reverted or reported an error
type SimReverted struct {
	Leg    int
	TxHash common.Hash
	Reason string
	Result *SimulationResult
}

// SimFailed is a relay-level simulation error
type SimFailed struct {
	Message string
}

func (SimSuccess) simOutcome()  {}
func (SimReverted) simOutcome() {}
func (SimFailed) simOutcome()   {}

// GasUsed returns gas used per leg in bundle order
func (s SimSuccess) GasUsed() []uint64 {
	out := make([]uint64, len(s.Result.Results))
	for i, r := range s.Result.Results {
		out[i] = r.GasUsed
	}
	return out
}

func (s SimReverted) Error() string {
	return fmt.Sprintf("leg %d (%s) reverted: %s", s.Leg, s.TxHash.Hex(), s.Reason)
}

func (s SimFailed) Error() string {
	return "simulation failed: " + s.Message
}

func classify(result *SimulationResult) SimOutcome {
	if r := result.FirstRevert; r != nil {
		leg := -1
		for i := range result.Results {
			if result.Results[i].TxHash == r.TxHash {
				leg = i
				break
			}
		}
		return SimReverted{Leg: leg, TxHash: r.TxHash, Reason: reason(r), Result: result}
	}
	for i := range result.Results {
		r := &result.Results[i]
		if r.Error != "" || r.Revert != "" {
			return SimReverted{Leg: i, TxHash: r.TxHash, Reason: reason(r), Result: result}
		}
	}
	return SimSuccess{Result: result}
}

func reason(r *TxSimulationResult) string {
	switch {
	case r.Revert != "" && r.Error != "":
		return r.Error + ": " + r.Revert
	case r.Revert != "":
		return r.Revert
	case r.Error != "":
		return r.Error
	default:
		return "reverted"
	}
}
