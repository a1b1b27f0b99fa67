// Package domain defines the core types shared across the executor:
// opportunities, transaction bundles, execution outcomes, and the
// interfaces of the external collaborators (secret provider, outcome
// ledger, claim guard, fee oracle).
package domain

import (
	"encoding/json"
	"time"
)

// StrategyKind identifies which bundle shape to build for an opportunity.
type StrategyKind string

const (
	StrategyFlashLoanArbitrage StrategyKind = "flash_loan_arbitrage"
	StrategySwapChain          StrategyKind = "swap_chain"
)

// KnownStrategy reports whether the executor has a construction rule for
// the given strategy kind.
func KnownStrategy(k StrategyKind) bool {
	switch k {
	case StrategyFlashLoanArbitrage, StrategySwapChain:
		return true
	default:
		return false
	}
}

// SwapHop is one pool swap within an opportunity payload. Amounts are
// decimal wei strings to preserve precision across JSON boundaries.
type SwapHop struct {
	Pool            string `json:"pool"`
	TokenIn         string `json:"tokenIn"`
	TokenOut        string `json:"tokenOut"`
	AmountOutMinWei string `json:"amountOutMinWei"`
}

// OpportunityPayload carries the strategy-specific parameters of a
// detected opportunity. Which fields are required depends on the
// strategy kind; the bundle builder validates them.
type OpportunityPayload struct {
	// Flash-loan fields.
	LendingPool     string `json:"lendingPool,omitempty"`
	BorrowToken     string `json:"borrowToken,omitempty"`
	BorrowAmountWei string `json:"borrowAmountWei,omitempty"`

	// Swap-chain input (first hop amount in).
	AmountInWei string `json:"amountInWei,omitempty"`

	Swaps []SwapHop `json:"swaps"`

	ExpectedProfitWei string `json:"expectedProfitWei"`
	MinProfitWei      string `json:"minProfitWei"`

	// Slippage tolerance bounds in basis points; min must not exceed max.
	SlippageBpsMin int `json:"slippageBpsMin"`
	SlippageBpsMax int `json:"slippageBpsMax"`
}

// Opportunity is the unit of work delivered by the upstream scanner. The
// ID comes from the inbound message and is the idempotency key: a given
// ID is driven to a terminal outcome at most once.
type Opportunity struct {
	ID         string             `json:"id"`
	Strategy   StrategyKind       `json:"strategy"`
	Payload    OpportunityPayload `json:"payload"`
	ReceivedAt time.Time          `json:"-"`
}

// DecodeOpportunity parses the inner push-message payload into an
// Opportunity and stamps the ingress time. It returns
// ErrMalformedPayload when the JSON cannot be parsed or the message
// carries no usable identity.
func DecodeOpportunity(data []byte, now time.Time) (Opportunity, error) {
	var opp Opportunity
	if err := json.Unmarshal(data, &opp); err != nil {
		return Opportunity{}, ErrMalformedPayload
	}
	if opp.ID == "" {
		return Opportunity{}, ErrMalformedPayload
	}
	opp.ReceivedAt = now.UTC()
	return opp, nil
}
