// Package bundle constructs signed, atomic transaction bundles from
// opportunities. Construction is a pure function of the opportunity, the
// signer, and a fee-market snapshot: no hidden state, so identical
// inputs always yield identical unsigned steps.
package bundle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/TemamAb/orion-executor/internal/domain"
)

// Per-step gas allowances used to derive a bundle's gas limit.
const (
	gasBorrow = 250_000
	gasSwap   = 150_000
	gasRepay  = 90_000
)

// FeeCaps are the configured ceilings applied to every bundle. Fees and
// gas above a ceiling are capped, never submitted unbounded.
type FeeCaps struct {
	MaxGasLimit          uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Builder turns validated opportunities into signed bundles.
type Builder struct {
	caps FeeCaps
}

// NewBuilder creates a Builder with the given fee ceilings.
func NewBuilder(caps FeeCaps) *Builder {
	return &Builder{caps: caps}
}

// Validate performs the static, secret-free checks on an opportunity:
// known strategy, well-formed addresses, positive amounts, coherent swap
// chain, and non-inverted slippage bounds. It runs before any secret
// resolution.
func (b *Builder) Validate(opp domain.Opportunity) error {
	if !domain.KnownStrategy(opp.Strategy) {
		return fmt.Errorf("bundle: %w: %q", domain.ErrUnsupportedStrategy, opp.Strategy)
	}

	p := opp.Payload

	if len(p.Swaps) == 0 {
		return fmt.Errorf("bundle: %w: no swaps", domain.ErrInvalidParameters)
	}
	for i, hop := range p.Swaps {
		if !common.IsHexAddress(hop.Pool) || !common.IsHexAddress(hop.TokenIn) || !common.IsHexAddress(hop.TokenOut) {
			return fmt.Errorf("bundle: %w: swap %d has malformed address", domain.ErrInvalidParameters, i)
		}
		if _, err := positiveWei(hop.AmountOutMinWei); err != nil {
			return fmt.Errorf("bundle: %w: swap %d amountOutMin: %v", domain.ErrInvalidParameters, i, err)
		}
		if i > 0 && p.Swaps[i-1].TokenOut != hop.TokenIn {
			return fmt.Errorf("bundle: %w: swap chain broken at hop %d", domain.ErrInvalidParameters, i)
		}
	}

	if p.SlippageBpsMin < 0 || p.SlippageBpsMax > 10_000 || p.SlippageBpsMin > p.SlippageBpsMax {
		return fmt.Errorf("bundle: %w: slippage bounds [%d, %d]", domain.ErrInvalidParameters, p.SlippageBpsMin, p.SlippageBpsMax)
	}

	if _, err := positiveWei(p.ExpectedProfitWei); err != nil {
		return fmt.Errorf("bundle: %w: expectedProfit: %v", domain.ErrInvalidParameters, err)
	}
	if _, err := nonNegativeWei(p.MinProfitWei); err != nil {
		return fmt.Errorf("bundle: %w: minProfit: %v", domain.ErrInvalidParameters, err)
	}

	switch opp.Strategy {
	case domain.StrategyFlashLoanArbitrage:
		if !common.IsHexAddress(p.LendingPool) || !common.IsHexAddress(p.BorrowToken) {
			return fmt.Errorf("bundle: %w: flash loan addresses malformed", domain.ErrInvalidParameters)
		}
		if _, err := positiveWei(p.BorrowAmountWei); err != nil {
			return fmt.Errorf("bundle: %w: borrowAmount: %v", domain.ErrInvalidParameters, err)
		}
		if p.Swaps[0].TokenIn != p.BorrowToken {
			return fmt.Errorf("bundle: %w: first swap must spend the borrowed token", domain.ErrInvalidParameters)
		}
		if p.Swaps[len(p.Swaps)-1].TokenOut != p.BorrowToken {
			return fmt.Errorf("bundle: %w: swap chain must return to the borrowed token for repayment", domain.ErrInvalidParameters)
		}
	case domain.StrategySwapChain:
		if _, err := positiveWei(p.AmountInWei); err != nil {
			return fmt.Errorf("bundle: %w: amountIn: %v", domain.ErrInvalidParameters, err)
		}
	}

	return nil
}

// Build constructs and signs the bundle for an opportunity against a fee
// snapshot. It applies the profitability gate: when the declared
// expected profit minus the gas cost at the snapshot falls below the
// opportunity's minimum-profit threshold, it fails with
// ErrEconomicallyUnviable. Callers must Validate first.
func (b *Builder) Build(opp domain.Opportunity, signer domain.BundleSigner, snap domain.FeeSnapshot) (domain.Bundle, error) {
	if err := b.Validate(opp); err != nil {
		return domain.Bundle{}, err
	}

	steps, gasLimit := b.steps(opp)
	if gasLimit > b.caps.MaxGasLimit {
		gasLimit = b.caps.MaxGasLimit
	}

	fees := b.feeParams(gasLimit, snap)

	// Profitability gate. Worst-case gas cost at the capped fee.
	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), fees.MaxFeePerGas)
	expected, _ := positiveWei(opp.Payload.ExpectedProfitWei)
	minProfit, _ := nonNegativeWei(opp.Payload.MinProfitWei)
	net := new(big.Int).Sub(expected, gasCost)
	if net.Cmp(minProfit) < 0 {
		return domain.Bundle{}, fmt.Errorf("bundle: %w: net %s wei below threshold %s wei",
			domain.ErrEconomicallyUnviable, net.String(), minProfit.String())
	}

	out := domain.Bundle{
		OpportunityID: opp.ID,
		Steps:         steps,
		Fees:          fees,
	}
	out.Digest = Digest(out)

	sig, err := signer.SignDigest(out.Digest)
	if err != nil {
		return domain.Bundle{}, fmt.Errorf("bundle: %w: %v", domain.ErrSigningFailed, err)
	}
	out.Signature = sig

	return out, nil
}

// steps produces the ordered operation sequence for the strategy kind
// along with the summed gas allowance. Order is fixed per strategy and
// must not be changed by callers.
func (b *Builder) steps(opp domain.Opportunity) ([]domain.Step, uint64) {
	p := opp.Payload
	var steps []domain.Step
	var gas uint64

	if opp.Strategy == domain.StrategyFlashLoanArbitrage {
		amount, _ := positiveWei(p.BorrowAmountWei)
		steps = append(steps, domain.Step{
			Kind:     domain.StepBorrow,
			Target:   p.LendingPool,
			CallData: encodeBorrow(p.BorrowToken, amount),
		})
		gas += gasBorrow
	}

	for _, hop := range p.Swaps {
		amountOutMin, _ := positiveWei(hop.AmountOutMinWei)
		steps = append(steps, domain.Step{
			Kind:     domain.StepSwap,
			Target:   hop.Pool,
			CallData: encodeSwap(hop.TokenIn, hop.TokenOut, amountOutMin),
		})
		gas += gasSwap
	}

	if opp.Strategy == domain.StrategyFlashLoanArbitrage {
		amount, _ := positiveWei(p.BorrowAmountWei)
		steps = append(steps, domain.Step{
			Kind:     domain.StepRepay,
			Target:   p.LendingPool,
			CallData: encodeRepay(p.BorrowToken, amount),
		})
		gas += gasRepay
	}

	return steps, gas
}

// feeParams derives the capped EIP-1559 fee fields from a snapshot.
func (b *Builder) feeParams(gasLimit uint64, snap domain.FeeSnapshot) domain.FeeParams {
	tip := new(big.Int)
	if snap.TipCap != nil {
		tip.Set(snap.TipCap)
	}
	if tip.Cmp(b.caps.MaxPriorityFeePerGas) > 0 {
		tip.Set(b.caps.MaxPriorityFeePerGas)
	}

	// maxFee = 2*baseFee + tip, capped at the ceiling.
	maxFee := new(big.Int)
	if snap.BaseFee != nil {
		maxFee.Mul(snap.BaseFee, big.NewInt(2))
	}
	maxFee.Add(maxFee, tip)
	if maxFee.Cmp(b.caps.MaxFeePerGas) > 0 {
		maxFee.Set(b.caps.MaxFeePerGas)
	}

	return domain.FeeParams{
		GasLimit:             gasLimit,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: tip,
	}
}

// positiveWei parses a decimal wei string and requires it to be > 0 and
// to fit a uint256 calldata word.
func positiveWei(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal integer: %q", s)
	}
	if n.Sign() <= 0 {
		return nil, fmt.Errorf("must be positive, got %s", s)
	}
	if n.BitLen() > 256 {
		return nil, fmt.Errorf("exceeds 256 bits: %s", s)
	}
	return n, nil
}

// nonNegativeWei parses a decimal wei string and requires it to be >= 0
// and to fit a uint256 calldata word.
func nonNegativeWei(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal integer: %q", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("must not be negative, got %s", s)
	}
	if n.BitLen() > 256 {
		return nil, fmt.Errorf("exceeds 256 bits: %s", s)
	}
	return n, nil
}
