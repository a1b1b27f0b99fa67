package bundle

import (
	"bytes"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/TemamAb/orion-executor/internal/domain"
)

const (
	poolAddr   = "0x1111111111111111111111111111111111111111"
	tokenA     = "0x2222222222222222222222222222222222222222"
	tokenB     = "0x3333333333333333333333333333333333333333"
	swapPool   = "0x4444444444444444444444444444444444444444"
	swapPool2  = "0x5555555555555555555555555555555555555555"
	oneEth     = "1000000000000000000"
	tenthEth   = "100000000000000000"
	hundredthE = "10000000000000000"
)

type stubSigner struct{}

func (stubSigner) SignDigest(digest []byte) ([]byte, error) {
	sig := make([]byte, 65)
	copy(sig, digest)
	sig[64] = 27
	return sig, nil
}

func (stubSigner) Address() string { return tokenA }

func testCaps() FeeCaps {
	return FeeCaps{
		MaxGasLimit:          1_000_000,
		MaxFeePerGas:         big.NewInt(100_000_000_000), // 100 gwei
		MaxPriorityFeePerGas: big.NewInt(3_000_000_000),   // 3 gwei
	}
}

func testSnapshot() domain.FeeSnapshot {
	return domain.FeeSnapshot{
		BaseFee: big.NewInt(20_000_000_000), // 20 gwei
		TipCap:  big.NewInt(1_000_000_000),  // 1 gwei
		TakenAt: time.Now().UTC(),
	}
}

func flashLoanOpp() domain.Opportunity {
	return domain.Opportunity{
		ID:       "op-1",
		Strategy: domain.StrategyFlashLoanArbitrage,
		Payload: domain.OpportunityPayload{
			LendingPool:     poolAddr,
			BorrowToken:     tokenA,
			BorrowAmountWei: oneEth,
			Swaps: []domain.SwapHop{
				{Pool: swapPool, TokenIn: tokenA, TokenOut: tokenB, AmountOutMinWei: oneEth},
				{Pool: swapPool2, TokenIn: tokenB, TokenOut: tokenA, AmountOutMinWei: oneEth},
			},
			ExpectedProfitWei: tenthEth,
			MinProfitWei:      hundredthE,
			SlippageBpsMin:    10,
			SlippageBpsMax:    100,
		},
	}
}

func swapChainOpp() domain.Opportunity {
	return domain.Opportunity{
		ID:       "op-2",
		Strategy: domain.StrategySwapChain,
		Payload: domain.OpportunityPayload{
			AmountInWei: oneEth,
			Swaps: []domain.SwapHop{
				{Pool: swapPool, TokenIn: tokenA, TokenOut: tokenB, AmountOutMinWei: oneEth},
			},
			ExpectedProfitWei: tenthEth,
			MinProfitWei:      hundredthE,
			SlippageBpsMin:    0,
			SlippageBpsMax:    50,
		},
	}
}

// overWideWei is a decimal amount that cannot fit a uint256 word.
func overWideWei() string {
	return new(big.Int).Lsh(big.NewInt(1), 300).String()
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	b := NewBuilder(testCaps())
	if err := b.Validate(flashLoanOpp()); err != nil {
		t.Fatalf("flash loan opportunity rejected: %v", err)
	}
	if err := b.Validate(swapChainOpp()); err != nil {
		t.Fatalf("swap chain opportunity rejected: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	b := NewBuilder(testCaps())

	cases := []struct {
		name    string
		mutate  func(*domain.Opportunity)
		wantErr error
	}{
		{
			"unknown strategy",
			func(o *domain.Opportunity) { o.Strategy = "triangular" },
			domain.ErrUnsupportedStrategy,
		},
		{
			"no swaps",
			func(o *domain.Opportunity) { o.Payload.Swaps = nil },
			domain.ErrInvalidParameters,
		},
		{
			"malformed pool address",
			func(o *domain.Opportunity) { o.Payload.Swaps[0].Pool = "not-an-address" },
			domain.ErrInvalidParameters,
		},
		{
			"broken swap chain",
			func(o *domain.Opportunity) { o.Payload.Swaps[1].TokenIn = swapPool },
			domain.ErrInvalidParameters,
		},
		{
			"inverted slippage bounds",
			func(o *domain.Opportunity) { o.Payload.SlippageBpsMin = 200; o.Payload.SlippageBpsMax = 100 },
			domain.ErrInvalidParameters,
		},
		{
			"slippage above 100 percent",
			func(o *domain.Opportunity) { o.Payload.SlippageBpsMax = 10_001 },
			domain.ErrInvalidParameters,
		},
		{
			"zero borrow amount",
			func(o *domain.Opportunity) { o.Payload.BorrowAmountWei = "0" },
			domain.ErrInvalidParameters,
		},
		{
			"negative expected profit",
			func(o *domain.Opportunity) { o.Payload.ExpectedProfitWei = "-1" },
			domain.ErrInvalidParameters,
		},
		{
			"borrow amount wider than uint256",
			func(o *domain.Opportunity) { o.Payload.BorrowAmountWei = overWideWei() },
			domain.ErrInvalidParameters,
		},
		{
			"amountOutMin wider than uint256",
			func(o *domain.Opportunity) { o.Payload.Swaps[0].AmountOutMinWei = overWideWei() },
			domain.ErrInvalidParameters,
		},
		{
			"min profit wider than uint256",
			func(o *domain.Opportunity) { o.Payload.MinProfitWei = overWideWei() },
			domain.ErrInvalidParameters,
		},
		{
			"first swap not in borrow token",
			func(o *domain.Opportunity) { o.Payload.Swaps[0].TokenIn = tokenB; o.Payload.Swaps[1].TokenIn = tokenB },
			domain.ErrInvalidParameters,
		},
		{
			"chain does not return to borrow token",
			func(o *domain.Opportunity) { o.Payload.Swaps[1].TokenOut = tokenB },
			domain.ErrInvalidParameters,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opp := flashLoanOpp()
			tc.mutate(&opp)
			err := b.Validate(opp)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestBuildRejectsOverWideBorrowAmount(t *testing.T) {
	b := NewBuilder(testCaps())

	opp := flashLoanOpp()
	opp.Payload.BorrowAmountWei = overWideWei()

	if _, err := b.Build(opp, stubSigner{}, testSnapshot()); !errors.Is(err, domain.ErrInvalidParameters) {
		t.Fatalf("err = %v, want ErrInvalidParameters", err)
	}
}

func TestBuildEncodesFullWidthBorrowAmount(t *testing.T) {
	b := NewBuilder(testCaps())

	// Largest representable amount: all 256 bits set.
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	opp := flashLoanOpp()
	opp.Payload.BorrowAmountWei = max.String()
	opp.Payload.ExpectedProfitWei = max.String()

	bdl, err := b.Build(opp, stubSigner{}, testSnapshot())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Borrow calldata layout: selector(4) | token word(32) | amount word(32).
	data := bdl.Steps[0].CallData
	if len(data) != 68 {
		t.Fatalf("borrow calldata length = %d, want 68", len(data))
	}
	got := new(big.Int).SetBytes(data[36:68])
	if got.Cmp(max) != 0 {
		t.Fatalf("encoded amount = %s, want %s", got, max)
	}
}

func TestBuildFlashLoanStepOrder(t *testing.T) {
	b := NewBuilder(testCaps())

	bdl, err := b.Build(flashLoanOpp(), stubSigner{}, testSnapshot())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantKinds := []domain.StepKind{domain.StepBorrow, domain.StepSwap, domain.StepSwap, domain.StepRepay}
	if len(bdl.Steps) != len(wantKinds) {
		t.Fatalf("steps = %d, want %d", len(bdl.Steps), len(wantKinds))
	}
	for i, k := range wantKinds {
		if bdl.Steps[i].Kind != k {
			t.Fatalf("step %d kind = %s, want %s", i, bdl.Steps[i].Kind, k)
		}
	}

	// Borrow and repay target the lending pool.
	if bdl.Steps[0].Target != poolAddr || bdl.Steps[3].Target != poolAddr {
		t.Fatal("borrow/repay must target the lending pool")
	}
	if len(bdl.Signature) != 65 {
		t.Fatalf("signature length = %d, want 65", len(bdl.Signature))
	}
	if len(bdl.Digest) != 32 {
		t.Fatalf("digest length = %d, want 32", len(bdl.Digest))
	}
}

func TestBuildSwapChainHasNoFlashLoanSteps(t *testing.T) {
	b := NewBuilder(testCaps())

	bdl, err := b.Build(swapChainOpp(), stubSigner{}, testSnapshot())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(bdl.Steps) != 1 || bdl.Steps[0].Kind != domain.StepSwap {
		t.Fatalf("steps = %+v, want a single swap", bdl.Steps)
	}
}

func TestBuildDeterministicDigest(t *testing.T) {
	b := NewBuilder(testCaps())
	snap := testSnapshot()

	one, err := b.Build(flashLoanOpp(), stubSigner{}, snap)
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}
	two, err := b.Build(flashLoanOpp(), stubSigner{}, snap)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}

	if !bytes.Equal(one.Digest, two.Digest) {
		t.Fatal("identical inputs produced different digests")
	}
	if !bytes.Equal(one.Signature, two.Signature) {
		t.Fatal("identical inputs produced different signatures")
	}

	// A different swap amount must change the digest.
	altered := flashLoanOpp()
	altered.Payload.Swaps[0].AmountOutMinWei = tenthEth
	three, err := b.Build(altered, stubSigner{}, snap)
	if err != nil {
		t.Fatalf("altered Build: %v", err)
	}
	if bytes.Equal(one.Digest, three.Digest) {
		t.Fatal("altered payload did not change the digest")
	}
}

func TestBuildFeeCapping(t *testing.T) {
	caps := testCaps()
	caps.MaxFeePerGas = big.NewInt(30_000_000_000)      // 30 gwei ceiling
	caps.MaxPriorityFeePerGas = big.NewInt(500_000_000) // 0.5 gwei ceiling
	b := NewBuilder(caps)

	opp := flashLoanOpp()
	opp.Payload.ExpectedProfitWei = oneEth // keep gate satisfied under the cap

	bdl, err := b.Build(opp, stubSigner{}, testSnapshot())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if bdl.Fees.MaxFeePerGas.Cmp(caps.MaxFeePerGas) != 0 {
		t.Fatalf("maxFee = %s, want capped at %s", bdl.Fees.MaxFeePerGas, caps.MaxFeePerGas)
	}
	if bdl.Fees.MaxPriorityFeePerGas.Cmp(caps.MaxPriorityFeePerGas) != 0 {
		t.Fatalf("tip = %s, want capped at %s", bdl.Fees.MaxPriorityFeePerGas, caps.MaxPriorityFeePerGas)
	}
}

func TestBuildGasLimitCapped(t *testing.T) {
	caps := testCaps()
	caps.MaxGasLimit = 300_000 // below borrow+2*swap+repay
	b := NewBuilder(caps)

	opp := flashLoanOpp()
	opp.Payload.ExpectedProfitWei = oneEth

	bdl, err := b.Build(opp, stubSigner{}, testSnapshot())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if bdl.Fees.GasLimit != caps.MaxGasLimit {
		t.Fatalf("gasLimit = %d, want capped at %d", bdl.Fees.GasLimit, caps.MaxGasLimit)
	}
}

func TestBuildEconomicallyUnviable(t *testing.T) {
	b := NewBuilder(testCaps())

	// Gas cost at 41 gwei over 640k gas is ~0.026 ETH; an expected profit
	// of 0.01 ETH cannot clear a 0.01 ETH threshold.
	opp := flashLoanOpp()
	opp.Payload.ExpectedProfitWei = hundredthE
	opp.Payload.MinProfitWei = hundredthE

	_, err := b.Build(opp, stubSigner{}, testSnapshot())
	if !errors.Is(err, domain.ErrEconomicallyUnviable) {
		t.Fatalf("err = %v, want ErrEconomicallyUnviable", err)
	}
}

func TestFeeParamsNilSnapshotFields(t *testing.T) {
	b := NewBuilder(testCaps())

	fees := b.feeParams(100_000, domain.FeeSnapshot{})
	if fees.MaxFeePerGas.Sign() != 0 {
		t.Fatalf("maxFee = %s, want 0 for empty snapshot", fees.MaxFeePerGas)
	}
	if fees.MaxPriorityFeePerGas.Sign() != 0 {
		t.Fatalf("tip = %s, want 0 for empty snapshot", fees.MaxPriorityFeePerGas)
	}
}
