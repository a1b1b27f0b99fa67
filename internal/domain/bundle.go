package domain

import (
	"math/big"
	"time"
)

// StepKind classifies one operation within an atomic bundle.
type StepKind string

const (
	StepBorrow StepKind = "borrow"
	StepSwap   StepKind = "swap"
	StepRepay  StepKind = "repay"
)

// Step is a single encoded chain operation. Target is a hex address and
// CallData the ABI-encoded call. Step order within a bundle is fixed by
// the strategy kind and must never be reordered by callers.
type Step struct {
	Kind     StepKind `json:"kind"`
	Target   string   `json:"target"`
	CallData []byte   `json:"callData"`
}

// FeeParams are the gas and fee fields of a bundle. Both fee values are
// capped at the configured ceilings before signing.
type FeeParams struct {
	GasLimit             uint64   `json:"gasLimit"`
	MaxFeePerGas         *big.Int `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas"`
}

// FeeSnapshot is a point-in-time view of the fee market. Bundle
// construction is a pure function of (opportunity, signer, snapshot).
type FeeSnapshot struct {
	BaseFee *big.Int
	TipCap  *big.Int
	TakenAt time.Time
}

// Bundle is an ordered, atomic sequence of chain operations signed
// together for one-shot relay submission.
type Bundle struct {
	OpportunityID string    `json:"opportunityId"`
	Steps         []Step    `json:"steps"`
	Fees          FeeParams `json:"fees"`

	// Digest is keccak256 over the canonical encoding of steps and
	// fees; Signature is the signer's secp256k1 signature over it.
	Digest    []byte `json:"digest"`
	Signature []byte `json:"signature"`
}

// Receipt records that the relay accepted a bundle for processing. It
// does not imply on-chain inclusion; settlement confirmation is owned by
// an external watcher.
type Receipt struct {
	BundleHash string    `json:"bundleHash"`
	AcceptedAt time.Time `json:"acceptedAt"`
}
