package bundle

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/TemamAb/orion-executor/internal/domain"
)

// --------------------------------------------------------------------------
// Canonical encoding. The digest is keccak256 over a fixed layout of the
// ordered steps plus fee parameters, so two bundles with identical inputs
// hash identically and the hash pins the step order.
// --------------------------------------------------------------------------

var (
	// Bundle(bytes32 stepsHash,uint256 gasLimit,uint256 maxFeePerGas,uint256 maxPriorityFeePerGas)
	bundleTypeHash = ethcrypto.Keccak256(
		[]byte("Bundle(bytes32 stepsHash,uint256 gasLimit,uint256 maxFeePerGas,uint256 maxPriorityFeePerGas)"),
	)

	// Step(bytes32 kind,address target,bytes32 callDataHash)
	stepTypeHash = ethcrypto.Keccak256(
		[]byte("Step(bytes32 kind,address target,bytes32 callDataHash)"),
	)
)

// Function selectors for the executor contract calls, pre-computed as
// the first four bytes of keccak256 of the canonical signature.
var (
	selectorBorrow = ethcrypto.Keccak256([]byte("flashBorrow(address,uint256)"))[:4]
	selectorSwap   = ethcrypto.Keccak256([]byte("swapExactIn(address,address,uint256)"))[:4]
	selectorRepay  = ethcrypto.Keccak256([]byte("flashRepay(address,uint256)"))[:4]
)

// encodeBorrow builds the calldata for a flash-loan draw.
func encodeBorrow(token string, amount *big.Int) []byte {
	return concatBytes(
		selectorBorrow,
		addressWord(token),
		bigIntTo32Bytes(amount),
	)
}

// encodeSwap builds the calldata for one pool swap.
func encodeSwap(tokenIn, tokenOut string, amountOutMin *big.Int) []byte {
	return concatBytes(
		selectorSwap,
		addressWord(tokenIn),
		addressWord(tokenOut),
		bigIntTo32Bytes(amountOutMin),
	)
}

// encodeRepay builds the calldata for the flash-loan repayment.
func encodeRepay(token string, amount *big.Int) []byte {
	return concatBytes(
		selectorRepay,
		addressWord(token),
		bigIntTo32Bytes(amount),
	)
}

// Digest computes the canonical keccak256 digest of a bundle's steps and
// fee parameters. It ignores any existing Digest/Signature fields.
func Digest(b domain.Bundle) []byte {
	stepHashes := make([]byte, 0, len(b.Steps)*32)
	for _, st := range b.Steps {
		h := ethcrypto.Keccak256(
			concatBytes(
				stepTypeHash,
				ethcrypto.Keccak256([]byte(st.Kind)),
				addressWord(st.Target),
				ethcrypto.Keccak256(st.CallData),
			),
		)
		stepHashes = append(stepHashes, h...)
	}
	stepsHash := ethcrypto.Keccak256(stepHashes)

	return ethcrypto.Keccak256(
		concatBytes(
			bundleTypeHash,
			stepsHash,
			bigIntTo32Bytes(new(big.Int).SetUint64(b.Fees.GasLimit)),
			bigIntTo32Bytes(b.Fees.MaxFeePerGas),
			bigIntTo32Bytes(b.Fees.MaxPriorityFeePerGas),
		),
	)
}

// addressWord returns the 32-byte left-padded form of a hex address.
func addressWord(addr string) []byte {
	return common.LeftPadBytes(common.HexToAddress(addr).Bytes(), 32)
}

// bigIntTo32Bytes returns the 32-byte big-endian representation of n.
// A nil value encodes as zero. n must fit 256 bits; amount validation
// rejects wider values before any step is encoded.
func bigIntTo32Bytes(n *big.Int) []byte {
	padded := make([]byte, 32)
	if n == nil {
		return padded
	}
	b := n.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
