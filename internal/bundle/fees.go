package bundle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/TemamAb/orion-executor/internal/domain"
)

// EthFeeOracle implements domain.FeeOracle over a JSON-RPC Ethereum
// node. A failed snapshot is an infrastructure error, never a terminal
// outcome.
type EthFeeOracle struct {
	client *ethclient.Client
}

// NewEthFeeOracle dials the node at rpcURL.
func NewEthFeeOracle(ctx context.Context, rpcURL string) (*EthFeeOracle, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("bundle: dial %s: %w", rpcURL, err)
	}
	return &EthFeeOracle{client: client}, nil
}

// Snapshot reads the latest base fee and suggested tip.
func (o *EthFeeOracle) Snapshot(ctx context.Context) (domain.FeeSnapshot, error) {
	head, err := o.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return domain.FeeSnapshot{}, fmt.Errorf("bundle: %w: head: %v", domain.ErrFeeSnapshot, err)
	}

	tip, err := o.client.SuggestGasTipCap(ctx)
	if err != nil {
		return domain.FeeSnapshot{}, fmt.Errorf("bundle: %w: tip cap: %v", domain.ErrFeeSnapshot, err)
	}

	baseFee := head.BaseFee
	if baseFee == nil {
		// Pre-1559 chains report no base fee.
		baseFee = new(big.Int)
	}

	return domain.FeeSnapshot{
		BaseFee: baseFee,
		TipCap:  tip,
		TakenAt: time.Now().UTC(),
	}, nil
}

// Close releases the underlying RPC connection.
func (o *EthFeeOracle) Close() {
	o.client.Close()
}

// Compile-time interface check.
var _ domain.FeeOracle = (*EthFeeOracle)(nil)
