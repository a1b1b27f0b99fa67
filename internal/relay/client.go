// Package relay submits signed bundles to a private atomic-execution
// relay over an HTTP JSON-RPC channel. A submitter call carries exactly
// one bundle and never retries or mutates it internally; retry policy
// belongs to the coordinator.
package relay

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/TemamAb/orion-executor/internal/domain"
)

// Config holds the relay endpoint parameters.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client is the relay submitter.
type Client struct {
	cfg    Config
	httpc  *http.Client
	logger *slog.Logger
}

// NewClient creates a relay Client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(slog.String("component", "relay")),
	}
}

// rpcRequest is the JSON-RPC 2.0 envelope for eth_sendBundle.
type rpcRequest struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      int          `json:"id"`
	Method  string       `json:"method"`
	Params  []sendParams `json:"params"`
}

type sendParams struct {
	Txs []string `json:"txs"`
	// ReplacementUUID lets the relay deduplicate resubmissions of the
	// same opportunity.
	ReplacementUUID string `json:"replacementUuid,omitempty"`
}

type rpcResponse struct {
	Result *struct {
		BundleHash string `json:"bundleHash"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Submit sends one signed bundle to the relay. It returns a receipt on
// acceptance, ErrRelayRejected when the relay synchronously refuses the
// bundle, and ErrRelayUnreachable/ErrRelayTimeout for transport-level
// failures. Acceptance means "queued for processing", not settled.
func (c *Client) Submit(ctx context.Context, b domain.Bundle, signer domain.BundleSigner, apiKey string) (domain.Receipt, error) {
	payload, err := json.Marshal(b)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("relay: marshal bundle: %w", err)
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_sendBundle",
		Params: []sendParams{{
			Txs:             []string{"0x" + hex.EncodeToString(payload)},
			ReplacementUUID: b.OpportunityID,
		}},
	})
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("relay: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("relay: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	// Relay identity header: address:signature over the request body.
	sig, err := signer.SignDigest(ethcrypto.Keccak256(body))
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("relay: %w: sign identity header: %v", domain.ErrSigningFailed, err)
	}
	req.Header.Set("X-Flashbots-Signature", signer.Address()+":0x"+hex.EncodeToString(sig))

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return domain.Receipt{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("relay: %w: read response: %v", domain.ErrRelayUnreachable, err)
	}

	// 5xx and 429 are transient; other non-2xx codes are a synchronous
	// refusal of this bundle.
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return domain.Receipt{}, fmt.Errorf("relay: %w: status %d", domain.ErrRelayUnreachable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Receipt{}, fmt.Errorf("relay: %w: status %d: %s", domain.ErrRelayRejected, resp.StatusCode, raw)
	}

	var rpc rpcResponse
	if err := json.Unmarshal(raw, &rpc); err != nil {
		return domain.Receipt{}, fmt.Errorf("relay: %w: decode response: %v", domain.ErrRelayUnreachable, err)
	}
	if rpc.Error != nil {
		return domain.Receipt{}, fmt.Errorf("relay: %w: code %d: %s", domain.ErrRelayRejected, rpc.Error.Code, rpc.Error.Message)
	}
	if rpc.Result == nil || rpc.Result.BundleHash == "" {
		return domain.Receipt{}, fmt.Errorf("relay: %w: empty result", domain.ErrRelayRejected)
	}

	c.logger.Debug("bundle accepted",
		slog.String("opportunity_id", b.OpportunityID),
		slog.String("bundle_hash", rpc.Result.BundleHash),
		slog.Duration("rtt", time.Since(start)),
	)

	return domain.Receipt{
		BundleHash: rpc.Result.BundleHash,
		AcceptedAt: time.Now().UTC(),
	}, nil
}

// classifyTransportError maps an http.Client error to the timeout or
// unreachable sentinel.
func classifyTransportError(err error) error {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return fmt.Errorf("relay: %w: %v", domain.ErrRelayTimeout, err)
	}
	return fmt.Errorf("relay: %w: %v", domain.ErrRelayUnreachable, err)
}
