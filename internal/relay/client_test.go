package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TemamAb/orion-executor/internal/domain"
)

type stubSigner struct{}

func (stubSigner) SignDigest(digest []byte) ([]byte, error) {
	sig := make([]byte, 65)
	copy(sig, digest)
	sig[64] = 27
	return sig, nil
}

func (stubSigner) Address() string {
	return "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"
}

func testBundle() domain.Bundle {
	return domain.Bundle{
		OpportunityID: "op-1",
		Steps: []domain.Step{
			{Kind: domain.StepSwap, Target: "0x1111111111111111111111111111111111111111", CallData: []byte{0x01}},
		},
		Digest:    make([]byte, 32),
		Signature: make([]byte, 65),
	}
}

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(Config{URL: url, Timeout: timeout}, slog.New(slog.DiscardHandler))
}

func TestSubmitAccepted(t *testing.T) {
	var gotAuth, gotSig string
	var gotReq rpcRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotSig = r.Header.Get("X-Flashbots-Signature")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotReq)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"bundleHash":"0xabc123"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5*time.Second)
	receipt, err := c.Submit(context.Background(), testBundle(), stubSigner{}, "relay-token")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.BundleHash != "0xabc123" {
		t.Fatalf("bundle hash = %q", receipt.BundleHash)
	}
	if receipt.AcceptedAt.IsZero() {
		t.Fatal("AcceptedAt not stamped")
	}

	if gotAuth != "Bearer relay-token" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if !strings.HasPrefix(gotSig, "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1:0x") {
		t.Fatalf("identity header = %q", gotSig)
	}
	if gotReq.Method != "eth_sendBundle" {
		t.Fatalf("method = %q", gotReq.Method)
	}
	if len(gotReq.Params) != 1 || gotReq.Params[0].ReplacementUUID != "op-1" {
		t.Fatalf("params = %+v", gotReq.Params)
	}
	if len(gotReq.Params[0].Txs) != 1 || !strings.HasPrefix(gotReq.Params[0].Txs[0], "0x") {
		t.Fatalf("txs = %v", gotReq.Params[0].Txs)
	}
}

func TestSubmitRPCErrorIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32600,"message":"bundle replaced"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5*time.Second)
	_, err := c.Submit(context.Background(), testBundle(), stubSigner{}, "k")
	if !errors.Is(err, domain.ErrRelayRejected) {
		t.Fatalf("err = %v, want ErrRelayRejected", err)
	}
	if !strings.Contains(err.Error(), "bundle replaced") {
		t.Fatalf("err = %v, want relay message included", err)
	}
}

func TestSubmitEmptyResultIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5*time.Second)
	_, err := c.Submit(context.Background(), testBundle(), stubSigner{}, "k")
	if !errors.Is(err, domain.ErrRelayRejected) {
		t.Fatalf("err = %v, want ErrRelayRejected", err)
	}
}

func TestSubmitHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		status  int
		wantErr error
	}{
		{http.StatusBadRequest, domain.ErrRelayRejected},
		{http.StatusForbidden, domain.ErrRelayRejected},
		{http.StatusTooManyRequests, domain.ErrRelayUnreachable},
		{http.StatusInternalServerError, domain.ErrRelayUnreachable},
		{http.StatusBadGateway, domain.ErrRelayUnreachable},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		c := newTestClient(srv.URL, 5*time.Second)
		_, err := c.Submit(context.Background(), testBundle(), stubSigner{}, "k")
		srv.Close()

		if !errors.Is(err, tc.wantErr) {
			t.Fatalf("status %d: err = %v, want %v", tc.status, err, tc.wantErr)
		}
	}
}

func TestSubmitTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	c := newTestClient(srv.URL, 50*time.Millisecond)
	_, err := c.Submit(context.Background(), testBundle(), stubSigner{}, "k")
	if !errors.Is(err, domain.ErrRelayTimeout) {
		t.Fatalf("err = %v, want ErrRelayTimeout", err)
	}
}

func TestSubmitConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // nothing listens here anymore

	c := newTestClient(url, time.Second)
	_, err := c.Submit(context.Background(), testBundle(), stubSigner{}, "k")
	if !errors.Is(err, domain.ErrRelayUnreachable) {
		t.Fatalf("err = %v, want ErrRelayUnreachable", err)
	}
}
