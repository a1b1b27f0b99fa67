package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TemamAb/orion-executor/internal/domain"
)

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) Put(_ context.Context, path string, data io.Reader, _ string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = buf
	f.puts++
	return nil
}

func (f *fakeBlobStore) Exists(_ context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[path]
	return ok, nil
}

func (f *fakeBlobStore) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var infos []domain.BlobInfo
	for path, data := range f.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(data))})
		}
	}
	return infos, nil
}

type fakeLedgerSource struct {
	outcomes []domain.Outcome
}

func (f *fakeLedgerSource) ListBefore(_ context.Context, before time.Time) ([]domain.Outcome, error) {
	var outs []domain.Outcome
	for _, o := range f.outcomes {
		if o.RecordedAt.Before(before) {
			outs = append(outs, o)
		}
	}
	return outs, nil
}

func outcomeAt(id string, recordedAt time.Time) domain.Outcome {
	return domain.Outcome{
		OpportunityID: id,
		Status:        domain.OutcomeSucceeded,
		Detail:        "0xhash",
		Attempts:      1,
		RecordedAt:    recordedAt,
	}
}

func TestArchiveOncePartitionsByMonth(t *testing.T) {
	now := time.Now().UTC()
	// Mid-month anchors so adding an hour never crosses a partition.
	old := time.Date(now.Year(), now.Month(), 15, 12, 0, 0, 0, time.UTC).AddDate(0, -6, 0)
	older := old.AddDate(0, -1, 0)

	blob := newFakeBlobStore()
	ledger := &fakeLedgerSource{outcomes: []domain.Outcome{
		outcomeAt("op-1", old),
		outcomeAt("op-2", old.Add(time.Hour)),
		outcomeAt("op-3", older),
		outcomeAt("op-recent", now), // inside retention, not archived
	}}

	a := NewArchiver(blob, blob, ledger, 90*24*time.Hour, time.Hour, slog.New(slog.DiscardHandler))
	if err := a.ArchiveOnce(context.Background()); err != nil {
		t.Fatalf("ArchiveOnce: %v", err)
	}

	if len(blob.objects) != 2 {
		t.Fatalf("objects = %d, want 2 month partitions", len(blob.objects))
	}

	path := archivePrefix + old.Format("2006-01") + ".jsonl"
	data, ok := blob.objects[path]
	if !ok {
		t.Fatalf("missing partition %s (have %v)", path, blob.objects)
	}

	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	var out domain.Outcome
	if err := json.Unmarshal(lines[0], &out); err != nil {
		t.Fatalf("unmarshal archived line: %v", err)
	}
	if out.OpportunityID != "op-1" && out.OpportunityID != "op-2" {
		t.Fatalf("unexpected archived record %q", out.OpportunityID)
	}
}

func TestArchiveOnceSkipsClosedMonths(t *testing.T) {
	now := time.Now().UTC()
	old := time.Date(now.Year(), now.Month(), 15, 12, 0, 0, 0, time.UTC).AddDate(0, -6, 0)

	blob := newFakeBlobStore()
	ledger := &fakeLedgerSource{outcomes: []domain.Outcome{outcomeAt("op-1", old)}}

	a := NewArchiver(blob, blob, ledger, 90*24*time.Hour, time.Hour, slog.New(slog.DiscardHandler))
	if err := a.ArchiveOnce(context.Background()); err != nil {
		t.Fatalf("first ArchiveOnce: %v", err)
	}
	if err := a.ArchiveOnce(context.Background()); err != nil {
		t.Fatalf("second ArchiveOnce: %v", err)
	}

	if blob.puts != 1 {
		t.Fatalf("puts = %d, want 1 (closed month re-upload skipped)", blob.puts)
	}
}

func TestArchiveOnceNoEligibleOutcomes(t *testing.T) {
	blob := newFakeBlobStore()
	ledger := &fakeLedgerSource{outcomes: []domain.Outcome{
		outcomeAt("op-recent", time.Now().UTC()),
	}}

	a := NewArchiver(blob, blob, ledger, 90*24*time.Hour, time.Hour, slog.New(slog.DiscardHandler))
	if err := a.ArchiveOnce(context.Background()); err != nil {
		t.Fatalf("ArchiveOnce: %v", err)
	}
	if blob.puts != 0 {
		t.Fatalf("puts = %d, want 0", blob.puts)
	}
}

func TestMonthClosed(t *testing.T) {
	cutoff := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)

	if !monthClosed("2026-03", cutoff) {
		t.Fatal("2026-03 should be closed at cutoff 2026-05-15")
	}
	if monthClosed("2026-05", cutoff) {
		t.Fatal("2026-05 should still be open at cutoff 2026-05-15")
	}
	if monthClosed("garbage", cutoff) {
		t.Fatal("unparseable month must not be treated as closed")
	}
}
