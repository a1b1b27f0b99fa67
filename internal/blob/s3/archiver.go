package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/TemamAb/orion-executor/internal/domain"
)

// archivePrefix is the key prefix for all outcome archive objects.
const archivePrefix = "archive/outcomes/"

// largeObjectBytes is the threshold above which uploads switch to the
// multipart path.
const largeObjectBytes = 8 * 1024 * 1024

// LedgerSource provides read access to terminal outcomes for archival.
// The archiver never mutates the ledger: archived rows stay queryable so
// the idempotency check keeps its full history.
type LedgerSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Outcome, error)
}

// multipartWriter is the optional fast path for large archive objects.
type multipartWriter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver periodically exports terminal outcomes older than the
// retention window to month-partitioned JSONL objects. A month whose
// object already exists and can no longer gain rows is skipped, so
// repeated runs are idempotent.
type Archiver struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader
	ledger    LedgerSource
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	ledger LedgerSource,
	retention, interval time.Duration,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:    writer,
		reader:    reader,
		ledger:    ledger,
		retention: retention,
		interval:  interval,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run archives once immediately, then on every interval tick until the
// context is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	a.logInventory(ctx)

	if err := a.ArchiveOnce(ctx); err != nil {
		a.logger.Error("archive pass failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.ArchiveOnce(ctx); err != nil {
				a.logger.Error("archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ArchiveOnce exports all outcomes recorded before the retention cutoff,
// grouped into one object per calendar month.
func (a *Archiver) ArchiveOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-a.retention)

	outs, err := a.ledger.ListBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(outs) == 0 {
		return nil
	}

	byMonth := make(map[string][]domain.Outcome)
	for _, out := range outs {
		month := out.RecordedAt.UTC().Format("2006-01")
		byMonth[month] = append(byMonth[month], out)
	}

	for month, records := range byMonth {
		if err := a.archiveMonth(ctx, month, records, cutoff); err != nil {
			return err
		}
	}
	return nil
}

// archiveMonth uploads one month partition. Months that ended before the
// cutoff are immutable once written and are skipped when already present.
func (a *Archiver) archiveMonth(ctx context.Context, month string, records []domain.Outcome, cutoff time.Time) error {
	path := archivePrefix + month + ".jsonl"

	if monthClosed(month, cutoff) {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: archive marshal %s: %w", month, err)
	}

	if mw, ok := a.writer.(multipartWriter); ok && len(buf) > largeObjectBytes {
		err = mw.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive upload %s: %w", month, err)
	}

	a.logger.Info("archived outcomes",
		slog.String("path", path),
		slog.Int("count", len(records)),
	)
	return nil
}

// logInventory reports the existing archive objects at startup.
func (a *Archiver) logInventory(ctx context.Context) {
	infos, err := a.reader.List(ctx, archivePrefix)
	if err != nil {
		a.logger.Warn("archive inventory unavailable", slog.String("error", err.Error()))
		return
	}

	var total int64
	for _, info := range infos {
		total += info.Size
	}
	a.logger.Info("archive inventory",
		slog.Int("objects", len(infos)),
		slog.Int64("total_bytes", total),
	)
}

// monthClosed reports whether the month partition can no longer gain
// rows: every instant of the month is already past the retention cutoff.
func monthClosed(month string, cutoff time.Time) bool {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return false
	}
	return start.AddDate(0, 1, 0).Before(cutoff)
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL(records []domain.Outcome) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
