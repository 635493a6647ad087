package s3blob

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"
	jsonContentType  = "application/json"
	// multipartThreshold is the JSONL size above which trades are uploaded
	// in parts.
	multipartThreshold = 16 * 1024 * 1024
	multipartPartSize  = 8 * 1024 * 1024
)

// TradeSource lists the trades due for archiving.
type TradeSource interface {
	ListCollectedBefore(ctx context.Context, cutoffMs int64) ([]domain.StoredTrade, error)
}

var (
	_ domain.TradeArchiver  = (*Archiver)(nil)
	_ domain.ReportArchiver = (*Archiver)(nil)
)

// Archiver writes expiring trades as JSONL and finished reports as JSON.
// Deleting the archived rows is the caller's job.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	trades TradeSource
	logger *slog.Logger
}

// NewArchiver creates an Archiver. trades may be nil when only reports are
// archived.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, trades TradeSource, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		trades: trades,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTrades uploads every trade collected before cutoffMs to
// archive/trades/{YYYY-MM-DD}/{cutoffMs}.jsonl and returns the count.
func (a *Archiver) ArchiveTrades(ctx context.Context, cutoffMs int64) (int64, error) {
	if a.trades == nil {
		return 0, fmt.Errorf("s3blob: archive trades: no trade source")
	}
	trades, err := a.trades.ListCollectedBefore(ctx, cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := TradeArchivePath(cutoffMs)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	a.logger.InfoContext(ctx, "trades archived",
		slog.String("path", path),
		slog.Int("count", len(trades)),
		slog.Int("bytes", len(buf)),
	)
	return int64(len(trades)), nil
}

// ArchiveReport uploads report to
// archive/reports/{symbol}/{YYYY-MM-DD}/{unix}.json. A report already stored
// under the same second is left alone.
func (a *Archiver) ArchiveReport(ctx context.Context, report domain.TWAPReport) error {
	path := ReportArchivePath(report.Symbol, report.Timestamp)
	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return fmt.Errorf("s3blob: archive report exists: %w", err)
		}
		if exists {
			return nil
		}
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("s3blob: archive report marshal: %w", err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), jsonContentType); err != nil {
		return fmt.Errorf("s3blob: archive report upload: %w", err)
	}
	return nil
}

// History returns the archived reports for symbol on day (UTC), oldest
// first.
func (a *Archiver) History(ctx context.Context, symbol string, day time.Time) ([]domain.TWAPReport, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: history: no reader")
	}
	prefix := fmt.Sprintf("archive/reports/%s/%s/", symbol, day.UTC().Format(time.DateOnly))
	infos, err := a.reader.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("s3blob: history list: %w", err)
	}
	slices.SortFunc(infos, func(x, y domain.BlobInfo) int {
		return compareUnixNames(x.Path, y.Path)
	})

	reports := make([]domain.TWAPReport, 0, len(infos))
	for _, info := range infos {
		r, err := a.loadReport(ctx, info.Path)
		if err != nil {
			a.logger.WarnContext(ctx, "skipping unreadable archived report",
				slog.String("path", info.Path),
				slog.String("error", err.Error()),
			)
			continue
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// TradeArchivePath returns the object key for a trade archive cut at
// cutoffMs.
func TradeArchivePath(cutoffMs int64) string {
	day := time.UnixMilli(cutoffMs).UTC().Format(time.DateOnly)
	return fmt.Sprintf("archive/trades/%s/%d.jsonl", day, cutoffMs)
}

// ReportArchivePath returns the object key for a report taken at ts.
func ReportArchivePath(symbol string, ts time.Time) string {
	ts = ts.UTC()
	return fmt.Sprintf("archive/reports/%s/%s/%d.json", symbol, ts.Format(time.DateOnly), ts.Unix())
}

// ----- Internal helpers -----

func (a *Archiver) loadReport(ctx context.Context, path string) (domain.TWAPReport, error) {
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		return domain.TWAPReport{}, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return domain.TWAPReport{}, fmt.Errorf("s3blob: read %s: %w", path, err)
	}
	var r domain.TWAPReport
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.TWAPReport{}, fmt.Errorf("s3blob: decode %s: %w", path, err)
	}
	return r, nil
}

// compareUnixNames orders keys ending in {unix}.json numerically.
func compareUnixNames(x, y string) int {
	return cmp.Compare(unixFromPath(x), unixFromPath(y))
}

func unixFromPath(p string) int64 {
	base := p[strings.LastIndex(p, "/")+1:]
	n, _ := strconv.ParseInt(strings.TrimSuffix(base, ".json"), 10, 64)
	return n
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
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
