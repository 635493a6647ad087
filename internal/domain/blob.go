package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// TradeArchiver copies collected trades to cold storage before they are
// removed from the primary store.
type TradeArchiver interface {
	ArchiveTrades(ctx context.Context, cutoffMs int64) (int64, error)
}

// ReportArchiver keeps a durable copy of finished reports.
type ReportArchiver interface {
	ArchiveReport(ctx context.Context, report TWAPReport) error
}
