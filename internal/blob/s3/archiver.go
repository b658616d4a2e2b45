package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

const (
	archiveContentType = "application/x-ndjson"
	defaultPageSize    = 500
)

// ArchiveImpl implements domain.Archiver by paging journal entries for a
// time window, serializing them to JSONL, and uploading the result to S3.
//
// Archived rows are not deleted from the journal.
type ArchiveImpl struct {
	writer   domain.BlobWriter
	checker  domain.BlobChecker // optional
	journal  domain.ActionJournal
	pageSize int
	logger   *slog.Logger
}

// NewArchiver creates a new ArchiveImpl. checker may be nil, in which case
// an existing archive object for the same window is overwritten.
func NewArchiver(writer domain.BlobWriter, checker domain.BlobChecker, journal domain.ActionJournal, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer:   writer,
		checker:  checker,
		journal:  journal,
		pageSize: defaultPageSize,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveActions uploads every action recorded in [since, until) to
// archive/actions/YYYY/MM/DD/HHMMSS_HHMMSS.jsonl and returns how many were
// written. A window that is already archived, or empty, uploads nothing.
func (a *ArchiveImpl) ArchiveActions(ctx context.Context, since, until time.Time) (int64, error) {
	path := archivePath(since, until)

	if a.checker != nil {
		exists, err := a.checker.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive actions check: %w", err)
		}
		if exists {
			return 0, nil
		}
	}

	var actions []domain.Action
	for offset := 0; ; offset += a.pageSize {
		page, err := a.journal.List(ctx, domain.ListOpts{
			Since:     &since,
			Until:     &until,
			Ascending: true,
			Limit:     a.pageSize,
			Offset:    offset,
		})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive actions query: %w", err)
		}
		actions = append(actions, page...)
		if len(page) < a.pageSize {
			break
		}
	}
	if len(actions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(actions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive actions marshal: %w", err)
	}

	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), archiveContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive actions upload: %w", err)
	}
	return int64(len(actions)), nil
}

// Run archives the previous full interval on every tick until ctx is
// cancelled. A failed window is logged and not retried.
func (a *ArchiveImpl) Run(ctx context.Context, interval time.Duration) error {
	a.logger.Info("archiver started", slog.Duration("interval", interval))
	defer a.logger.Info("archiver stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			until := now.UTC().Truncate(interval)
			since := until.Add(-interval)
			n, err := a.ArchiveActions(ctx, since, until)
			if err != nil {
				a.logger.Warn("archive failed",
					slog.Time("since", since),
					slog.Time("until", until),
					slog.String("error", err.Error()),
				)
				continue
			}
			if n > 0 {
				a.logger.Info("actions archived",
					slog.Int64("count", n),
					slog.String("path", archivePath(since, until)),
				)
			}
		}
	}
}

// archivePath names the object for one archive window.
func archivePath(since, until time.Time) string {
	since, until = since.UTC(), until.UTC()
	return fmt.Sprintf("archive/actions/%s/%s_%s.jsonl",
		since.Format("2006/01/02"), since.Format("150405"), until.Format("150405"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
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

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
