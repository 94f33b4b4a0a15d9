// Package audit records every read/write touch of a document. Entries are
// append-only; the underlying repository writes the log row and the
// document's access counters in one transaction, so the counters can never
// drift from the trail.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docvault/model"
	"docvault/repository"
)

// Recorder is the single entry point for access recording.
type Recorder struct {
	repo   repository.DocumentRepository
	logger *slog.Logger

	now func() time.Time
}

// NewRecorder builds a Recorder. A nil logger falls back to slog.Default.
func NewRecorder(repo repository.DocumentRepository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		repo:   repo,
		logger: logger.With(slog.String("component", "audit")),
		now:    time.Now,
	}
}

// Record appends one access entry for the document.
func (r *Recorder) Record(ctx context.Context, documentID, performedBy string, action model.AccessAction, ip, userAgent string) error {
	entry := &model.AccessLogEntry{
		ID:         uuid.New().String(),
		DocumentID: documentID,
		AccessedBy: performedBy,
		AccessedAt: r.now().UTC(),
		Action:     action,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	if err := r.repo.RecordAccess(ctx, entry); err != nil {
		return fmt.Errorf("record %s access for document %s: %w", action, documentID, err)
	}
	return nil
}

// RecordBestEffort logs a failure instead of returning it, for call sites
// where the primary operation already succeeded and must not be unwound.
func (r *Recorder) RecordBestEffort(ctx context.Context, documentID, performedBy string, action model.AccessAction, ip, userAgent string) {
	if err := r.Record(ctx, documentID, performedBy, action, ip, userAgent); err != nil {
		r.logger.Error("access recording failed",
			slog.String("document_id", documentID),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
	}
}

// Trail returns the document's audit entries in append order.
func (r *Recorder) Trail(ctx context.Context, documentID string, limit, offset int) (*repository.PageResult[model.AccessLogEntry], error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return r.repo.ListAccessLog(ctx, documentID, repository.PageQuery{Limit: limit, Offset: offset})
}
