package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docvault/audit"
	"docvault/encryption"
	"docvault/model"
	"docvault/ocr"
	"docvault/ratelimit"
	"docvault/repository"
	"docvault/retention"
	"docvault/storage"
)

// Actor identifies who is performing an operation, plus the request metadata
// recorded in the audit trail.
type Actor struct {
	ID        string
	IP        string
	UserAgent string
}

// IngestInput describes one upload.
type IngestInput struct {
	Reader      io.Reader
	FileName    string
	ContentType string
	// Size is the declared size in bytes; the actual stream is still capped
	// at the configured ceiling.
	Size int64
	// Source is the rate-limit key, typically the client IP.
	Source string
	Actor  Actor
}

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
}

// Config bounds ingestion and fixes the soft-delete grace period.
type Config struct {
	MaxUploadBytes    int64
	AllowedExtensions []string
	GraceDays         int
}

// DocumentService defines the use cases for handling documents.
type DocumentService interface {
	// Ingest validates, rate-limits, extracts, encrypts and persists one
	// upload. The OCR result is best-effort and may be nil.
	Ingest(ctx context.Context, in IngestInput) (*model.Document, *ocr.Result, error)

	// Get returns document metadata and records a View access.
	Get(ctx context.Context, id string, actor Actor) (*model.Document, error)

	// Download decrypts and returns the plaintext, recording a Download
	// access. Decrypt failures surface only as ErrCouldNotRetrieve.
	Download(ctx context.Context, id string, actor Actor) (*model.Document, []byte, error)

	// List returns non-deleted documents using limit/offset and a total count.
	List(ctx context.Context, limit, offset int) (*DocumentListResult, error)

	// SoftDelete marks a document deleted and fixes its purge date at
	// now + grace period.
	SoftDelete(ctx context.Context, id string, actor Actor) error
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	cfg       Config
	repo      repository.DocumentRepository
	engine    *encryption.Engine
	limiter   *ratelimit.Limiter
	recorder  *audit.Recorder
	extractor ocr.Extractor      // optional
	replica   storage.Replicator // optional
	logger    *slog.Logger
	tracer    trace.Tracer

	now func() time.Time
}

// NewDocumentService constructs a new DocumentService. extractor and
// replica may be nil; a nil logger falls back to slog.Default.
func NewDocumentService(
	cfg Config,
	repo repository.DocumentRepository,
	engine *encryption.Engine,
	limiter *ratelimit.Limiter,
	recorder *audit.Recorder,
	extractor ocr.Extractor,
	replica storage.Replicator,
	logger *slog.Logger,
) DocumentService {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.GraceDays <= 0 {
		cfg.GraceDays = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &documentService{
		cfg:       cfg,
		repo:      repo,
		engine:    engine,
		limiter:   limiter,
		recorder:  recorder,
		extractor: extractor,
		replica:   replica,
		logger:    logger.With(slog.String("component", "service")),
		tracer:    otel.Tracer("docvault/service"),
		now:       time.Now,
	}
}

// contentTypeByExt cross-checks the declared content type against the
// extension for the types the back office accepts.
var contentTypeByExt = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".txt":  "text/plain",
}

func (s *documentService) Ingest(ctx context.Context, in IngestInput) (*model.Document, *ocr.Result, error) {
	ctx, span := s.tracer.Start(ctx, "docvault.Ingest",
		trace.WithAttributes(attribute.String("upload.content_type", in.ContentType)))
	defer span.End()

	if in.Reader == nil {
		return nil, nil, ErrReaderNil
	}

	name, ext, err := s.validate(in)
	if err != nil {
		return nil, nil, err
	}

	// Admission control before any cryptographic or I/O work.
	decision := s.limiter.Check(in.Source)
	if !decision.Allowed {
		rlErr := &RateLimitError{Attempts: decision.Attempts, MaxAllowed: decision.MaxAllowed}
		if decision.RetryAt != nil {
			rlErr.RetryAt = *decision.RetryAt
		}
		return nil, nil, rlErr
	}
	s.limiter.Record(in.Source)

	data, err := io.ReadAll(io.LimitReader(in.Reader, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, nil, &ValidationError{Field: "size", Reason: fmt.Sprintf("exceeds limit of %d bytes", s.cfg.MaxUploadBytes)}
	}

	// Extraction must see the plaintext; encryption happens after.
	var extracted *ocr.Result
	if s.extractor != nil {
		extracted, err = s.extractor.Extract(ctx, bytes.NewReader(data), in.ContentType)
		if err != nil {
			s.logger.Warn("text extraction failed, auto-fill disabled",
				slog.String("file_name", name),
				slog.String("error", err.Error()),
			)
			extracted = nil
		}
	}

	path, algorithm, err := s.engine.Encrypt(bytes.NewReader(data), ext)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt upload: %w", err)
	}

	doc := &model.Document{
		ID:                  uuid.New().String(),
		OriginalFileName:    name,
		ContentType:         in.ContentType,
		FileSizeBytes:       int64(len(data)),
		EncryptedPath:       path,
		IsEncrypted:         true,
		EncryptionAlgorithm: algorithm,
		CreatedAt:           s.now().UTC(),
		CreatedBy:           in.Actor.ID,
	}
	stored, err := s.repo.Create(ctx, doc)
	if err != nil {
		// Roll back the container so no orphaned ciphertext outlives a
		// failed metadata write.
		if _, wipeErr := s.engine.SecureDelete(path); wipeErr != nil {
			s.logger.Error("rollback wipe failed",
				slog.String("path", path),
				slog.String("error", wipeErr.Error()),
			)
		}
		return nil, nil, fmt.Errorf("persist document: %w", err)
	}

	s.replicate(ctx, stored)
	s.recorder.RecordBestEffort(ctx, stored.ID, in.Actor.ID, model.ActionEdit, in.Actor.IP, in.Actor.UserAgent)

	span.SetAttributes(attribute.String("document.id", stored.ID))
	return stored, extracted, nil
}

// validate performs the structural checks of step (a). It returns the
// sanitized file name and its extension.
func (s *documentService) validate(in IngestInput) (string, string, error) {
	name := filepath.Base(strings.TrimSpace(in.FileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", "", &ValidationError{Field: "file_name", Reason: "missing or unusable name"}
	}
	if strings.ContainsAny(name, "\x00") || strings.ContainsRune(name, '\n') {
		return "", "", &ValidationError{Field: "file_name", Reason: "contains forbidden characters"}
	}

	ext := strings.ToLower(filepath.Ext(name))
	if !s.extensionAllowed(ext) {
		return "", "", &ValidationError{Field: "extension", Reason: fmt.Sprintf("%q is not allowed", ext)}
	}

	if in.Size > s.cfg.MaxUploadBytes {
		return "", "", &ValidationError{Field: "size", Reason: fmt.Sprintf("exceeds limit of %d bytes", s.cfg.MaxUploadBytes)}
	}

	if want, ok := contentTypeByExt[ext]; ok && in.ContentType != "" && in.ContentType != want {
		return "", "", &ValidationError{Field: "content_type", Reason: fmt.Sprintf("%q does not match extension %q", in.ContentType, ext)}
	}
	return name, ext, nil
}

func (s *documentService) extensionAllowed(ext string) bool {
	if ext == "" {
		return false
	}
	for _, allowed := range s.cfg.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// replicate copies the container to the off-site replica, best-effort.
func (s *documentService) replicate(ctx context.Context, doc *model.Document) {
	if s.replica == nil {
		return
	}
	f, err := os.Open(doc.EncryptedPath)
	if err != nil {
		s.logger.Warn("replica skipped, container unreadable",
			slog.String("document_id", doc.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.logger.Warn("replica skipped, stat failed",
			slog.String("document_id", doc.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if _, err := s.replica.Put(ctx, retention.ReplicaKey(doc.EncryptedPath), f, info.Size()); err != nil {
		s.logger.Warn("replica upload failed",
			slog.String("document_id", doc.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Get returns document metadata and records the View in the audit trail.
func (s *documentService) Get(ctx context.Context, id string, actor Actor) (*model.Document, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recorder.RecordBestEffort(ctx, doc.ID, actor.ID, model.ActionView, actor.IP, actor.UserAgent)
	return doc, nil
}

func (s *documentService) Download(ctx context.Context, id string, actor Actor) (*model.Document, []byte, error) {
	ctx, span := s.tracer.Start(ctx, "docvault.Download",
		trace.WithAttributes(attribute.String("document.id", id)))
	defer span.End()

	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	plaintext, err := s.engine.Decrypt(doc.EncryptedPath)
	if err != nil {
		// The caller gets a generic failure; the trail for incident response
		// lives in the logs. Authentication failures are never retried.
		if errors.Is(err, encryption.ErrAuthenticationFailed) {
			s.logger.Error("tamper or corruption detected on decrypt",
				slog.String("document_id", doc.ID),
				slog.String("path", doc.EncryptedPath),
				slog.String("actor", actor.ID),
				slog.String("ip", actor.IP),
			)
		} else {
			s.logger.Error("decrypt failed",
				slog.String("document_id", doc.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, nil, ErrCouldNotRetrieve
	}

	s.recorder.RecordBestEffort(ctx, doc.ID, actor.ID, model.ActionDownload, actor.IP, actor.UserAgent)
	return doc, plaintext, nil
}

// List returns paginated non-deleted documents without exposing repository types.
func (s *documentService) List(ctx context.Context, limit, offset int) (*DocumentListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *documentService) SoftDelete(ctx context.Context, id string, actor Actor) error {
	doc, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	purgeAt := now.Add(time.Duration(s.cfg.GraceDays) * 24 * time.Hour)
	if err := s.repo.MarkDeleted(ctx, doc.ID, actor.ID, now, purgeAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("soft delete: %w", err)
	}

	s.recorder.RecordBestEffort(ctx, doc.ID, actor.ID, model.ActionDelete, actor.IP, actor.UserAgent)
	return nil
}

// find loads a document, mapping missing and soft-deleted rows to ErrNotFound.
func (s *documentService) find(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if doc.IsDeleted {
		return nil, ErrNotFound
	}
	return doc, nil
}
