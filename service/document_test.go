package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docvault/audit"
	"docvault/encryption"
	"docvault/model"
	"docvault/ocr"
	ocrMocks "docvault/ocr/mocks"
	"docvault/ratelimit"
	"docvault/repository"
	repoMocks "docvault/repository/mocks"
	"docvault/retention"
	"docvault/storage"
	storageMocks "docvault/storage/mocks"
)

type fixture struct {
	svc     DocumentService
	repo    *repoMocks.MockDocumentRepository
	engine  *encryption.Engine
	baseDir string
}

func newFixture(t *testing.T, cfg Config, extractor ocr.Extractor) *fixture {
	t.Helper()

	key := make([]byte, encryption.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	baseDir := t.TempDir()
	engine, err := encryption.New(encryption.Config{Key: key, BaseDir: baseDir})
	require.NoError(t, err)

	if cfg.AllowedExtensions == nil {
		cfg.AllowedExtensions = []string{".pdf", ".txt"}
	}

	repo := new(repoMocks.MockDocumentRepository)
	limiter := ratelimit.New(ratelimit.Config{Window: time.Minute, MaxEvents: 100})
	recorder := audit.NewRecorder(repo, nil)

	return &fixture{
		svc:     NewDocumentService(cfg, repo, engine, limiter, recorder, extractor, nil, slog.New(slog.DiscardHandler)),
		repo:    repo,
		engine:  engine,
		baseDir: baseDir,
	}
}

func containerCount(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestDocumentService_Ingest(t *testing.T) {
	ctx := context.Background()
	actor := Actor{ID: "alice", IP: "10.0.0.9", UserAgent: "backoffice/1.0"}

	t.Run("happy path", func(t *testing.T) {
		f := newFixture(t, Config{}, nil)

		var created *model.Document
		f.repo.On("Create", mock.Anything, mock.AnythingOfType("*model.Document")).
			Run(func(args mock.Arguments) { created = args.Get(1).(*model.Document) }).
			Return(&model.Document{ID: "gen-id"}, nil)
		f.repo.On("RecordAccess", mock.Anything, mock.MatchedBy(func(e *model.AccessLogEntry) bool {
			return e.DocumentID == "gen-id" && e.Action == model.ActionEdit && e.AccessedBy == "alice"
		})).Return(nil)

		stored, extracted, err := f.svc.Ingest(ctx, IngestInput{
			Reader:      strings.NewReader("quarterly receipt"),
			FileName:    "receipt-q3.pdf",
			ContentType: "application/pdf",
			Size:        17,
			Source:      "10.0.0.9",
			Actor:       actor,
		})

		require.NoError(t, err)
		assert.Equal(t, "gen-id", stored.ID)
		assert.Nil(t, extracted)

		require.NotNil(t, created)
		assert.Equal(t, "receipt-q3.pdf", created.OriginalFileName)
		assert.True(t, created.IsEncrypted)
		assert.Equal(t, encryption.Algorithm, created.EncryptionAlgorithm)
		assert.Equal(t, "alice", created.CreatedBy)
		assert.NotContains(t, created.EncryptedPath, "receipt", "storage name must not derive from the upload name")

		plaintext, err := f.engine.Decrypt(created.EncryptedPath)
		require.NoError(t, err)
		assert.Equal(t, []byte("quarterly receipt"), plaintext)

		f.repo.AssertExpectations(t)
	})

	t.Run("path components are stripped from the name", func(t *testing.T) {
		f := newFixture(t, Config{}, nil)

		var created *model.Document
		f.repo.On("Create", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { created = args.Get(1).(*model.Document) }).
			Return(&model.Document{ID: "gen-id"}, nil)
		f.repo.On("RecordAccess", mock.Anything, mock.Anything).Return(nil)

		_, _, err := f.svc.Ingest(ctx, IngestInput{
			Reader:      strings.NewReader("x"),
			FileName:    "../../etc/receipt.pdf",
			ContentType: "application/pdf",
			Source:      "src",
			Actor:       actor,
		})

		require.NoError(t, err)
		assert.Equal(t, "receipt.pdf", created.OriginalFileName)
	})

	t.Run("validation failures reject before any work", func(t *testing.T) {
		f := newFixture(t, Config{MaxUploadBytes: 100}, nil)

		tests := []struct {
			name  string
			in    IngestInput
			field string
		}{
			{
				name:  "extension not in allow-list",
				in:    IngestInput{Reader: strings.NewReader("x"), FileName: "malware.exe", ContentType: "application/octet-stream"},
				field: "extension",
			},
			{
				name:  "declared size over ceiling",
				in:    IngestInput{Reader: strings.NewReader("x"), FileName: "big.pdf", ContentType: "application/pdf", Size: 101},
				field: "size",
			},
			{
				name:  "content type mismatch",
				in:    IngestInput{Reader: strings.NewReader("x"), FileName: "doc.pdf", ContentType: "image/png"},
				field: "content_type",
			},
			{
				name:  "empty file name",
				in:    IngestInput{Reader: strings.NewReader("x"), FileName: "  "},
				field: "file_name",
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, _, err := f.svc.Ingest(ctx, tt.in)
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, tt.field, vErr.Field)
			})
		}

		assert.Zero(t, containerCount(t, f.baseDir), "rejected uploads must not touch disk")
		f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("actual stream larger than ceiling", func(t *testing.T) {
		f := newFixture(t, Config{MaxUploadBytes: 10}, nil)

		_, _, err := f.svc.Ingest(ctx, IngestInput{
			Reader:      strings.NewReader("this payload is longer than ten bytes"),
			FileName:    "doc.txt",
			ContentType: "text/plain",
			Source:      "src",
			Actor:       actor,
		})

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "size", vErr.Field)
		assert.Zero(t, containerCount(t, f.baseDir))
	})

	t.Run("nil reader", func(t *testing.T) {
		f := newFixture(t, Config{}, nil)
		_, _, err := f.svc.Ingest(ctx, IngestInput{FileName: "doc.pdf", ContentType: "application/pdf"})
		assert.ErrorIs(t, err, ErrReaderNil)
	})

	t.Run("rate limited with no side effects", func(t *testing.T) {
		f := newFixture(t, Config{}, nil)
		// Rebuild the service with a one-event window.
		limiter := ratelimit.New(ratelimit.Config{Window: time.Minute, MaxEvents: 1})
		svc := NewDocumentService(Config{AllowedExtensions: []string{".txt"}}, f.repo, f.engine, limiter, audit.NewRecorder(f.repo, nil), nil, nil, nil)

		f.repo.On("Create", mock.Anything, mock.Anything).Return(&model.Document{ID: "first"}, nil).Once()
		f.repo.On("RecordAccess", mock.Anything, mock.Anything).Return(nil).Once()

		_, _, err := svc.Ingest(ctx, IngestInput{
			Reader: strings.NewReader("a"), FileName: "a.txt", ContentType: "text/plain", Source: "1.2.3.4", Actor: actor,
		})
		require.NoError(t, err)

		_, _, err = svc.Ingest(ctx, IngestInput{
			Reader: strings.NewReader("b"), FileName: "b.txt", ContentType: "text/plain", Source: "1.2.3.4", Actor: actor,
		})
		var rlErr *RateLimitError
		require.ErrorAs(t, err, &rlErr)
		assert.Equal(t, 1, rlErr.Attempts)
		assert.False(t, rlErr.RetryAt.IsZero())

		f.repo.AssertNumberOfCalls(t, "Create", 1)
		assert.Equal(t, 1, containerCount(t, f.baseDir), "rejected request must not write a container")
	})

	t.Run("container is replicated after persist", func(t *testing.T) {
		f := newFixture(t, Config{}, nil)

		// The service replicates the container of the stored row, so point
		// the returned row at a file we control.
		containerPath := filepath.Join(f.baseDir, "deadbeef.pdf")
		require.NoError(t, os.WriteFile(containerPath, []byte("ciphertext bytes"), 0o600))

		replica := new(storageMocks.MockReplicator)
		replica.On("Put", mock.Anything, retention.ReplicaKey(containerPath), mock.Anything, int64(16)).
			Return(storage.ObjectInfo{Key: retention.ReplicaKey(containerPath)}, nil)

		svc := NewDocumentService(Config{AllowedExtensions: []string{".pdf"}}, f.repo, f.engine,
			ratelimit.New(ratelimit.Config{}), audit.NewRecorder(f.repo, nil), nil, replica, slog.New(slog.DiscardHandler))

		f.repo.On("Create", mock.Anything, mock.Anything).
			Return(&model.Document{ID: "gen-id", EncryptedPath: containerPath}, nil)
		f.repo.On("RecordAccess", mock.Anything, mock.Anything).Return(nil)

		_, _, err := svc.Ingest(ctx, IngestInput{
			Reader: strings.NewReader("plain"), FileName: "doc.pdf", ContentType: "application/pdf", Source: "src", Actor: actor,
		})
		require.NoError(t, err)
		replica.AssertExpectations(t)
	})

	t.Run("metadata failure rolls back the container", func(t *testing.T) {
		f := newFixture(t, Config{}, nil)
		f.repo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		_, _, err := f.svc.Ingest(ctx, IngestInput{
			Reader: strings.NewReader("orphan?"), FileName: "doc.pdf", ContentType: "application/pdf", Source: "src", Actor: actor,
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "persist document")
		assert.Zero(t, containerCount(t, f.baseDir), "no orphaned ciphertext after rollback")
		f.repo.AssertNotCalled(t, "RecordAccess", mock.Anything, mock.Anything)
	})

	t.Run("extraction failure never blocks ingestion", func(t *testing.T) {
		extractor := new(ocrMocks.MockExtractor)
		extractor.On("Extract", mock.Anything, mock.Anything, "application/pdf").
			Return(nil, errors.New("unreadable pdf"))

		f := newFixture(t, Config{}, extractor)
		f.repo.On("Create", mock.Anything, mock.Anything).Return(&model.Document{ID: "gen-id"}, nil)
		f.repo.On("RecordAccess", mock.Anything, mock.Anything).Return(nil)

		stored, extracted, err := f.svc.Ingest(ctx, IngestInput{
			Reader: strings.NewReader("pdf bytes"), FileName: "doc.pdf", ContentType: "application/pdf", Source: "src", Actor: actor,
		})

		require.NoError(t, err)
		assert.Equal(t, "gen-id", stored.ID)
		assert.Nil(t, extracted)
		extractor.AssertExpectations(t)
	})

	t.Run("extraction result is passed through", func(t *testing.T) {
		extractor := new(ocrMocks.MockExtractor)
		extractor.On("Extract", mock.Anything, mock.Anything, "application/pdf").
			Return(&ocr.Result{Fields: map[string]string{"amount": "42.00"}, Confidence: 0.9}, nil)

		f := newFixture(t, Config{}, extractor)
		f.repo.On("Create", mock.Anything, mock.Anything).Return(&model.Document{ID: "gen-id"}, nil)
		f.repo.On("RecordAccess", mock.Anything, mock.Anything).Return(nil)

		_, extracted, err := f.svc.Ingest(ctx, IngestInput{
			Reader: strings.NewReader("pdf bytes"), FileName: "doc.pdf", ContentType: "application/pdf", Source: "src", Actor: actor,
		})

		require.NoError(t, err)
		require.NotNil(t, extracted)
		assert.Equal(t, "42.00", extracted.Fields["amount"])
		assert.InDelta(t, 0.9, extracted.Confidence, 0.001)
	})
}

func TestDocumentService_Download(t *testing.T) {
	ctx := context.Background()
	actor := Actor{ID: "bob", IP: "10.0.0.7"}

	t.Run("round trip", func(t *testing.T) {
		f := newFixture(t, Config{}, nil)

		path, alg, err := f.engine.Encrypt(strings.NewReader("the contract"), ".pdf")
		require.NoError(t, err)
		doc := &model.Document{ID: "doc-1", EncryptedPath: path, IsEncrypted: true, EncryptionAlgorithm: alg}

		f.repo.On("FindByID", mock.Anything, "doc-1").Return(doc, nil)
		f.repo.On("RecordAccess", mock.Anything, mock.MatchedBy(func(e *model.AccessLogEntry) bool {
			return e.Action == model.ActionDownload && e.AccessedBy == "bob" && e.IPAddress == "10.0.0.7"
		})).Return(nil)

		got, plaintext, err := f.svc.Download(ctx, "doc-1", actor)
		require.NoError(t, err)
		assert.Equal(t, "doc-1", got.ID)
		assert.Equal(t, []byte("the contract"), plaintext)
		f.repo.AssertExpectations(t)
	})

	t.Run("tampered container yields a generic error", func(t *testing.T) {
		f := newFixture(t, Config{}, nil)

		path, _, err := f.engine.Encrypt(strings.NewReader("secret"), ".pdf")
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		data[len(data)-1] ^= 0x01
		require.NoError(t, os.WriteFile(path, data, 0o600))

		f.repo.On("FindByID", mock.Anything, "doc-1").Return(&model.Document{ID: "doc-1", EncryptedPath: path}, nil)

		_, _, err = f.svc.Download(ctx, "doc-1", actor)
		assert.ErrorIs(t, err, ErrCouldNotRetrieve)
		assert.NotContains(t, err.Error(), path, "internal paths must not leak")
		f.repo.AssertNotCalled(t, "RecordAccess", mock.Anything, mock.Anything)
	})

	t.Run("unknown id", func(t *testing.T) {
		f := newFixture(t, Config{}, nil)
		f.repo.On("FindByID", mock.Anything, "missing").Return(nil, sql.ErrNoRows)

		_, _, err := f.svc.Download(ctx, "missing", actor)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("soft-deleted document is not served", func(t *testing.T) {
		f := newFixture(t, Config{}, nil)
		f.repo.On("FindByID", mock.Anything, "gone").Return(&model.Document{ID: "gone", IsDeleted: true}, nil)

		_, _, err := f.svc.Download(ctx, "gone", actor)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty id", func(t *testing.T) {
		f := newFixture(t, Config{}, nil)
		_, _, err := f.svc.Download(ctx, "", actor)
		assert.ErrorIs(t, err, ErrIDRequired)
	})
}

func TestDocumentService_SoftDelete(t *testing.T) {
	ctx := context.Background()
	actor := Actor{ID: "carol"}

	t.Run("fixes the purge date at now plus grace", func(t *testing.T) {
		f := newFixture(t, Config{GraceDays: 30}, nil)
		svc := f.svc.(*documentService)
		now := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
		svc.now = func() time.Time { return now }

		f.repo.On("FindByID", ctx, "doc-1").Return(&model.Document{ID: "doc-1"}, nil)
		f.repo.On("MarkDeleted", ctx, "doc-1", "carol", now, now.Add(30*24*time.Hour)).Return(nil)
		f.repo.On("RecordAccess", mock.Anything, mock.MatchedBy(func(e *model.AccessLogEntry) bool {
			return e.Action == model.ActionDelete
		})).Return(nil)

		require.NoError(t, f.svc.SoftDelete(ctx, "doc-1", actor))
		f.repo.AssertExpectations(t)
	})

	t.Run("already deleted", func(t *testing.T) {
		f := newFixture(t, Config{}, nil)
		f.repo.On("FindByID", ctx, "doc-1").Return(&model.Document{ID: "doc-1", IsDeleted: true}, nil)

		err := f.svc.SoftDelete(ctx, "doc-1", actor)
		assert.ErrorIs(t, err, ErrNotFound)
		f.repo.AssertNotCalled(t, "MarkDeleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestDocumentService_List(t *testing.T) {
	ctx := context.Background()

	t.Run("applies pagination defaults", func(t *testing.T) {
		f := newFixture(t, Config{}, nil)
		f.repo.On("List", ctx, repository.PageQuery{Limit: 10, Offset: 0}).
			Return(&repository.PageResult[model.Document]{Items: []model.Document{{ID: "a"}}, Total: 1}, nil)

		res, err := f.svc.List(ctx, 0, -5)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Total)
		require.Len(t, res.Items, 1)
		assert.Equal(t, "a", res.Items[0].ID)
		f.repo.AssertExpectations(t)
	})

	t.Run("propagates repository errors", func(t *testing.T) {
		f := newFixture(t, Config{}, nil)
		f.repo.On("List", ctx, mock.Anything).Return(nil, errors.New("boom"))

		_, err := f.svc.List(ctx, 25, 0)
		assert.Error(t, err)
	})
}
