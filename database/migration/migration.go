package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id                   UUID        PRIMARY KEY,
  original_file_name   TEXT        NOT NULL,
  content_type         TEXT        NOT NULL,
  file_size_bytes      BIGINT      NOT NULL CHECK (file_size_bytes >= 0),
  encrypted_path       TEXT        NOT NULL UNIQUE,
  is_encrypted         BOOLEAN     NOT NULL DEFAULT TRUE,
  encryption_algorithm TEXT,
  is_deleted           BOOLEAN     NOT NULL DEFAULT FALSE,
  deleted_at           TIMESTAMPTZ,
  deleted_by           TEXT,
  scheduled_purge_date TIMESTAMPTZ,
  access_count         BIGINT      NOT NULL DEFAULT 0 CHECK (access_count >= 0),
  last_accessed_at     TIMESTAMPTZ,
  last_accessed_by     TEXT,
  created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
  created_by           TEXT        NOT NULL,
  modified_at          TIMESTAMPTZ,
  modified_by          TEXT,
  CONSTRAINT deleted_rows_have_purge_date
    CHECK (NOT is_deleted OR scheduled_purge_date IS NOT NULL),
  CONSTRAINT encrypted_rows_have_algorithm
    CHECK (NOT is_encrypted OR encryption_algorithm IS NOT NULL)
);`,
	},
	{
		Name: "create_index_documents_purge",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_purge ON documents (scheduled_purge_date) WHERE is_deleted;`,
	},
	{
		Name: "create_index_documents_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at);`,
	},
	{
		Name: "create_table_document_access_logs",
		SQL: `CREATE TABLE IF NOT EXISTS document_access_logs (
  id          UUID        PRIMARY KEY,
  document_id UUID        NOT NULL,
  accessed_by TEXT        NOT NULL,
  accessed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  action      TEXT        NOT NULL CHECK (action IN ('View', 'Download', 'Edit', 'Delete')),
  ip_address  TEXT,
  user_agent  TEXT
);`,
	},
	{
		Name: "create_index_access_logs_document",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_access_logs_document ON document_access_logs (document_id, accessed_at);`,
	},
}

// EnsureMigrated checks if the 'documents' table exists and runs all
// migration steps if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "database"))
	start := time.Now()

	var exists bool
	if err := db.QueryRowContext(ctx, "SELECT to_regclass('public.documents') IS NOT NULL").Scan(&exists); err != nil {
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}
	if exists {
		logger.Info("schema already exists, skipping migration")
		return nil
	}

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		logger.Info("migration step applied",
			slog.String("step", step.Name),
			slog.Duration("duration", time.Since(stepStart)),
		)
	}

	logger.Info("migration complete", slog.Duration("duration", time.Since(start)))
	return nil
}
