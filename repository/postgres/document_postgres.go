package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"docvault/model"
	"docvault/repository"
)

// DocumentPostgres is a PostgreSQL implementation of
// repository.DocumentRepository. It uses database/sql with parameterized
// queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

// IsNoRowsError reports whether err stems from an empty result set.
func IsNoRowsError(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

const documentColumns = `
	id, original_file_name, content_type, file_size_bytes,
	encrypted_path, is_encrypted, encryption_algorithm,
	is_deleted, deleted_at, deleted_by, scheduled_purge_date,
	access_count, last_accessed_at, last_accessed_by,
	created_at, created_by, modified_at, modified_by
`

func scanDocument(row interface{ Scan(...any) error }) (*model.Document, error) {
	var d model.Document
	var deletedBy, lastAccessedBy, modifiedBy, algorithm sql.NullString
	var deletedAt, purgeAt, lastAccessedAt, modifiedAt sql.NullTime
	if err := row.Scan(
		&d.ID,
		&d.OriginalFileName,
		&d.ContentType,
		&d.FileSizeBytes,
		&d.EncryptedPath,
		&d.IsEncrypted,
		&algorithm,
		&d.IsDeleted,
		&deletedAt,
		&deletedBy,
		&purgeAt,
		&d.AccessCount,
		&lastAccessedAt,
		&lastAccessedBy,
		&d.CreatedAt,
		&d.CreatedBy,
		&modifiedAt,
		&modifiedBy,
	); err != nil {
		return nil, err
	}
	d.EncryptionAlgorithm = algorithm.String
	d.DeletedBy = deletedBy.String
	d.LastAccessedBy = lastAccessedBy.String
	d.ModifiedBy = modifiedBy.String
	if deletedAt.Valid {
		d.DeletedAt = &deletedAt.Time
	}
	if purgeAt.Valid {
		d.ScheduledPurgeDate = &purgeAt.Time
	}
	if lastAccessedAt.Valid {
		d.LastAccessedAt = &lastAccessedAt.Time
	}
	if modifiedAt.Valid {
		d.ModifiedAt = &modifiedAt.Time
	}
	return &d, nil
}

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (
			id, original_file_name, content_type, file_size_bytes,
			encrypted_path, is_encrypted, encryption_algorithm,
			created_at, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + documentColumns
	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.OriginalFileName,
		doc.ContentType,
		doc.FileSizeBytes,
		doc.EncryptedPath,
		doc.IsEncrypted,
		doc.EncryptionAlgorithm,
		doc.CreatedAt,
		doc.CreatedBy,
	)
	return scanDocument(row)
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(r.db.QueryRowContext(ctx, q, id))
}

// List returns documents using LIMIT/OFFSET pagination and a total count.
func (r *DocumentPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	filter := `WHERE is_deleted = FALSE`
	if pq.IncludeDeleted {
		filter = ``
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents `+filter).Scan(&total); err != nil {
		return nil, err
	}

	q := `SELECT ` + documentColumns + ` FROM documents ` + filter + `
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, q, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

// MarkDeleted flips the soft-delete flags. The purge date is always written
// together with the flag so a deleted row can never lack one.
func (r *DocumentPostgres) MarkDeleted(ctx context.Context, id, deletedBy string, deletedAt, purgeAt time.Time) error {
	const q = `
		UPDATE documents
		SET is_deleted = TRUE,
		    deleted_at = $2,
		    deleted_by = $3,
		    scheduled_purge_date = $4,
		    modified_at = $2,
		    modified_by = $3
		WHERE id = $1 AND is_deleted = FALSE
	`
	res, err := r.db.ExecContext(ctx, q, id, deletedAt, deletedBy, purgeAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindExpired returns soft-deleted documents whose purge date has passed.
func (r *DocumentPostgres) FindExpired(ctx context.Context, now time.Time) ([]model.Document, error) {
	const q = `SELECT ` + documentColumns + `
		FROM documents
		WHERE is_deleted = TRUE AND scheduled_purge_date <= $1
		ORDER BY scheduled_purge_date ASC`
	return r.queryDocuments(ctx, q, now)
}

// FindRetentionExpired returns active documents created at or before cutoff.
func (r *DocumentPostgres) FindRetentionExpired(ctx context.Context, cutoff time.Time) ([]model.Document, error) {
	const q = `SELECT ` + documentColumns + `
		FROM documents
		WHERE is_deleted = FALSE AND created_at <= $1
		ORDER BY created_at ASC`
	return r.queryDocuments(ctx, q, cutoff)
}

func (r *DocumentPostgres) queryDocuments(ctx context.Context, q string, args ...any) ([]model.Document, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// Purge removes the document's access-log rows and the document row in one
// transaction, so a crash cannot leave orphaned audit rows.
func (r *DocumentPostgres) Purge(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin purge tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_access_logs WHERE document_id = $1`, id); err != nil {
		return fmt.Errorf("delete access logs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return tx.Commit()
}

// RecordAccess appends the audit row and bumps the document counters in one
// transaction. Either both writes land or neither does.
func (r *DocumentPostgres) RecordAccess(ctx context.Context, entry *model.AccessLogEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin access tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	const insertQ = `
		INSERT INTO document_access_logs (id, document_id, accessed_by, accessed_at, action, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.ExecContext(ctx, insertQ,
		entry.ID,
		entry.DocumentID,
		entry.AccessedBy,
		entry.AccessedAt,
		string(entry.Action),
		nullable(entry.IPAddress),
		nullable(entry.UserAgent),
	); err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}

	const updateQ = `
		UPDATE documents
		SET access_count = access_count + 1,
		    last_accessed_at = $2,
		    last_accessed_by = $3
		WHERE id = $1
	`
	res, err := tx.ExecContext(ctx, updateQ, entry.DocumentID, entry.AccessedAt, entry.AccessedBy)
	if err != nil {
		return fmt.Errorf("update access counters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// ListAccessLog returns the document's audit trail in append order.
func (r *DocumentPostgres) ListAccessLog(ctx context.Context, documentID string, pq repository.PageQuery) (*repository.PageResult[model.AccessLogEntry], error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_access_logs WHERE document_id = $1`, documentID,
	).Scan(&total); err != nil {
		return nil, err
	}

	const q = `
		SELECT id, document_id, accessed_by, accessed_at, action, ip_address, user_agent
		FROM document_access_logs
		WHERE document_id = $1
		ORDER BY accessed_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, q, documentID, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.AccessLogEntry, 0)
	for rows.Next() {
		var e model.AccessLogEntry
		var action string
		var ip, ua sql.NullString
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.AccessedBy, &e.AccessedAt, &action, &ip, &ua); err != nil {
			return nil, err
		}
		e.Action = model.AccessAction(action)
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.AccessLogEntry]{Items: items, Total: total}, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
