package repository

// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g. postgres) inside this directory.

import (
	"context"
	"time"

	"docvault/model"
)

// DocumentRepository defines persistence for documents and their access log
// using SQL queries only. No business logic here.
//
// RecordAccess and Purge span two tables and must execute inside a single
// transaction; the interface keeps them as one call each so callers cannot
// split the unit of work.
type DocumentRepository interface {
	// Create inserts a new document record and returns the stored row.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// List returns a paginated list of documents and the total row count.
	// Soft-deleted rows are excluded unless the query opts in.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Document], error)

	// MarkDeleted flips the soft-delete flags and fixes the purge date.
	MarkDeleted(ctx context.Context, id, deletedBy string, deletedAt, purgeAt time.Time) error

	// FindExpired returns documents with is_deleted = true and a scheduled
	// purge date at or before now, oldest purge date first.
	FindExpired(ctx context.Context, now time.Time) ([]model.Document, error)

	// FindRetentionExpired returns active documents created at or before the
	// cutoff, i.e. past the retention period.
	FindRetentionExpired(ctx context.Context, cutoff time.Time) ([]model.Document, error)

	// Purge deletes the document's access-log rows and the document row in
	// one transaction.
	Purge(ctx context.Context, id string) error

	// RecordAccess appends one access-log row and bumps the document's
	// access counters in one transaction.
	RecordAccess(ctx context.Context, entry *model.AccessLogEntry) error

	// ListAccessLog returns the audit trail of one document, oldest first.
	ListAccessLog(ctx context.Context, documentID string, pq PageQuery) (*PageResult[model.AccessLogEntry], error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int

	// IncludeDeleted also returns soft-deleted documents.
	IncludeDeleted bool
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
