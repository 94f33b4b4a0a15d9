package model

import "time"

// Document represents a stored, encrypted file in the system.
// This is a pure domain model with no database-specific dependencies or tags.
// It can be used across layers (service, repository, retention) without
// coupling to persistence.
type Document struct {
	ID string `json:"id"`

	// Provenance metadata. OriginalFileName is never used as the name of the
	// file on disk; the encryption engine derives an unpredictable storage
	// name instead.
	OriginalFileName string `json:"original_file_name"`
	ContentType      string `json:"content_type"`
	FileSizeBytes    int64  `json:"file_size_bytes"`

	// EncryptedPath is the location of the ciphertext container on disk.
	// It is omitted from JSON output so it never leaks to callers.
	EncryptedPath       string `json:"-"`
	IsEncrypted         bool   `json:"is_encrypted"`
	EncryptionAlgorithm string `json:"encryption_algorithm,omitempty"`

	// Soft-delete lifecycle. All three deletion fields are set together by
	// SoftDelete; a deleted document always carries a purge date.
	IsDeleted          bool       `json:"is_deleted"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
	DeletedBy          string     `json:"deleted_by,omitempty"`
	ScheduledPurgeDate *time.Time `json:"scheduled_purge_date,omitempty"`

	// Access statistics, maintained atomically with the access log.
	AccessCount    int64      `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	LastAccessedBy string     `json:"last_accessed_by,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	CreatedBy  string     `json:"created_by"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
	ModifiedBy string     `json:"modified_by,omitempty"`
}

// LifecycleState identifies where a document is in its retention lifecycle.
type LifecycleState string

const (
	LifecycleActive      LifecycleState = "active"
	LifecycleSoftDeleted LifecycleState = "soft_deleted"
)

// Lifecycle is a read-only view of the document's retention state.
// PurgeAt is only meaningful when State is LifecycleSoftDeleted.
type Lifecycle struct {
	State   LifecycleState
	PurgeAt time.Time
}

// Lifecycle derives the retention state from the persisted flags.
func (d *Document) Lifecycle() Lifecycle {
	if !d.IsDeleted {
		return Lifecycle{State: LifecycleActive}
	}
	lc := Lifecycle{State: LifecycleSoftDeleted}
	if d.ScheduledPurgeDate != nil {
		lc.PurgeAt = *d.ScheduledPurgeDate
	}
	return lc
}

// SoftDelete marks the document deleted as of now and fixes the purge date
// at now + grace. It is the only mutation path to the deleted state, so a
// deleted document without a purge date cannot be constructed through the
// model API.
func (d *Document) SoftDelete(by string, grace time.Duration, now time.Time) {
	now = now.UTC()
	purgeAt := now.Add(grace)
	d.IsDeleted = true
	d.DeletedAt = &now
	d.DeletedBy = by
	d.ScheduledPurgeDate = &purgeAt
	d.ModifiedAt = &now
	d.ModifiedBy = by
}

// PurgeDue reports whether the document is eligible for permanent erasure.
func (d *Document) PurgeDue(now time.Time) bool {
	return d.IsDeleted && d.ScheduledPurgeDate != nil && !d.ScheduledPurgeDate.After(now)
}
