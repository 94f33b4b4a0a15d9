package model

import "time"

// AccessAction classifies what an actor did with a document.
type AccessAction string

const (
	ActionView     AccessAction = "View"
	ActionDownload AccessAction = "Download"
	ActionEdit     AccessAction = "Edit"
	ActionDelete   AccessAction = "Delete"
)

// AccessLogEntry is one append-only audit record. It references its document
// by id only; entries are never mutated and are removed solely by the purge
// cascade of the owning document.
type AccessLogEntry struct {
	ID         string       `json:"id"`
	DocumentID string       `json:"document_id"`
	AccessedBy string       `json:"accessed_by"`
	AccessedAt time.Time    `json:"accessed_at"`
	Action     AccessAction `json:"action"`
	IPAddress  string       `json:"ip_address,omitempty"`
	UserAgent  string       `json:"user_agent,omitempty"`
}
