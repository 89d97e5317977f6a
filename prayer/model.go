// Package prayer holds the community prayer request board: storage,
// moderation and the read-time visibility rules.
package prayer

import (
	"time"

	"github.com/google/uuid"
	"github.com/littlegabriel/gabriel"
	"github.com/uptrace/bun"
)

// Status of a request in the moderation queue
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// AnonymousName replaces the author name on anonymous requests
const AnonymousName = "Anonymous"

// Request is a prayer request row
type Request struct {
	bun.BaseModel `bun:"table:prayer_requests,alias:pr"`

	ID          uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Title       string        `bun:"title,notnull" json:"title"`
	Content     string        `bun:"content,notnull" json:"content"`
	IsAnonymous bool          `bun:"is_anonymous,notnull" json:"isAnonymous"`
	Status      Status        `bun:"status,notnull" json:"status"`
	UserID      uuid.UUID     `bun:"user_id,notnull,type:uuid" json:"userId"`
	ModeratedBy *uuid.UUID    `bun:"moderated_by,type:uuid" json:"-"`
	ModeratedAt *time.Time    `bun:"moderated_at,nullzero" json:"moderatedAt,omitempty"`
	CreatedAt   *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"createdAt,omitempty"`
	UpdatedAt   *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updatedAt,omitempty"`
	DeletedAt   *time.Time    `bun:"deleted_at,soft_delete,nullzero" json:"-"`
	User        *gabriel.User `bun:"rel:belongs-to,join:user_id=id" json:"-"`
}

// EnsureStatus defaults empty rows to pending
func (r *Request) EnsureStatus() {
	if r != nil && r.Status == "" {
		r.Status = StatusPending
	}
}

// OwnedBy reports whether userID authored the request
func (r *Request) OwnedBy(userID uuid.UUID) bool {
	return r != nil && userID != uuid.Nil && r.UserID == userID
}
