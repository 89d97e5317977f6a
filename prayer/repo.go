package prayer

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Viewer is who is reading. A zero ID is an anonymous visitor.
type Viewer struct {
	ID    uuid.UUID
	Admin bool
}

// ListFilter narrows a listing. Visibility is always applied on top.
type ListFilter struct {
	Status Status
	Mine   bool
	Limit  int
	Offset int
}

// Store persists prayer requests
type Store interface {
	repository.Repository[*Request]

	Submit(ctx context.Context, req *Request) (*Request, error)
	SubmitTx(ctx context.Context, tx bun.IDB, req *Request) (*Request, error)
	Find(ctx context.Context, id uuid.UUID) (*Request, error)
	FindTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Request, error)
	ListVisible(ctx context.Context, viewer Viewer, filter ListFilter) ([]*Request, int, error)
	UpdateContentTx(ctx context.Context, tx bun.IDB, req *Request) (*Request, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status Status, moderator uuid.UUID, at time.Time) (*Request, error)
	SoftDeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type store struct {
	repository.Repository[*Request]
	db *bun.DB
}

var _ Store = (*store)(nil)

func NewStore(db *bun.DB) Store {
	handlers := repository.ModelHandlers[*Request]{
		NewRecord: func() *Request {
			return &Request{}
		},
		GetID: func(record *Request) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Request, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "id"
		},
	}
	return &store{
		Repository: repository.NewRepository(db, handlers),
		db:         db,
	}
}

func (s *store) Submit(ctx context.Context, req *Request) (*Request, error) {
	return s.SubmitTx(ctx, s.db, req)
}

// SubmitTx stores a new request, always in the pending state
func (s *store) SubmitTx(ctx context.Context, tx bun.IDB, req *Request) (*Request, error) {
	now := time.Now()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Content = strings.TrimSpace(req.Content)
	req.Status = StatusPending
	req.ModeratedAt = nil
	req.ModeratedBy = nil
	req.CreatedAt = &now
	req.UpdatedAt = &now

	return s.CreateTx(ctx, tx, req)
}

func (s *store) Find(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.FindTx(ctx, s.db, id)
}

// FindTx loads a request with its author
func (s *store) FindTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Request, error) {
	record := &Request{}
	err := tx.NewSelect().
		Model(record).
		Relation("User").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}
	return record, nil
}

// ListVisible returns the requests the viewer may see, newest first, with
// the total before pagination
func (s *store) ListVisible(ctx context.Context, viewer Viewer, filter ListFilter) ([]*Request, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	records := []*Request{}
	q := s.db.NewSelect().
		Model(&records).
		Relation("User")

	if filter.Status != "" {
		q = q.Where("?TableAlias.status = ?", filter.Status)
	}

	if filter.Mine {
		q = q.Where("?TableAlias.user_id = ?", viewer.ID)
	}

	switch {
	case viewer.Admin:
	case viewer.ID != uuid.Nil:
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.status = ?", StatusApproved).
				WhereOr("?TableAlias.user_id = ?", viewer.ID)
		})
	default:
		q = q.Where("?TableAlias.status = ?", StatusApproved)
	}

	total, err := q.
		OrderExpr("?TableAlias.created_at DESC").
		Limit(limit).
		Offset(offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// UpdateContentTx writes the owner editable columns
func (s *store) UpdateContentTx(ctx context.Context, tx bun.IDB, req *Request) (*Request, error) {
	now := time.Now()
	req.Title = strings.TrimSpace(req.Title)
	req.Content = strings.TrimSpace(req.Content)
	req.UpdatedAt = &now
	return s.updateColumnsTx(ctx, tx, req, "title", "content", "is_anonymous", "updated_at")
}

func (s *store) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status Status, moderator uuid.UUID, at time.Time) (*Request, error) {
	record := &Request{
		ID:          id,
		Status:      status,
		ModeratedBy: &moderator,
		ModeratedAt: &at,
		UpdatedAt:   &at,
	}
	return s.updateColumnsTx(ctx, tx, record, "status", "moderated_by", "moderated_at", "updated_at")
}

func (s *store) SoftDeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewDelete().
		Model(&Request{ID: id}).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}
	return nil
}

func (s *store) updateColumnsTx(ctx context.Context, tx bun.IDB, record *Request, columns ...string) (*Request, error) {
	res, err := tx.NewUpdate().
		Model(record).
		Column(columns...).
		WherePK().
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": record.ID.String()})
	}
	return record, nil
}
