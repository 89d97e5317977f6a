package gabriel

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager hands out the identity repositories and owns the
// transaction boundary
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	PasswordResets() PasswordResets
}

// PasswordResets stores single use reset requests
type PasswordResets interface {
	repository.Repository[*PasswordReset]
	ExpireStaleTx(ctx context.Context, tx bun.IDB, olderThan time.Duration) (int, error)
	FindTx(ctx context.Context, tx bun.IDB, id string) (*PasswordReset, error)
	MarkUsedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type passwordResets struct {
	repository.Repository[*PasswordReset]
}

func NewPasswordResetsRepository(db *bun.DB) PasswordResets {
	handlers := repository.ModelHandlers[*PasswordReset]{
		NewRecord: func() *PasswordReset {
			return &PasswordReset{}
		},
		GetID: func(record *PasswordReset) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *PasswordReset, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
	}
	return &passwordResets{Repository: repository.NewRepository(db, handlers)}
}

// ExpireStaleTx flags requests that outlived the reset window so they
// can never be redeemed
func (p *passwordResets) ExpireStaleTx(ctx context.Context, tx bun.IDB, olderThan time.Duration) (int, error) {
	res, err := tx.NewUpdate().
		Model((*PasswordReset)(nil)).
		Set("status = ?", ResetExpiredStatus).
		Set("updated_at = ?", time.Now()).
		Where("?TableAlias.status = ?", ResetRequestedStatus).
		Where("?TableAlias.created_at < ?", time.Now().Add(-olderThan)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (p *passwordResets) FindTx(ctx context.Context, tx bun.IDB, id string) (*PasswordReset, error) {
	record := &PasswordReset{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id})
		}
		return nil, err
	}
	return record, nil
}

// MarkUsedTx consumes the request, it cannot be redeemed twice
func (p *passwordResets) MarkUsedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewUpdate().
		Model(MarkPasswordAsReseted(id)).
		Column("status", "reseted_at", "updated_at").
		WherePK().
		Exec(ctx)
	return err
}

type mngr struct {
	db             *bun.DB
	users          Users
	passwordResets PasswordResets
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:             db,
		users:          NewUsersRepository(db),
		passwordResets: NewPasswordResetsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return goerrors.New("repository manager requires a database handle", goerrors.CategoryInternal)
	}

	if m.users == nil || m.passwordResets == nil {
		return goerrors.New("identity repositories are not initialized", goerrors.CategoryInternal)
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) PasswordResets() PasswordResets {
	return m.passwordResets
}
