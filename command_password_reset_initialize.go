package gabriel

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PasswordResetWindow is how long a reset request can be redeemed
const PasswordResetWindow = 24 * time.Hour

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

// InitializePasswordResetResponse never tells the caller whether the
// email exists, Reset is nil for unknown accounts
type InitializePasswordResetResponse struct {
	Reset   *PasswordReset
	Success bool
}

// ResetNotifier delivers the reset link to the account owner
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, email, resetID string) error
}

// LoggingResetNotifier writes the reset link to the logger, used when no
// mail transport is configured
type LoggingResetNotifier struct {
	Logger Logger
}

func (n LoggingResetNotifier) NotifyPasswordReset(_ context.Context, email, resetID string) error {
	ensureLogger(n.Logger).Info("password reset requested",
		"to", email,
		"link", "/password-reset/"+resetID,
	)
	return nil
}

type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	notifier ResetNotifier
	activity ActivitySink
	logger   Logger
}

func NewInitializePasswordResetHandler(repo RepositoryManager) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		notifier: LoggingResetNotifier{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *InitializePasswordResetHandler) WithNotifier(n ResetNotifier) *InitializePasswordResetHandler {
	if n != nil {
		h.notifier = n
	}
	return h
}

func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	h.logger = ensureLogger(logger)
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{}
	email := NormalizeEmail(event.Email)

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if n, err := h.repo.PasswordResets().ExpireStaleTx(ctx, tx, PasswordResetWindow); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to expire stale password resets")
		} else if n > 0 {
			h.logger.Debug("expired stale password resets", "count", n)
		}

		user, err := h.repo.Users().GetByEmailTx(ctx, tx, email)
		if err != nil {
			if isRecordNotFound(err) {
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
		}

		now := time.Now()
		reset := &PasswordReset{
			ID:        uuid.New(),
			CreatedAt: &now,
			UpdatedAt: &now,
			UserID:    &user.ID,
			Email:     user.Email,
			Status:    ResetRequestedStatus,
		}

		created, err := h.repo.PasswordResets().CreateTx(ctx, tx, reset)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create password reset record")
		}
		resp.Reset = created
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	if resp.Reset != nil {
		if err := h.notifier.NotifyPasswordReset(ctx, resp.Reset.Email, resp.Reset.ID.String()); err != nil {
			h.logger.Error("password reset notification failed", "error", err)
		}

		recordActivity(ctx, h.activity, h.logger, ActivityEvent{
			EventType: ActivityEventPasswordResetRequest,
			UserID:    resp.Reset.UserID.String(),
			Metadata: map[string]any{
				"password_reset_id": resp.Reset.ID.String(),
			},
		})
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
