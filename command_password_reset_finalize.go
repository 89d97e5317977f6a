package gabriel

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const TextCodeTokenAlreadyUsed = "TOKEN_ALREADY_USED"

type FinalizePasswordResetMessage struct {
	Session  string `json:"session"`
	Password string `json:"password"`
}

func (p FinalizePasswordResetMessage) Type() string { return "user.password_reset.finalize" }

type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

func NewFinalizePasswordResetHandler(repo RepositoryManager) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	h.logger = ensureLogger(logger)
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func errInvalidResetToken() *goerrors.Error {
	return goerrors.New("invalid or expired password reset token", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithTextCode(TextCodeNotFound)
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	var reset *PasswordReset

	if !isUUID(event.Session) {
		return errInvalidResetToken()
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		reset, err = h.repo.PasswordResets().FindTx(ctx, tx, event.Session)
		if err != nil {
			if isRecordNotFound(err) {
				return errInvalidResetToken()
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve password reset request")
		}

		if reset.Status != ResetRequestedStatus {
			return goerrors.New("password reset token has already been used", goerrors.CategoryConflict).
				WithCode(goerrors.CodeConflict).
				WithTextCode(TextCodeTokenAlreadyUsed)
		}

		if reset.CreatedAt == nil {
			return goerrors.New("password reset record is missing creation date", goerrors.CategoryInternal)
		}

		if ResetExpired(reset.CreatedAt, time.Now()) {
			return goerrors.New("password reset token has expired", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithTextCode(TextCodeTokenExpired)
		}

		passwordHash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		if reset.UserID == nil {
			return goerrors.New("password reset record is not associated with a user", goerrors.CategoryInternal)
		}

		if err := h.repo.Users().ResetPasswordTx(ctx, tx, *reset.UserID, passwordHash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password in database")
		}

		if err := h.repo.PasswordResets().MarkUsedTx(ctx, tx, reset.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password reset status")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor: ActorRef{
			ID:   reset.UserID.String(),
			Type: "user",
		},
		UserID: reset.UserID.String(),
		Metadata: map[string]any{
			"password_reset_id": reset.ID.String(),
		},
	})

	return nil
}

// PasswordResetStatus reports whether a reset link can still be redeemed
type PasswordResetStatus struct {
	Found   bool `json:"found"`
	Expired bool `json:"expired"`
}

// CheckPasswordReset looks a reset request up without consuming it
func CheckPasswordReset(ctx context.Context, repo RepositoryManager, session string) (PasswordResetStatus, error) {
	status := PasswordResetStatus{}
	if !isUUID(session) {
		return status, nil
	}

	reset, err := repo.PasswordResets().GetByID(ctx, session)
	if err != nil {
		if isRecordNotFound(err) {
			return status, nil
		}
		return status, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve password reset request")
	}

	status.Found = true
	if reset.Status != ResetRequestedStatus || reset.CreatedAt == nil {
		status.Expired = true
		return status, nil
	}

	status.Expired = ResetExpired(reset.CreatedAt, time.Now())
	return status, nil
}
