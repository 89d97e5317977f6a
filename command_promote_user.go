package gabriel

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// PromoteUserMessage changes the role of an account. Despite the name it
// handles demotions as well. An empty Role keeps the current one, Name
// renames the account in the same transaction.
type PromoteUserMessage struct {
	Identifier string
	Role       string
	Name       *string
	Actor      ActorRef
	OnResponse func(user *User)
}

func (e PromoteUserMessage) Type() string { return "user.promote" }

type PromoteUserHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

func NewPromoteUserHandler(repo RepositoryManager) *PromoteUserHandler {
	return &PromoteUserHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *PromoteUserHandler) WithActivitySink(sink ActivitySink) *PromoteUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *PromoteUserHandler) WithLogger(logger Logger) *PromoteUserHandler {
	h.logger = ensureLogger(logger)
	return h
}

func (h *PromoteUserHandler) Execute(ctx context.Context, event PromoteUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during role change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PromoteUserHandler) execute(ctx context.Context, event PromoteUserMessage) error {
	var role string
	if event.Role != "" || event.Name == nil {
		parsed, ok := ParseRole(event.Role)
		if !ok {
			return goerrors.New("unknown role", goerrors.CategoryBadInput).
				WithCode(goerrors.CodeBadRequest).
				WithMetadata(map[string]any{"role": event.Role})
		}
		role = parsed
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var previous string
	var user *User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := h.repo.Users().GetByIdentifierTx(ctx, tx, event.Identifier)
		if err != nil {
			if isRecordNotFound(err) {
				return goerrors.New("User not found", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound).
					WithTextCode(TextCodeNotFound).
					WithMetadata(map[string]any{"identifier": event.Identifier})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user")
		}

		if role == "" {
			role = current.Role
		}

		if event.Actor.ID != "" && event.Actor.ID == current.ID.String() && role != current.Role {
			return goerrors.New("administrators cannot change their own role", goerrors.CategoryAuthz).
				WithCode(goerrors.CodeForbidden).
				WithTextCode(TextCodeForbidden)
		}

		previous = current.Role
		user = current

		if previous != role {
			if user, err = h.repo.Users().UpdateRoleTx(ctx, tx, current.ID, role); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user role")
			}
		}

		if event.Name != nil {
			if user, err = h.repo.Users().UpdateProfileTx(ctx, tx, current.ID, *event.Name); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user")
			}
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "role change transaction failed")
	}

	if previous != role {
		recordActivity(ctx, h.activity, h.logger, ActivityEvent{
			EventType: ActivityEventUserRoleChanged,
			Actor:     event.Actor,
			UserID:    user.ID.String(),
			Metadata: map[string]any{
				"from": previous,
				"to":   role,
			},
		})
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
