package prayer

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/littlegabriel/gabriel"
	"github.com/uptrace/bun"
)

const (
	TextCodeInvalidTransition = "INVALID_PRAYER_STATUS_TRANSITION"
	TextCodeModeratorRequired = "MODERATOR_REQUIRED"
)

func errInvalidTransition(meta map[string]any) *goerrors.Error {
	return goerrors.New("invalid prayer request status transition", goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidTransition).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(meta)
}

func errModeratorRequired() *goerrors.Error {
	return goerrors.New("Only administrators can change the status of a prayer request", goerrors.CategoryAuthz).
		WithTextCode(TextCodeModeratorRequired).
		WithCode(goerrors.CodeForbidden)
}

// Moderator is the acting session, *gabriel.SessionClaims satisfies it
type Moderator interface {
	UserID() string
	IsAdmin() bool
}

// TransitionContext is passed into hooks
type TransitionContext struct {
	Actor   gabriel.ActorRef
	Request *Request
	From    Status
	To      Status
	Reason  string
}

// TransitionHook runs before or after the status is persisted. A before
// hook error aborts the transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// HookErrorHandler converts hook failures into the returned error
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// TransitionOption customizes a single transition
type TransitionOption func(*transitionOptions)

// MachineOption customizes the moderation machine
type MachineOption func(*Moderation)

func WithClock(clock func() time.Time) MachineOption {
	return func(m *Moderation) {
		if clock != nil {
			m.now = clock
		}
	}
}

func WithActivitySink(sink gabriel.ActivitySink) MachineOption {
	return func(m *Moderation) {
		if sink != nil {
			m.activity = sink
		}
	}
}

func WithLogger(logger gabriel.Logger) MachineOption {
	return func(m *Moderation) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithHookErrorHandler(handler HookErrorHandler) MachineOption {
	return func(m *Moderation) {
		if handler != nil {
			m.hookErrorHandler = handler
		}
	}
}

// WithReason records why the moderator acted
func WithReason(reason string) TransitionOption {
	return func(o *transitionOptions) {
		o.reason = reason
	}
}

func WithBeforeHook(h TransitionHook) TransitionOption {
	return func(o *transitionOptions) {
		if h != nil {
			o.beforeHooks = append(o.beforeHooks, h)
		}
	}
}

func WithAfterHook(h TransitionHook) TransitionOption {
	return func(o *transitionOptions) {
		if h != nil {
			o.afterHooks = append(o.afterHooks, h)
		}
	}
}

type transitionOptions struct {
	reason      string
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

// Moderation moves requests through pending, approved and rejected
type Moderation struct {
	store            Store
	transitions      map[Status]map[Status]struct{}
	now              func() time.Time
	activity         gabriel.ActivitySink
	logger           gabriel.Logger
	hookErrorHandler HookErrorHandler
}

func NewModeration(store Store, opts ...MachineOption) *Moderation {
	m := &Moderation{
		store: store,
		transitions: map[Status]map[Status]struct{}{
			StatusPending: {
				StatusApproved: {},
				StatusRejected: {},
			},
			StatusApproved: {
				StatusRejected: {},
			},
			StatusRejected: {
				StatusApproved: {},
			},
		},
		now:      time.Now,
		activity: gabriel.MultiActivitySink{},
		logger:   gabriel.NopLogger{},
		hookErrorHandler: func(_ context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "moderation hook failed").
				WithMetadata(map[string]any{
					"phase": string(phase),
					"id":    tc.Request.ID.String(),
					"from":  string(tc.From),
					"to":    string(tc.To),
				})
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// CanTransition reports whether the table allows from -> to
func (m *Moderation) CanTransition(from, to Status) bool {
	if allowed, ok := m.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Transition changes the status of req. Only admins may moderate. Moving to
// the current status is a no-op.
func (m *Moderation) Transition(ctx context.Context, tx bun.IDB, by Moderator, req *Request, target Status, opts ...TransitionOption) (*Request, error) {
	if by == nil || !by.IsAdmin() {
		return nil, errModeratorRequired()
	}

	if req == nil {
		return nil, errInvalidTransition(map[string]any{
			"target": target,
			"reason": "request is nil",
		})
	}

	if !target.IsValid() {
		return nil, errInvalidTransition(map[string]any{
			"target": target,
			"reason": "unknown status",
		})
	}

	req.EnsureStatus()
	from := req.Status
	if from == target {
		return req, nil
	}

	if !m.CanTransition(from, target) {
		return nil, errInvalidTransition(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	moderatorID, err := uuid.Parse(by.UserID())
	if err != nil {
		return nil, errModeratorRequired()
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	tc := TransitionContext{
		Actor:   gabriel.ActorRef{ID: moderatorID.String(), Type: "user"},
		Request: req,
		From:    from,
		To:      target,
		Reason:  options.reason,
	}

	if err := m.runHooks(ctx, options.beforeHooks, tc, HookPhaseBefore); err != nil {
		return nil, err
	}

	at := m.now()
	updated, err := m.store.UpdateStatusTx(ctx, tx, req.ID, target, moderatorID, at)
	if err != nil {
		return nil, err
	}

	req.Status = target
	req.ModeratedBy = &moderatorID
	req.ModeratedAt = &at
	req.UpdatedAt = &at
	if updated != nil && updated.Status != "" {
		req.Status = updated.Status
	}

	if err := m.runHooks(ctx, options.afterHooks, tc, HookPhaseAfter); err != nil {
		return nil, err
	}

	meta := map[string]any{
		"prayer_request_id": req.ID.String(),
		"from_status":       string(from),
		"to_status":         string(target),
	}
	if options.reason != "" {
		meta["reason"] = options.reason
	}

	event := gabriel.ActivityEvent{
		EventType:  gabriel.ActivityEventPrayerModerated,
		Actor:      tc.Actor,
		UserID:     req.UserID.String(),
		Metadata:   meta,
		OccurredAt: at,
	}
	if err := m.activity.Record(ctx, event); err != nil {
		m.logger.Warn("moderation activity sink error", "error", err)
	}

	return req, nil
}

func (m *Moderation) runHooks(ctx context.Context, hooks []TransitionHook, tc TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, tc); err != nil {
			return m.hookErrorHandler(ctx, phase, err, tc)
		}
	}
	return nil
}
