package gabriel

import (
	"context"
	"reflect"
	"time"

	"github.com/goliatone/go-errors"
)

// Auther is the session issuer. Every token in the system is minted and
// verified here.
type Auther struct {
	provider     IdentityProvider
	tokenService TokenService
	revoker      Revoker
	logger       Logger
	activitySink ActivitySink
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	return &Auther{
		provider:     provider,
		tokenService: tokenService,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = ensureLogger(logger)
	if ts, ok := s.tokenService.(*TokenServiceImpl); ok {
		ts.logger = s.logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithRevoker enables token revocation on logout
func (s *Auther) WithRevoker(revoker Revoker) *Auther {
	s.revoker = revoker
	return s
}

// WithTokenService replaces the token service, mostly for tests
func (s *Auther) WithTokenService(ts TokenService) *Auther {
	if ts != nil {
		s.tokenService = ts
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Authorize validates credentials and returns the claims that would be
// embedded in a session token. Errors are the credential validator's
// categorized errors and their message is meant to reach the caller.
func (s *Auther) Authorize(ctx context.Context, email, password string) (*SessionClaims, error) {
	identity, err := s.provider.VerifyIdentity(ctx, email, password)
	if err != nil {
		s.logger.Warn("authorize verify identity error", "error", err)
		s.emit(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"email": NormalizeEmail(email),
			"error": err.Error(),
		})
		return nil, err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("authorize identity is nil or zero value")
		return nil, ErrUserNotFound
	}

	return NewSessionClaims(identity), nil
}

// Login authorizes and signs a session token
func (s *Auther) Login(ctx context.Context, email, password string) (string, *SessionClaims, error) {
	claims, err := s.Authorize(ctx, email, password)
	if err != nil {
		return "", nil, err
	}

	token, err := s.tokenService.Sign(claims)
	if err != nil {
		s.logger.Error("login sign token error", "error", err)
		return "", nil, err
	}

	s.emit(ctx, ActivityEventLoginSuccess, ActorFromClaims(claims), claims.UserID(), map[string]any{
		"email": claims.Email(),
	})

	return token, claims, nil
}

// Renew issues a new token carrying the claims of the given one. The user
// store is not queried.
func (s *Auther) Renew(ctx context.Context, raw string) (string, *SessionClaims, error) {
	claims, err := s.ClaimsFromToken(ctx, raw)
	if err != nil {
		return "", nil, err
	}

	token, next, err := s.tokenService.Renew(claims)
	if err != nil {
		s.logger.Error("renew sign token error", "error", err)
		return "", nil, err
	}

	s.emit(ctx, ActivityEventTokenRenewed, ActorFromClaims(claims), claims.UserID(), map[string]any{
		"previous_jti": claims.TokenID(),
		"jti":          next.TokenID(),
	})

	return token, next, nil
}

// Logout revokes the token until its natural expiry. Invalid tokens are
// ignored, there is nothing to revoke.
func (s *Auther) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}

	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		s.logger.Debug("logout with invalid token", "error", err)
		return nil
	}

	if s.revoker != nil && claims.TokenID() != "" {
		if err := s.revoker.Revoke(ctx, claims.TokenID(), claims.Expires()); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to revoke session token")
		}
	}

	s.emit(ctx, ActivityEventLogout, ActorFromClaims(claims), claims.UserID(), map[string]any{
		"jti": claims.TokenID(),
	})

	return nil
}

// ClaimsFromToken verifies signature, expiry and revocation
func (s *Auther) ClaimsFromToken(ctx context.Context, raw string) (*SessionClaims, error) {
	if raw == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		return nil, err
	}

	if err := s.CheckRevoked(ctx, claims); err != nil {
		return nil, err
	}

	return claims, nil
}

// CheckRevoked returns ErrTokenRevoked for denylisted tokens
func (s *Auther) CheckRevoked(ctx context.Context, claims AuthClaims) error {
	if s.revoker == nil || claims == nil || claims.TokenID() == "" {
		return nil
	}

	revoked, err := s.revoker.IsRevoked(ctx, claims.TokenID())
	if err != nil {
		s.logger.Error("revocation lookup failed", "error", err)
		return errors.Wrap(err, errors.CategoryInternal, "failed to check token revocation")
	}
	if revoked {
		return ErrTokenRevoked
	}
	return nil
}

func (s *Auther) SessionFromToken(ctx context.Context, raw string) (Session, error) {
	claims, err := s.ClaimsFromToken(ctx, raw)
	if err != nil {
		s.logger.Debug("session from token validation failed", "error", err)
		return nil, err
	}

	return sessionFromClaims(claims)
}

func (s *Auther) emit(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	})
}

// ActorFromClaims builds the audit actor for a verified session
func ActorFromClaims(claims AuthClaims) ActorRef {
	if claims == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: claims.UserID(), Type: "user"}
}
