package gabriel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logger used across gabriel packages.
// glog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LoggerProvider hands out named loggers
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// Session holds attributes that are part of an auth session
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetEmail() string
	GetName() string
	GetRole() UserRole
	GetTokenID() string
	GetIssuedAt() *time.Time
	GetExpiresAt() *time.Time
}

// Authenticator is the single session authority. Every login path
// (framework session cookie, direct cookie, bearer header) issues and
// verifies tokens through it.
type Authenticator interface {
	Authorize(ctx context.Context, email, password string) (*SessionClaims, error)
	Login(ctx context.Context, email, password string) (string, *SessionClaims, error)
	Renew(ctx context.Context, token string) (string, *SessionClaims, error)
	Logout(ctx context.Context, token string) error
	SessionFromToken(ctx context.Context, token string) (Session, error)
	ClaimsFromToken(ctx context.Context, token string) (*SessionClaims, error)
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Email() string
	Name() string
	Role() string
}

// IdentityProvider ensures we have a store to retrieve auth identity
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, email, password string) (Identity, error)
	FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error)
}

// Revoker tracks tokens that were invalidated before their expiry
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenExpiration() int
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
	GetSecureCookies() bool
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) { printLog("DBG", msg, args...) }
func (d defLogger) Info(msg string, args ...any)  { printLog("INF", msg, args...) }
func (d defLogger) Warn(msg string, args ...any)  { printLog("WRN", msg, args...) }
func (d defLogger) Error(msg string, args ...any) { printLog("ERR", msg, args...) }

func printLog(level, msg string, args ...any) {
	line := fmt.Sprintf("[%s] GABRIEL %s", level, msg)
	for i := 0; i+1 < len(args); i += 2 {
		line += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	fmt.Println(line)
}

func ensureLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}

// NopLogger discards everything, handy in tests
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
