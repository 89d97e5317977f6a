package gabriel

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthClaims represents the verified identity carried by a session token
type AuthClaims interface {
	Subject() string
	UserID() string
	Email() string
	Name() string
	Role() string
	TokenID() string
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// SessionClaims is the claim set shared by every token gabriel issues
type SessionClaims struct {
	jwt.RegisteredClaims
	UID       string `json:"uid,omitempty"`
	UserEmail string `json:"email,omitempty"`
	UserName  string `json:"name,omitempty"`
	UserRole  string `json:"role,omitempty"`
}

var _ AuthClaims = (*SessionClaims)(nil)

// NewSessionClaims maps an identity to the minimal claim set {id, email, name, role}
func NewSessionClaims(identity Identity) *SessionClaims {
	return &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: identity.ID(),
		},
		UID:       identity.ID(),
		UserEmail: identity.Email(),
		UserName:  identity.Name(),
		UserRole:  identity.Role(),
	}
}

// Subject returns the subject claim
func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

func (c *SessionClaims) Email() string { return c.UserEmail }

func (c *SessionClaims) Name() string { return c.UserName }

func (c *SessionClaims) Role() string { return c.UserRole }

// TokenID returns the jti claim
func (c *SessionClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// HasRole checks for an exact role match
func (c *SessionClaims) HasRole(role string) bool {
	return c.UserRole == role
}

// IsAtLeast checks if the user's role is at least the minimum required role
func (c *SessionClaims) IsAtLeast(minRole string) bool {
	return RoleIsAtLeast(c.UserRole, minRole)
}

// IsAdmin shortcut used by the controllers
func (c *SessionClaims) IsAdmin() bool {
	return c != nil && c.UserRole == RoleAdmin
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// Identity returns the user facing part of the claims
func (c *SessionClaims) Identity() ClaimsIdentity {
	return ClaimsIdentity{
		ID:    c.UserID(),
		Email: c.UserEmail,
		Name:  c.UserName,
		Role:  c.UserRole,
	}
}

// ClaimsIdentity is the JSON shape of the user section in auth responses
// and in the plaintext companion cookie
type ClaimsIdentity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// cloneIdentityClaims copies identity claims into a fresh claim set.
// Registered claims (iat, exp, jti) are reset by the caller.
func cloneIdentityClaims(src *SessionClaims) *SessionClaims {
	return &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: src.Subject(),
		},
		UID:       src.UID,
		UserEmail: src.UserEmail,
		UserName:  src.UserName,
		UserRole:  src.UserRole,
	}
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims == nil || claims.ID != "" {
		return
	}
	claims.ID = uuid.NewString()
}
