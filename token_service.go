package gabriel

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenService signs and verifies session tokens
type TokenService interface {
	Sign(claims *SessionClaims) (string, error)
	Validate(tokenString string) (*SessionClaims, error)
	Renew(claims *SessionClaims) (string, *SessionClaims, error)
	Expiration() time.Duration
}

// TokenServiceImpl implements the TokenService interface using HS256
type TokenServiceImpl struct {
	signingKey []byte
	expiration time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	now        func() time.Time
}

// NewTokenService creates a new TokenService instance.
// tokenExpiration is expressed in hours.
func NewTokenService(signingKey []byte, tokenExpiration int, issuer string, audience []string, logger Logger) *TokenServiceImpl {
	if tokenExpiration <= 0 {
		tokenExpiration = DefaultTokenExpirationHours
	}
	return &TokenServiceImpl{
		signingKey: signingKey,
		expiration: time.Duration(tokenExpiration) * time.Hour,
		issuer:     issuer,
		audience:   audience,
		logger:     ensureLogger(logger),
		now:        time.Now,
	}
}

// DefaultTokenExpirationHours is thirty days
const DefaultTokenExpirationHours = 30 * 24

// WithClock overrides the time source
func (ts *TokenServiceImpl) WithClock(now func() time.Time) *TokenServiceImpl {
	if now != nil {
		ts.now = now
	}
	return ts
}

func (ts *TokenServiceImpl) Expiration() time.Duration {
	return ts.expiration
}

// Sign fills in the registered claims and signs the token. A new jti is
// generated for every call.
func (ts *TokenServiceImpl) Sign(claims *SessionClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	now := ts.now()
	claims.Issuer = ts.issuer
	if len(ts.audience) > 0 {
		claims.Audience = append(jwt.ClaimStrings{}, ts.audience...)
	}
	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)
	claims.RegisteredClaims.NotBefore = jwt.NewNumericDate(now)
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(now.Add(ts.expiration))
	if claims.RegisteredClaims.Subject == "" {
		claims.RegisteredClaims.Subject = claims.UID
	}
	claims.RegisteredClaims.ID = ""
	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Renew copies the identity claims into a fresh token. The store is not
// consulted, a role change only shows up after a new login.
func (ts *TokenServiceImpl) Renew(claims *SessionClaims) (string, *SessionClaims, error) {
	if claims == nil {
		return "", nil, ErrUnableToParseData
	}
	next := cloneIdentityClaims(claims)
	token, err := ts.Sign(next)
	if err != nil {
		return "", nil, err
	}
	return token, next, nil
}

// Validate parses and validates a token string, returning structured claims
func (ts *TokenServiceImpl) Validate(tokenString string) (*SessionClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token service encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithCode(ErrTokenMalformed.Code).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("token service could not decode or validate claims")
	return nil, ErrTokenMalformed
}
