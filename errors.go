package gabriel

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeMissingCredentials = "MISSING_CREDENTIALS"
	TextCodeUserNotFound       = "USER_NOT_FOUND"
	TextCodeNoPassword         = "NO_PASSWORD_SET"
	TextCodeInvalidCredentials = "INVALID_PASSWORD"
	TextCodeEmailTaken         = "EMAIL_TAKEN"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeTokenRevoked       = "TOKEN_REVOKED"
	TextCodeUnauthenticated    = "UNAUTHENTICATED"
	TextCodeForbidden          = "FORBIDDEN"
	TextCodeNotFound           = "NOT_FOUND"
	TextCodeValidation         = "VALIDATION_FAILED"
	TextCodeSitePassword       = "INVALID_SITE_PASSWORD"
	TextCodeUnavailable        = "SERVICE_UNAVAILABLE"
	TextCodeConfigInvalid      = "CONFIG_INVALID"
)

// ErrMissingCredentials is returned when email or password are empty
var ErrMissingCredentials = goerrors.New("Email and password are required", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeMissingCredentials)

// ErrUserNotFound no account for the given email
var ErrUserNotFound = goerrors.New("User not found", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeUserNotFound)

// ErrNoPassword the account exists but has no password hash
var ErrNoPassword = goerrors.New("No password set for this account", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeNoPassword)

// ErrInvalidCredentials the password did not match the stored hash
var ErrInvalidCredentials = goerrors.New("Invalid password", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeInvalidCredentials)

// ErrEmailTaken registration conflict
var ErrEmailTaken = goerrors.New("A user with this email already exists", goerrors.CategoryConflict).
	WithCode(goerrors.CodeConflict).
	WithTextCode(TextCodeEmailTaken)

// ErrTokenExpired the session token is past its expiration
var ErrTokenExpired = goerrors.New("Session token is expired", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenMalformed the session token could not be parsed or verified
var ErrTokenMalformed = goerrors.New("Session token is malformed", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenMalformed)

// ErrTokenRevoked the session token was invalidated by a logout
var ErrTokenRevoked = goerrors.New("Session token has been revoked", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenRevoked)

// ErrUnauthenticated no session on the request
var ErrUnauthenticated = goerrors.New("Authentication required", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeUnauthenticated)

// ErrForbidden the session is valid but lacks the required role
var ErrForbidden = goerrors.New("You do not have permission to perform this action", goerrors.CategoryAuthz).
	WithCode(goerrors.CodeForbidden).
	WithTextCode(TextCodeForbidden)

// ErrNotFound generic missing record
var ErrNotFound = goerrors.New("Record not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound).
	WithTextCode(TextCodeNotFound)

// ErrUpstream a hosted dependency answered with an error
var ErrUpstream = goerrors.New("Upstream service failed", goerrors.CategoryOperation).
	WithCode(http.StatusBadGateway).
	WithTextCode(TextCodeUpstream)

// ErrServiceUnavailable a feature is disabled because its settings are missing
var ErrServiceUnavailable = goerrors.New("Service is not configured", goerrors.CategoryOperation).
	WithCode(http.StatusServiceUnavailable).
	WithTextCode(TextCodeUnavailable)

// ErrInvalidSitePassword wrong legacy site password
var ErrInvalidSitePassword = goerrors.New("Invalid site password", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeSitePassword)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrPasswordTooLong bcrypt ignores input past MaxPasswordBytes
var ErrPasswordTooLong = goerrors.New("password must be at most 72 bytes", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword bcrypt comparison failed
var ErrMismatchedHashAndPassword = goerrors.New("password does not match hash", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToParseData claims could not be mapped into a session
var ErrUnableToParseData = goerrors.New("unable to parse data", goerrors.CategoryInternal)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

func errInvalidBody(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "Invalid request body").
		WithCode(goerrors.CodeBadRequest)
}
