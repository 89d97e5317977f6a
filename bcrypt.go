package gabriel

import (
	"sync/atomic"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest input bcrypt will hash.
const MaxPasswordBytes = 72

var passwordHashCost atomic.Int32

func init() {
	passwordHashCost.Store(defaultPasswordHashCost)
}

// SetPasswordHashCost changes the bcrypt cost for hashes created from now
// on. Existing hashes keep verifying at the cost they were stored with.
func SetPasswordHashCost(cost int) error {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return goerrors.New("bcrypt cost out of range", goerrors.CategoryInternal).WithTextCode(TextCodeConfigInvalid).
			WithMetadata(map[string]any{"cost": cost, "min": bcrypt.MinCost, "max": bcrypt.MaxCost})
	}
	passwordHashCost.Store(int32(cost))
	return nil
}

// HashPassword returns the bcrypt hash stored in users.password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), int(passwordHashCost.Load()))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return string(h), nil
}

// ComparePasswordAndHash returns ErrMismatchedHashAndPassword when the
// cleartext does not match. Any other failure means the stored hash is bad.
func ComparePasswordAndHash(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case goerrors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrMismatchedHashAndPassword
	default:
		return goerrors.Wrap(err, goerrors.CategoryInternal, "stored password hash is unreadable")
	}
}
