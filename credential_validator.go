package gabriel

import (
	"context"
	"database/sql"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// UserFinder is the read side of the users store the validator needs
type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error)
}

// CredentialValidator checks an email/password pair against the stored
// password hashes. It never writes to the store.
type CredentialValidator struct {
	store  UserFinder
	logger Logger
}

var _ IdentityProvider = (*CredentialValidator)(nil)

// NewCredentialValidator will create a new CredentialValidator
func NewCredentialValidator(store UserFinder) *CredentialValidator {
	return &CredentialValidator{
		store:  store,
		logger: defLogger{},
	}
}

func (v *CredentialValidator) WithLogger(l Logger) *CredentialValidator {
	v.logger = ensureLogger(l)
	return v
}

// VerifyIdentity will find the user by normalized email, compare the password,
// and return the identity. Failures map to ErrMissingCredentials,
// ErrUserNotFound, ErrNoPassword or ErrInvalidCredentials.
func (v *CredentialValidator) VerifyIdentity(ctx context.Context, email, password string) (Identity, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	user, err := v.store.GetByEmail(ctx, email)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if !user.HasPassword() {
		return nil, ErrNoPassword
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if errors.Is(err, ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		v.logger.Error("password comparison failed", "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to compare password")
	}

	return identityFromUser(user), nil
}

// FindIdentityByIdentifier resolves an id or email into an identity
func (v *CredentialValidator) FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error) {
	user, err := v.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user")
	}
	return identityFromUser(user), nil
}

func isRecordNotFound(err error) bool {
	return repository.IsRecordNotFound(err) || errors.IsNotFound(err) || errors.Is(err, sql.ErrNoRows)
}

type authIdentity struct {
	id    string
	email string
	name  string
	role  string
}

func identityFromUser(user *User) authIdentity {
	role := user.Role
	if role == "" {
		role = RoleUser
	}
	return authIdentity{
		id:    user.ID.String(),
		email: user.Email,
		name:  user.Name,
		role:  role,
	}
}

func (a authIdentity) ID() string    { return a.id }
func (a authIdentity) Email() string { return a.email }
func (a authIdentity) Name() string  { return a.name }
func (a authIdentity) Role() string  { return a.role }
