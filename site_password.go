package gabriel

import (
	"crypto/subtle"
	"strings"
)

// SitePassword guards the legacy shared site password. A successful check
// only sets the site-auth flag, it never authorizes an API call.
type SitePassword struct {
	plain string
	hash  string
}

// NewSitePassword prefers the bcrypt hash when both values are set
func NewSitePassword(plain, hash string) *SitePassword {
	return &SitePassword{
		plain: plain,
		hash:  strings.TrimSpace(hash),
	}
}

func (s *SitePassword) Enabled() bool {
	return s != nil && (s.plain != "" || s.hash != "")
}

func (s *SitePassword) Verify(password string) error {
	if !s.Enabled() || password == "" {
		return ErrInvalidSitePassword
	}

	if s.hash != "" {
		if err := ComparePasswordAndHash(password, s.hash); err != nil {
			return ErrInvalidSitePassword
		}
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(password), []byte(s.plain)) != 1 {
		return ErrInvalidSitePassword
	}
	return nil
}
