package gabriel

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

// DirectTokenIssuer is the cookie based login path. It signs through the
// same authority as the primary login so both paths share one claim shape
// and one revocation channel.
type DirectTokenIssuer struct {
	routes       *RouteAuthenticator
	logger       Logger
	activitySink ActivitySink
}

func NewDirectTokenIssuer(routes *RouteAuthenticator) *DirectTokenIssuer {
	return &DirectTokenIssuer{
		routes:       routes,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (d *DirectTokenIssuer) WithLogger(l Logger) *DirectTokenIssuer {
	d.logger = ensureLogger(l)
	return d
}

func (d *DirectTokenIssuer) WithActivitySink(sink ActivitySink) *DirectTokenIssuer {
	d.activitySink = normalizeActivitySink(sink)
	return d
}

// Issue validates the credentials and writes the cookie triplet. Calling it
// again with valid credentials reissues all three with a fresh expiry.
func (d *DirectTokenIssuer) Issue(ctx context.Context, c router.Context, email, password string) (*SessionClaims, error) {
	token, claims, err := d.routes.Authority().Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	userCookie, err := EncodeUserCookie(claims.Identity())
	if err != nil {
		return nil, err
	}

	d.routes.setCookie(c, DirectTokenCookie, token, DirectCookieTTL, true)
	d.routes.setCookie(c, DirectUserCookie, userCookie, DirectCookieTTL, false)
	d.routes.setCookie(c, SiteAuthCookie, "true", DirectCookieTTL, false)

	recordActivity(ctx, d.activitySink, d.logger, ActivityEvent{
		EventType:  ActivityEventDirectLogin,
		Actor:      ActorFromClaims(claims),
		UserID:     claims.UserID(),
		Metadata:   map[string]any{"jti": claims.TokenID()},
		OccurredAt: time.Now(),
	})

	return claims, nil
}

// EncodeUserCookie serializes the identity for the client readable cookie.
// The value is URI encoded so it is a valid cookie octet string.
func EncodeUserCookie(identity ClaimsIdentity) (string, error) {
	raw, err := json.Marshal(identity)
	if err != nil {
		return "", ErrUnableToParseData
	}
	return strings.ReplaceAll(url.QueryEscape(string(raw)), "+", "%20"), nil
}

// DecodeUserCookie is the inverse of EncodeUserCookie. The result is not
// verified and must never authorize anything.
func DecodeUserCookie(value string) (ClaimsIdentity, error) {
	identity := ClaimsIdentity{}
	if value == "" {
		return identity, ErrUnableToParseData
	}

	decoded, err := url.QueryUnescape(value)
	if err != nil {
		decoded = value
	}

	if err := json.Unmarshal([]byte(decoded), &identity); err != nil {
		return identity, ErrUnableToParseData
	}
	return identity, nil
}
