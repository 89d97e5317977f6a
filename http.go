package gabriel

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/littlegabriel/gabriel/middleware/jwtware"
)

const (
	// SessionCookie carries the primary login token
	SessionCookie = "gabriel-session"
	// DirectTokenCookie carries the token issued by direct-login
	DirectTokenCookie = "gabriel-auth-token"
	// DirectUserCookie is the client readable copy of the claims
	DirectUserCookie = "gabriel-auth-user"
	// SiteAuthCookie is the legacy boolean flag, a UI hint only
	SiteAuthCookie = "gabriel-site-auth"

	// DefaultTokenLookup accepts the bearer header and both token cookies
	DefaultTokenLookup = "header:Authorization,cookie:" + SessionCookie + ",cookie:" + DirectTokenCookie

	// DirectCookieTTL is the rolling lifetime of the direct-login cookies
	DirectCookieTTL = 30 * 24 * time.Hour
)

// SessionAuthority is what the HTTP layer needs from the session issuer
type SessionAuthority interface {
	Authenticator
	TokenService() TokenService
	CheckRevoked(ctx context.Context, claims AuthClaims) error
}

var _ SessionAuthority = (*Auther)(nil)

type RouteAuthenticator struct {
	auth             SessionAuthority
	cfg              Config
	cookieDuration   time.Duration
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther SessionAuthority, cfg Config) *RouteAuthenticator {
	cookieDuration := DirectCookieTTL
	if cfg.GetTokenExpiration() > 0 {
		cookieDuration = time.Duration(cfg.GetTokenExpiration()) * time.Hour
	}

	a := &RouteAuthenticator{
		cfg:            cfg,
		auth:           auther,
		Logger:         defLogger{},
		cookieDuration: cookieDuration,
	}

	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a
}

func (a *RouteAuthenticator) WithLogger(l Logger) *RouteAuthenticator {
	a.Logger = ensureLogger(l)
	return a
}

func (a *RouteAuthenticator) Authority() SessionAuthority {
	return a.auth
}

func (a *RouteAuthenticator) Config() Config {
	return a.cfg
}

func (a *RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

func (a *RouteAuthenticator) contextKey() string {
	if key := a.cfg.GetContextKey(); key != "" {
		return key
	}
	return DefaultContextKey
}

func (a *RouteAuthenticator) tokenLookup() string {
	if lookup := a.cfg.GetTokenLookup(); lookup != "" {
		return lookup
	}
	return DefaultTokenLookup
}

func (a *RouteAuthenticator) validateToken(raw string) (jwtware.AuthClaims, error) {
	claims, err := a.auth.TokenService().Validate(raw)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (a *RouteAuthenticator) revocationListener(ctx router.Context, claims jwtware.AuthClaims) error {
	sc, ok := claims.(*SessionClaims)
	if !ok {
		return ErrTokenMalformed
	}
	return a.auth.CheckRevoked(ctx.Context(), sc)
}

func enrichContext(c context.Context, claims jwtware.AuthClaims) context.Context {
	return ContextEnricher(c, claims)
}

// ProtectedRoute requires a verified, unrevoked token from any of the
// configured sources
func (a *RouteAuthenticator) ProtectedRoute(listeners ...jwtware.ValidationListener) router.MiddlewareFunc {
	return jwtware.New(a.jwtConfig("", listeners...))
}

// RequireRole is ProtectedRoute plus a minimum role
func (a *RouteAuthenticator) RequireRole(role UserRole, listeners ...jwtware.ValidationListener) router.MiddlewareFunc {
	return jwtware.New(a.jwtConfig(role, listeners...))
}

func (a *RouteAuthenticator) jwtConfig(minRole string, listeners ...jwtware.ValidationListener) jwtware.Config {
	return jwtware.Config{
		ErrorHandler:        a.AuthErrorHandler,
		TokenValidator:      jwtware.TokenValidatorFunc(a.validateToken),
		AuthScheme:          a.cfg.GetAuthScheme(),
		ContextKey:          a.contextKey(),
		TokenLookup:         a.tokenLookup(),
		MinimumRole:         minRole,
		ContextEnricher:     enrichContext,
		ValidationListeners: append([]jwtware.ValidationListener{a.revocationListener}, listeners...),
	}
}

// OptionalRoute attaches the claims when a valid token is present and
// lets anonymous requests through
func (a *RouteAuthenticator) OptionalRoute() router.MiddlewareFunc {
	extractors := jwtware.GetExtractors(a.tokenLookup(), a.cfg.GetAuthScheme())
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			raw, err := jwtware.ExtractRawTokenFromContext(ctx, extractors)
			if err != nil || raw == "" {
				return next(ctx)
			}

			claims, err := a.auth.ClaimsFromToken(ctx.Context(), raw)
			if err != nil {
				a.Logger.Debug("optional auth failed, proceeding", "error", err)
				return next(ctx)
			}

			ctx.Locals(a.contextKey(), claims)
			ctx.SetContext(WithClaimsContext(ctx.Context(), claims))
			return next(ctx)
		}
	}
}

// Claims returns the verified claims attached by ProtectedRoute
func (a *RouteAuthenticator) Claims(ctx router.Context) (*SessionClaims, bool) {
	return GetRouterClaims(ctx, a.contextKey())
}

// ClaimsFromCookie verifies the token stored in the named cookie
func (a *RouteAuthenticator) ClaimsFromCookie(ctx router.Context, name string) (*SessionClaims, error) {
	return a.auth.ClaimsFromToken(ctx.Context(), ctx.Cookies(name))
}

// RawToken returns the first token found in the configured sources
func (a *RouteAuthenticator) RawToken(ctx router.Context) string {
	raw, _ := jwtware.ExtractRawTokenFromContext(ctx, jwtware.GetExtractors(a.tokenLookup(), a.cfg.GetAuthScheme()))
	return raw
}

func (a *RouteAuthenticator) GetRedirect(ctx router.Context, def ...string) string {
	rejectedRoute := a.cfg.GetRejectedRouteKey()
	r := ctx.Cookies(rejectedRoute)
	if r == "" {
		if len(def) > 0 {
			return def[0]
		}
		return a.cfg.GetRejectedRouteDefault()
	}
	a.cookieDel(ctx, rejectedRoute, true)
	return r
}

func (a *RouteAuthenticator) SetRedirect(ctx router.Context) {
	rejectedRoute := a.cfg.GetRejectedRouteKey()

	a.Logger.Debug("setting redirect cookie", "key", rejectedRoute, "path", ctx.OriginalURL())

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    ctx.OriginalURL(),
		Path:     "/",
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: "Lax",
	})
}

// SetSessionCookie stores the primary login token
func (a *RouteAuthenticator) SetSessionCookie(c router.Context, token string) {
	a.setCookie(c, SessionCookie, token, a.cookieDuration, true)
}

func (a *RouteAuthenticator) setCookie(c router.Context, name, val string, duration time.Duration, httpOnly bool) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    val,
		Path:     "/",
		Expires:  time.Now().Add(duration),
		HTTPOnly: httpOnly,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: "Lax",
	})
}

// ClearAuthCookies removes every auth cookie the server may have set
func (a *RouteAuthenticator) ClearAuthCookies(c router.Context) {
	a.cookieDel(c, SessionCookie, true)
	a.cookieDel(c, DirectTokenCookie, true)
	a.cookieDel(c, DirectUserCookie, false)
	a.cookieDel(c, SiteAuthCookie, false)
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string, httpOnly bool) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: httpOnly,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: "Lax",
	})
}

// AuthError maps middleware and token errors onto the auth sentinels
func AuthError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwtware.ErrAccessDenied):
		return ErrForbidden
	case errors.Is(err, jwtware.ErrJWTMissingOrMalformed):
		return ErrUnauthenticated
	case IsTokenExpiredError(err):
		return ErrTokenExpired
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr
	}
	return ErrTokenMalformed
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	authErr := AuthError(err)
	a.Logger.Debug("authentication rejected",
		"error", err,
		"path", c.Path(),
	)
	return RenderError(c, a.Logger, authErr)
}

// PageAuthErrorHandler redirects page requests to the login page and
// remembers where the visitor was going
func (a *RouteAuthenticator) PageAuthErrorHandler(c router.Context, err error) error {
	a.Logger.Info("page authentication rejected, redirecting to login",
		"error", AuthError(err),
		"path", c.OriginalURL(),
	)

	a.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(a.cfg.GetRejectedRouteDefault(), statusCode)
}
