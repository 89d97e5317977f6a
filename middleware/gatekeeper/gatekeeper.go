// Package gatekeeper is the page request middleware that looks at the auth
// cookies before a page is served.
//
// In observe mode it only logs what it found and always forwards the
// request. In enforce mode a page request without a verified token is
// redirected to the login page, and the rejected URL is remembered in a short
// lived cookie so the login flow can send the visitor back.
package gatekeeper

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-router"
	"github.com/littlegabriel/gabriel"
)

type Mode string

const (
	ModeObserve Mode = "observe"
	ModeEnforce Mode = "enforce"
)

// DefaultExclusions are never gated
var DefaultExclusions = []string{
	"/api",
	"/_next",
	"/static",
	"/assets",
	"/favicon.ico",
	"/login",
	"/register",
	"/auth",
	"/metrics",
	"/health",
}

const (
	DefaultLoginPath        = "/login"
	DefaultRejectedRouteKey = "gabriel-rejected-route"
	rejectedRouteTTL        = 5 * time.Minute
)

// TokenVerifier checks the signature, expiry and revocation of a raw token.
// *gabriel.Auther satisfies it.
type TokenVerifier interface {
	ClaimsFromToken(ctx context.Context, raw string) (*gabriel.SessionClaims, error)
}

type Config struct {
	Mode             Mode
	Exclusions       []string
	LoginPath        string
	RejectedRouteKey string
	SecureCookies    bool
	Verifier         TokenVerifier
	Logger           gabriel.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.Mode == "" {
		cfg.Mode = ModeObserve
	}
	if cfg.Exclusions == nil {
		cfg.Exclusions = DefaultExclusions
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.RejectedRouteKey == "" {
		cfg.RejectedRouteKey = DefaultRejectedRouteKey
	}
	if cfg.Logger == nil {
		cfg.Logger = gabriel.NopLogger{}
	}
	if cfg.Mode == ModeEnforce && cfg.Verifier == nil {
		cfg.Logger.Warn("gatekeeper enforce mode needs a token verifier, falling back to observe")
		cfg.Mode = ModeObserve
	}
	return cfg
}

// Outcome of inspecting a request
type Outcome string

const (
	OutcomeExcluded      Outcome = "excluded"
	OutcomeDirect        Outcome = "direct"
	OutcomeSession       Outcome = "session"
	OutcomeInvalid       Outcome = "invalid"
	OutcomeAnonymous     Outcome = "anonymous"
	OutcomeUnverifiable  Outcome = "unverifiable"
	OutcomeDirectPresent Outcome = "direct_present"
)

// Excluded reports whether path is on the exclusion list. A prefix matches
// the exact path or any path below it.
func Excluded(path string, exclusions []string) bool {
	for _, prefix := range exclusions {
		prefix = strings.TrimRight(prefix, "/")
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

type gate struct {
	cfg Config
}

func New(cfg Config) router.MiddlewareFunc {
	g := &gate{cfg: cfg.withDefaults()}
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			outcome, claims := g.inspect(ctx)

			g.cfg.Logger.Debug("gatekeeper",
				"mode", g.cfg.Mode,
				"path", ctx.Path(),
				"outcome", outcome,
			)

			if claims != nil {
				ctx.SetContext(gabriel.WithClaimsContext(ctx.Context(), claims))
			}

			if g.cfg.Mode == ModeEnforce && !allowed(outcome) {
				return g.reject(ctx)
			}
			return next(ctx)
		}
	}
}

func allowed(o Outcome) bool {
	switch o {
	case OutcomeExcluded, OutcomeDirect, OutcomeSession:
		return true
	default:
		return false
	}
}

// inspect checks the direct cookie first, then the framework session cookie
func (g *gate) inspect(ctx router.Context) (Outcome, *gabriel.SessionClaims) {
	if Excluded(ctx.Path(), g.cfg.Exclusions) {
		return OutcomeExcluded, nil
	}

	direct := ctx.Cookies(gabriel.DirectTokenCookie)
	session := ctx.Cookies(gabriel.SessionCookie)

	if g.cfg.Verifier == nil {
		if direct != "" {
			return OutcomeDirectPresent, nil
		}
		if session != "" {
			return OutcomeUnverifiable, nil
		}
		return OutcomeAnonymous, nil
	}

	if claims := g.verify(ctx, "direct", direct); claims != nil {
		return OutcomeDirect, claims
	}
	if claims := g.verify(ctx, "session", session); claims != nil {
		return OutcomeSession, claims
	}

	if direct != "" || session != "" {
		return OutcomeInvalid, nil
	}
	return OutcomeAnonymous, nil
}

func (g *gate) verify(ctx router.Context, source, raw string) *gabriel.SessionClaims {
	if raw == "" {
		return nil
	}
	claims, err := g.cfg.Verifier.ClaimsFromToken(ctx.Context(), raw)
	if err != nil {
		g.cfg.Logger.Debug("gatekeeper token rejected", "source", source, "error", err)
		return nil
	}
	return claims
}

func (g *gate) reject(ctx router.Context) error {
	ctx.Cookie(&router.Cookie{
		Name:     g.cfg.RejectedRouteKey,
		Value:    ctx.OriginalURL(),
		Path:     "/",
		Expires:  time.Now().Add(rejectedRouteTTL),
		HTTPOnly: true,
		Secure:   g.cfg.SecureCookies,
		SameSite: "Lax",
	})

	status := http.StatusSeeOther
	if ctx.Method() == string(router.GET) {
		status = http.StatusFound
	}

	g.cfg.Logger.Info("gatekeeper redirecting to login", "path", ctx.OriginalURL())
	return ctx.Redirect(g.cfg.LoginPath, status)
}
