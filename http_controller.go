package gabriel

import (
	"errors"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/littlegabriel/gabriel/reconcile"
)

// AuthControllerRoutes are the paths relative to the group the controller
// is registered on
type AuthControllerRoutes struct {
	Register      string
	Login         string
	DirectLogin   string
	Logout        string
	Renew         string
	Me            string
	Session       string
	SitePassword  string
	PasswordReset string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Routes       *AuthControllerRoutes
	Auth         *RouteAuthenticator
	Direct       *DirectTokenIssuer
	SitePassword *SitePassword
	Activity     ActivitySink
	UseHashid    bool
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(l Logger) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Logger = ensureLogger(l)
		return ac
	}
}

func WithControllerRepository(repo RepositoryManager) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Repo = repo
		return ac
	}
}

func WithControllerAuthenticator(a *RouteAuthenticator) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Auth = a
		return ac
	}
}

func WithControllerSitePassword(sp *SitePassword) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.SitePassword = sp
		return ac
	}
}

func WithControllerActivitySink(sink ActivitySink) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Activity = normalizeActivitySink(sink)
		return ac
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Debug = debug
		return ac
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:   defLogger{},
		Activity: noopActivitySink{},
		Routes: &AuthControllerRoutes{
			Register:      "/register",
			Login:         "/login",
			DirectLogin:   "/direct-login",
			Logout:        "/logout",
			Renew:         "/renew",
			Me:            "/me",
			Session:       "/session",
			SitePassword:  "/site-password",
			PasswordReset: "/password-reset",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auth == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	if c.Direct == nil {
		c.Direct = NewDirectTokenIssuer(c.Auth).
			WithLogger(c.Logger).
			WithActivitySink(c.Activity)
	}

	return c
}

// RegisterAuthRoutes mounts the controller, usually on /api/auth
func RegisterAuthRoutes[T any](app router.Router[T], controller *AuthController) {
	protected := controller.Auth.ProtectedRoute()

	app.Post(controller.Routes.Register, controller.Register).SetName("auth.register")
	app.Post(controller.Routes.Login, controller.Login).SetName("auth.login")
	app.Post(controller.Routes.DirectLogin, controller.DirectLogin).SetName("auth.direct-login")
	app.Post(controller.Routes.Logout, controller.Logout).SetName("auth.logout")
	app.Post(controller.Routes.Renew, controller.Renew, protected).SetName("auth.renew")
	app.Get(controller.Routes.Me, controller.Me, protected).SetName("auth.me")
	app.Get(controller.Routes.Session, controller.Session).SetName("auth.session")
	app.Post(controller.Routes.SitePassword, controller.SitePasswordPost).SetName("auth.site-password")

	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost).SetName("auth.pwd-reset")
	app.Get(controller.Routes.PasswordReset+"/:uuid", controller.PasswordResetCheck).SetName("auth.pwd-reset-check")
	app.Post(controller.Routes.PasswordReset+"/:uuid", controller.PasswordResetExecute).SetName("auth.pwd-reset-do")
}

func (a *AuthController) fail(ctx router.Context, err error) error {
	return RenderError(ctx, a.Logger, err)
}

// RegistrationPayload is the register request body
type RegistrationPayload struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (r RegistrationPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

func (a *AuthController) Register(ctx router.Context) error {
	payload := new(RegistrationPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.fail(ctx, errInvalidBody(err))
	}

	if err := payload.Validate(); err != nil {
		return a.fail(ctx, NewValidationError(err))
	}

	var created *User
	handler := NewRegisterUserHandler(a.Repo).
		WithLogger(a.Logger).
		WithActivitySink(a.Activity)

	err := handler.Execute(ctx.Context(), RegisterUserMessage{
		Name:       payload.Name,
		Email:      payload.Email,
		Password:   payload.Password,
		UseHashid:  a.UseHashid,
		OnResponse: func(u *User) { created = u },
	})
	if err != nil {
		return a.fail(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, router.ViewContext{
		"message": "User registered successfully",
		"user":    created.Public(),
	})
}

// CredentialsPayload is shared by login and direct-login. It is not
// validated up front so the credential validator reports missing fields
// with its own error kind.
type CredentialsPayload struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (a *AuthController) Login(ctx router.Context) error {
	payload := new(CredentialsPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.fail(ctx, errInvalidBody(err))
	}

	if a.Debug {
		a.Logger.Debug("login attempt", "email", NormalizeEmail(payload.Email))
	}

	token, claims, err := a.Auth.Authority().Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return a.fail(ctx, err)
	}

	a.Auth.SetSessionCookie(ctx, token)

	return ctx.JSON(http.StatusOK, router.ViewContext{
		"user":      claims.Identity(),
		"token":     token,
		"expiresAt": claims.Expires(),
	})
}

func (a *AuthController) DirectLogin(ctx router.Context) error {
	payload := new(CredentialsPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.fail(ctx, errInvalidBody(err))
	}

	claims, err := a.Direct.Issue(ctx.Context(), ctx, payload.Email, payload.Password)
	if err != nil {
		return a.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{
		"success": true,
		"user":    claims.Identity(),
	})
}

// Logout revokes every token the request carries and clears the cookies
func (a *AuthController) Logout(ctx router.Context) error {
	seen := map[string]bool{}
	tokens := []string{
		a.Auth.RawToken(ctx),
		ctx.Cookies(SessionCookie),
		ctx.Cookies(DirectTokenCookie),
	}

	for _, raw := range tokens {
		if raw == "" || seen[raw] {
			continue
		}
		seen[raw] = true
		if err := a.Auth.Authority().Logout(ctx.Context(), raw); err != nil {
			return a.fail(ctx, err)
		}
	}

	a.Auth.ClearAuthCookies(ctx)
	return ctx.NoContent(http.StatusNoContent)
}

// Renew copies the claims of the current token into a fresh one. The store
// is not consulted so role changes wait for the next login.
func (a *AuthController) Renew(ctx router.Context) error {
	token, claims, err := a.Auth.Authority().Renew(ctx.Context(), a.Auth.RawToken(ctx))
	if err != nil {
		return a.fail(ctx, err)
	}

	a.Auth.SetSessionCookie(ctx, token)

	return ctx.JSON(http.StatusOK, router.ViewContext{
		"user":      claims.Identity(),
		"token":     token,
		"expiresAt": claims.Expires(),
	})
}

func (a *AuthController) Me(ctx router.Context) error {
	claims, ok := a.Auth.Claims(ctx)
	if !ok {
		return a.fail(ctx, ErrUnauthenticated)
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{
		"user":      claims.Identity(),
		"issuedAt":  claims.IssuedAt(),
		"expiresAt": claims.Expires(),
	})
}

// Session feeds verified signals to the reconciler and returns the decision
// plus the storage snapshot the browser should mirror
func (a *AuthController) Session(ctx router.Context) error {
	signals := reconcile.Signals{
		Framework: reconcile.FrameworkUnauthenticated,
		SiteAuth:  ctx.Cookies(SiteAuthCookie) == "true",
	}

	if claims, err := a.Auth.ClaimsFromCookie(ctx, SessionCookie); err == nil {
		signals.Framework = reconcile.FrameworkAuthenticated
		signals.FrameworkUser = reconcileUser(claims)
	} else if ctx.Cookies(SessionCookie) != "" {
		a.Logger.Debug("session cookie rejected", "error", err)
	}

	if claims, err := a.Auth.ClaimsFromCookie(ctx, DirectTokenCookie); err == nil {
		signals.DirectUser = reconcileUser(claims)
	}

	storage := reconcile.MapStorage{}
	decision, err := reconcile.New(storage, reconcile.WithLogger(a.Logger)).Reconcile(signals)
	if err != nil {
		return a.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{
		"decision": decision,
		"storage":  storage.Snapshot(),
	})
}

func reconcileUser(claims *SessionClaims) *reconcile.User {
	id := claims.Identity()
	return &reconcile.User{ID: id.ID, Email: id.Email, Name: id.Name, Role: id.Role}
}

type SitePasswordPayload struct {
	Password string `json:"password" form:"password"`
}

func (a *AuthController) SitePasswordPost(ctx router.Context) error {
	payload := new(SitePasswordPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.fail(ctx, errInvalidBody(err))
	}

	if err := a.SitePassword.Verify(payload.Password); err != nil {
		return a.fail(ctx, err)
	}

	a.Auth.setCookie(ctx, SiteAuthCookie, "true", DirectCookieTTL, false)
	return ctx.JSON(http.StatusOK, router.ViewContext{"success": true})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `json:"email" form:"email"`
}

func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) PasswordResetPost(ctx router.Context) error {
	payload := new(PasswordResetRequestPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.fail(ctx, errInvalidBody(err))
	}

	if err := payload.Validate(); err != nil {
		return a.fail(ctx, NewValidationError(err))
	}

	var res *InitializePasswordResetResponse
	handler := NewInitializePasswordResetHandler(a.Repo).
		WithLogger(a.Logger).
		WithActivitySink(a.Activity)

	err := handler.Execute(ctx.Context(), InitializePasswordResetMessage{
		Email: payload.Email,
		OnResponse: func(resp *InitializePasswordResetResponse) {
			res = resp
		},
	})
	if err != nil {
		return a.fail(ctx, err)
	}

	if a.Debug {
		a.Logger.Debug("password reset initialized", "response", print.MaybePrettyJSON(res))
	}

	return ctx.JSON(http.StatusAccepted, router.ViewContext{
		"success": res != nil && res.Success,
		"message": "If the account exists a reset link has been sent",
	})
}

func (a *AuthController) PasswordResetCheck(ctx router.Context) error {
	status, err := CheckPasswordReset(ctx.Context(), a.Repo, ctx.Param("uuid", ""))
	if err != nil {
		return a.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, status)
}

// PasswordResetVerifyPayload holds the new password
type PasswordResetVerifyPayload struct {
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirmPassword" form:"confirm_password"`
}

func (r PasswordResetVerifyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) PasswordResetExecute(ctx router.Context) error {
	payload := new(PasswordResetVerifyPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.fail(ctx, errInvalidBody(err))
	}

	if err := payload.Validate(); err != nil {
		return a.fail(ctx, NewValidationError(err))
	}

	handler := NewFinalizePasswordResetHandler(a.Repo).
		WithLogger(a.Logger).
		WithActivitySink(a.Activity)

	err := handler.Execute(ctx.Context(), FinalizePasswordResetMessage{
		Session:  ctx.Param("uuid", ""),
		Password: payload.Password,
	})
	if err != nil {
		return a.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{
		"success":   true,
		"changedAt": time.Now(),
	})
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}
