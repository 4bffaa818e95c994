package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/veridianhq/idverify/internal/auth/domain"
	"github.com/veridianhq/idverify/internal/auth/service"
	"github.com/veridianhq/idverify/internal/auth/store"
	"github.com/veridianhq/idverify/pkg/httpx"
	"github.com/veridianhq/idverify/pkg/jwtx"
	"github.com/veridianhq/idverify/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	codec        *jwtx.Codec
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store             store.Store
	AuthService       *service.AuthService
	UserService       *service.UserService
	MFAService        *service.MFAService
	RevocationService *service.RevocationService
	AuditService      *service.AuditService
}

func NewRouter(
	codec *jwtx.Codec,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		codec:        codec,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		remoteAddrMiddleware,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerMFA()
	r.registerAccount()
	r.registerUsers()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// remoteAddrMiddleware tags the request context with the client address so
// audit events recorded deeper in the stack can carry it.
func remoteAddrMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := service.ContextWithRemoteAddr(req.Context(), req.RemoteAddr)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func (r *Router) registerAuth() {
	// POST /auth/register - strict rate limit by IP (public signup endpoint)
	registerHandler := &RegisterHandler{AuthService: r.AuthService}
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(registerHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /auth/login - strict rate limit by IP (authentication attempts)
	loginHandler := &LoginHandler{AuthService: r.AuthService}
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(loginHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /auth/mfa/complete - strict rate limit by IP (code guessing)
	completeHandler := &MFACompleteHandler{AuthService: r.AuthService}
	r.Mux.Handle("POST /v1/auth/mfa/complete",
		httpx.Chain(completeHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /auth/refresh - moderate rate limit by IP
	refreshHandler := &RefreshHandler{AuthService: r.AuthService}
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(refreshHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /auth/logout - authenticated, lenient limit by user
	logoutHandler := &LogoutHandler{AuthService: r.AuthService}
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(logoutHandler,
			httpx.AuthnMiddleware(r.codec, r.RevocationService),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{
		AuthService:  r.AuthService,
		MFAService:   r.MFAService,
		AuditService: r.AuditService,
	}

	// Enrollment endpoints accept pre-auth tokens: an admin whose role
	// mandates MFA has nothing stronger until enrollment completes.

	// POST /mfa/totp/enroll - moderate rate limit by user
	securedEnroll := httpx.Chain(http.HandlerFunc(h.HandleEnroll),
		httpx.AuthnAllowPreAuth(r.codec, r.RevocationService),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)

	// POST /mfa/totp/verify - strict rate limit by user (prevent brute force of TOTP codes)
	securedVerify := httpx.Chain(http.HandlerFunc(h.HandleVerify),
		httpx.AuthnAllowPreAuth(r.codec, r.RevocationService),
		httpx.RateLimitByUser(httpx.StrictLimit),
	)

	// POST /mfa/backup-codes - moderate rate limit by user
	securedRegenerate := httpx.Chain(http.HandlerFunc(h.HandleRegenerateBackupCodes),
		httpx.AuthnMiddleware(r.codec, r.RevocationService),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)

	// DELETE /mfa/totp - moderate rate limit by user
	securedRemove := httpx.Chain(http.HandlerFunc(h.HandleRemove),
		httpx.AuthnMiddleware(r.codec, r.RevocationService),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)

	// POST /mfa/challenge - strict rate limit by user (step-up code attempts)
	securedChallenge := httpx.Chain(http.HandlerFunc(h.HandleStepUpChallenge),
		httpx.AuthnMiddleware(r.codec, r.RevocationService),
		httpx.RateLimitByUser(httpx.StrictLimit),
	)

	r.Mux.Handle("POST /v1/mfa/totp/enroll", securedEnroll)
	r.Mux.Handle("POST /v1/mfa/totp/verify", securedVerify)
	r.Mux.Handle("POST /v1/mfa/backup-codes", securedRegenerate)
	r.Mux.Handle("DELETE /v1/mfa/totp", securedRemove)
	r.Mux.Handle("POST /v1/mfa/challenge", securedChallenge)
}

func (r *Router) registerAccount() {
	h := &AccountHandler{
		AuthService:  r.AuthService,
		AuditService: r.AuditService,
	}

	// Password change and deletion demand a fresh MFA proof from users who
	// have MFA, on top of the password re-entry the handlers require.

	// POST /account/password - strict rate limit by user (password attempts)
	securedPassword := httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
		httpx.AuthnMiddleware(r.codec, r.RevocationService),
		httpx.RateLimitByUser(httpx.StrictLimit),
		requireFreshMFA(r.AuthService),
	)

	// DELETE /account - strict rate limit by user
	securedDelete := httpx.Chain(http.HandlerFunc(h.HandleDelete),
		httpx.AuthnMiddleware(r.codec, r.RevocationService),
		httpx.RateLimitByUser(httpx.StrictLimit),
		requireFreshMFA(r.AuthService),
	)

	// GET /account/activity - lenient rate limit by user
	securedActivity := httpx.Chain(http.HandlerFunc(h.HandleActivity),
		httpx.AuthnMiddleware(r.codec, r.RevocationService),
		httpx.RateLimitByUser(httpx.LenientLimit),
	)

	r.Mux.Handle("POST /v1/account/password", securedPassword)
	r.Mux.Handle("DELETE /v1/account", securedDelete)
	r.Mux.Handle("GET /v1/account/activity", securedActivity)
}

func (r *Router) registerUsers() {
	h := &UserInfoHandler{UserService: r.UserService}

	// Authenticated endpoint - lenient rate limit by user
	secured := httpx.Chain(h,
		httpx.AuthnMiddleware(r.codec, r.RevocationService),
		httpx.RateLimitByUser(httpx.LenientLimit),
	)

	r.Mux.Handle("GET /v1/userinfo", secured)

	admin := &AdminHandler{UserService: r.UserService}

	// PATCH /admin/users/{id}/role - admin only, moderate rate limit by user
	securedSetRole := httpx.Chain(http.HandlerFunc(admin.HandleSetRole),
		httpx.AuthnMiddleware(r.codec, r.RevocationService),
		httpx.RequireAnyRole(string(domain.RoleAdmin)),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)

	r.Mux.Handle("PATCH /v1/admin/users/{id}/role", securedSetRole)
}

func (r *Router) registerSystem() {
	// Health check endpoints - public rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}
