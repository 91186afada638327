package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	goIAM "github.com/MrEthical07/goIAM"
	"github.com/MrEthical07/goIAM/account"
	"github.com/MrEthical07/goIAM/internal/logging"
)

// Service is the goIAM surface the handlers call. *goIAM.Engine satisfies it.
type Service interface {
	Register(ctx context.Context, in goIAM.RegisterInput, baseURL string) error
	ConfirmEmail(ctx context.Context, token string) error
	Login(ctx context.Context, in goIAM.LoginInput) (goIAM.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (goIAM.TokenPair, error)
	VerifyAccess(ctx context.Context, accessToken string) (goIAM.ActiveUser, error)
	Logout(ctx context.Context, user goIAM.ActiveUser) error
	GetMe(ctx context.Context, user goIAM.ActiveUser) (goIAM.Profile, error)
	UpdateDetails(ctx context.Context, user goIAM.ActiveUser, in goIAM.UpdateDetailsInput) error
	UpdatePassword(ctx context.Context, user goIAM.ActiveUser, current, next string) error
	ForgotPassword(ctx context.Context, email, baseURL string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	GenerateTOTP(ctx context.Context, user goIAM.ActiveUser) (goIAM.TOTPProvision, error)
	Ping(ctx context.Context) error
}

var _ Service = (*goIAM.Engine)(nil)

// errUntrustedHost rejects link-building requests whose Host is not allowed.
var errUntrustedHost = errors.New("untrusted host")

// Options controls which request headers the handler believes.
type Options struct {
	// PublicBaseURL is the origin mailed links are built on. When set the
	// request's Host and X-Forwarded-Proto are ignored.
	PublicBaseURL string

	// AllowedHosts lists the Host values links may be built from when
	// PublicBaseURL is empty. With neither set, register and
	// forgotpassword are rejected.
	AllowedHosts []string

	// TrustedProxies are the CIDRs or IPs whose X-Forwarded-For and
	// X-Forwarded-Proto headers are honoured. Empty trusts no proxy, so the
	// client IP is the connection's remote address.
	TrustedProxies []string
}

// Handler serves the authentication API over gin.
type Handler struct {
	svc           Service
	logger        *slog.Logger
	opts          Options
	healthTimeout time.Duration
}

// New returns a Handler. A nil logger discards output.
func New(svc Service, logger *slog.Logger, opts Options) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	hosts := make([]string, 0, len(opts.AllowedHosts))
	for _, host := range opts.AllowedHosts {
		hosts = append(hosts, strings.ToLower(strings.TrimSpace(host)))
	}
	opts.AllowedHosts = hosts
	return &Handler{svc: svc, logger: logger, opts: opts, healthTimeout: 2 * time.Second}
}

// RegisterRoutes mounts /healthz, /api/v1/auth/* and /api/v1/users on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", h.Health)

	api := r.Group("/api/v1", h.clientIP)

	auth := api.Group("/auth")
	auth.POST("/register", h.Register)
	auth.GET("/confirmemail", h.ConfirmEmail)
	auth.POST("/login", h.Login)
	auth.POST("/forgotpassword", h.ForgotPassword)
	auth.PATCH("/resetpassword/:resetToken", h.ResetPassword)
	auth.POST("/refresh-token", h.Refresh)

	bearer := auth.Group("", h.Authenticate)
	bearer.GET("/me", h.Me)
	bearer.PATCH("/updatepassword", h.UpdatePassword)
	bearer.PATCH("/updatedetails", h.UpdateDetails)
	bearer.POST("/2fa/generate", h.GenerateTOTP)
	bearer.POST("/logout", h.Logout)

	users := api.Group("/users", h.Authenticate, RequireRole(string(account.RoleAdmin)))
	users.GET("", h.CheckAuthorization)
}

// NewRouter builds a gin engine with recovery and the API mounted. Only
// opts.TrustedProxies may set the client IP through forwarding headers.
func NewRouter(svc Service, logger *slog.Logger, opts Options) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	New(svc, logger, opts).RegisterRoutes(r)
	return r, nil
}

func (h *Handler) clientIP(c *gin.Context) {
	c.Request = c.Request.WithContext(goIAM.WithClientIP(c.Request.Context(), c.ClientIP()))
	c.Next()
}

// Health pings the engine's backends.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.healthTimeout)
	defer cancel()

	if err := h.svc.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "health check failed", logging.Err(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// baseURL is the origin mailed links are built on: PublicBaseURL when set,
// otherwise the request's scheme and an allowed Host.
func (h *Handler) baseURL(c *gin.Context) (string, error) {
	if h.opts.PublicBaseURL != "" {
		return h.opts.PublicBaseURL, nil
	}

	host := strings.ToLower(c.Request.Host)
	if !slices.Contains(h.opts.AllowedHosts, host) {
		return "", errUntrustedHost
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if len(h.opts.TrustedProxies) > 0 && c.ClientIP() != c.RemoteIP() {
		if proto := c.GetHeader("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}
	}
	return scheme + "://" + host, nil
}
