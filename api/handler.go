// Package api exposes the session core over HTTP with echo.
//
// The server owns one session.Controller, so the surface behaves like a
// backend-for-frontend of a single client: login and logout drive the
// controller, and every read reflects its current snapshot.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/getkayan/mentorship/core/audit"
	"github.com/getkayan/mentorship/core/flow"
	"github.com/getkayan/mentorship/core/guard"
	"github.com/getkayan/mentorship/core/health"
	"github.com/getkayan/mentorship/core/identity"
	"github.com/getkayan/mentorship/core/logger"
	"github.com/getkayan/mentorship/core/profile"
	"github.com/getkayan/mentorship/core/provider"
	"github.com/getkayan/mentorship/core/session"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Session is the part of *session.Controller the handlers use.
type Session interface {
	Login(ctx context.Context, email, password string) error
	Logout(ctx context.Context) error
	Snapshot() session.Snapshot
	OnChange(fn func(session.Snapshot)) func()
}

// Accounts is implemented by providers that manage accounts themselves
// (provider.Local). Without it sign-up and password reset answer 501.
type Accounts interface {
	SignUp(ctx context.Context, email, password string) (string, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	CompletePasswordReset(ctx context.Context, token, password string) error
}

// Provisioner creates the profile of a new account with the role picked at
// sign-up. It is satisfied by *profile.Resolver.
type Provisioner interface {
	Provision(ctx context.Context, principalID, email string, role profile.Role) (*profile.Profile, error)
}

type Handler struct {
	session    Session
	authorizer *guard.Authorizer
	accounts   Accounts
	provision  Provisioner
	audit      audit.AuditStore
	health     *health.Manager
	metrics    http.Handler
	log        *zap.Logger

	heartbeat time.Duration
}

type Option func(*Handler)

func WithAccounts(a Accounts) Option {
	return func(h *Handler) { h.accounts = a }
}

// WithProvisioner lets sign-up requests carry a self-service role.
func WithProvisioner(p Provisioner) Option {
	return func(h *Handler) { h.provision = p }
}

func WithAuditStore(s audit.AuditStore) Option {
	return func(h *Handler) { h.audit = s }
}

func WithHealth(m *health.Manager) Option {
	return func(h *Handler) { h.health = m }
}

// WithMetrics mounts a Prometheus scrape handler at /metrics.
func WithMetrics(handler http.Handler) Option {
	return func(h *Handler) { h.metrics = handler }
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// WithHeartbeat sets the comment interval of the event stream.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Handler) { h.heartbeat = d }
}

func NewHandler(s Session, authorizer *guard.Authorizer, opts ...Option) *Handler {
	h := &Handler{
		session:    s,
		authorizer: authorizer,
		heartbeat:  15 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.Named("api")
	}
	return h
}

// RegisterRoutes mounts the API under g and the health and metrics
// endpoints on e.
func (h *Handler) RegisterRoutes(e *echo.Echo, g *echo.Group) {
	g.POST("/login", h.HandleLogin)
	g.POST("/logout", h.HandleLogout)
	g.GET("/session", h.HandleSession)
	g.GET("/session/events", h.HandleEvents)
	g.GET("/authorize", h.HandleAuthorize)
	g.POST("/signup", h.HandleSignUp)
	g.POST("/password/reset", h.HandlePasswordReset)
	g.POST("/password/reset/complete", h.HandlePasswordResetComplete)
	g.GET("/audit", h.HandleAudit)

	if h.health != nil {
		e.GET("/healthz", echo.WrapHandler(h.health.LiveHandler()))
		e.GET("/ready", echo.WrapHandler(h.health.ReadyHandler()))
		e.GET("/health", echo.WrapHandler(h.health.FullHandler()))
	}
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics))
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin signs in and answers with the snapshot at that moment, which
// is usually still resolving the profile.
func (h *Handler) HandleLogin(c echo.Context) error {
	var body credentials
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}
	if body.Email == "" || body.Password == "" {
		return h.Error(c, http.StatusBadRequest, "Email and password are required", nil)
	}

	if err := h.session.Login(c.Request().Context(), body.Email, body.Password); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.session.Snapshot())
}

func (h *Handler) HandleLogout(c echo.Context) error {
	if err := h.session.Logout(c.Request().Context()); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.session.Snapshot())
}

func (h *Handler) HandleSession(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session.Snapshot())
}

// HandleEvents streams snapshots as server-sent events: the current one
// first, then every transition. Snapshots never go backwards in Version.
func (h *Handler) HandleEvents(c echo.Context) error {
	updates := make(chan session.Snapshot, 1)
	unsubscribe := h.session.OnChange(func(s session.Snapshot) {
		// keep only the newest snapshot for a slow reader
		select {
		case <-updates:
		default:
		}
		updates <- s
	})
	defer unsubscribe()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	// A queued notification may repeat the initial snapshot.
	var (
		last uint64
		sent bool
	)
	send := func(s session.Snapshot) error {
		if sent && s.Version <= last {
			return nil
		}
		last, sent = s.Version, true
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(res, "event: session\nid: %d\ndata: %s\n\n", s.Version, data); err != nil {
			return err
		}
		res.Flush()
		return nil
	}

	if err := send(h.session.Snapshot()); err != nil {
		return nil
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-updates:
			if err := send(s); err != nil {
				h.log.Debug("event stream closed", zap.Error(err))
				return nil
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

type authorizeResponse struct {
	guard.Decision
	Path    string         `json:"path"`
	Status  session.Status `json:"status"`
	Role    string         `json:"role,omitempty"`
	Version uint64         `json:"version"`
}

func (h *Handler) HandleAuthorize(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return h.Error(c, http.StatusBadRequest, "Query parameter path is required", nil)
	}

	d, s := h.authorizer.Authorize(c.Request().Context(), path)
	resp := authorizeResponse{
		Decision: d,
		Path:     guard.Normalize(path),
		Status:   s.Status,
		Version:  s.Version,
	}
	if role, ok := s.Role(); ok {
		resp.Role = string(role)
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleSignUp registers an account. An optional role provisions the profile
// immediately; without one the default role applies at first login.
func (h *Handler) HandleSignUp(c echo.Context) error {
	if h.accounts == nil {
		return h.Error(c, http.StatusNotImplemented, "Sign-up is handled by the identity provider", nil)
	}
	var body struct {
		credentials
		Role string `json:"role"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}

	var role profile.Role
	if body.Role != "" {
		parsed, err := profile.ParseRole(body.Role)
		if err != nil || !parsed.SelfService() {
			return h.Error(c, http.StatusBadRequest, fmt.Sprintf("Role %q cannot be chosen at sign-up", body.Role), err)
		}
		if h.provision == nil {
			return h.Error(c, http.StatusNotImplemented, "Role selection is not enabled", nil)
		}
		role = parsed
	}

	ctx := c.Request().Context()
	id, err := h.accounts.SignUp(ctx, body.Email, body.Password)
	if err != nil {
		return h.fail(c, err)
	}
	resp := map[string]any{"principal_id": id}
	if role == "" {
		return c.JSON(http.StatusCreated, resp)
	}

	// The account exists at this point. A failed provisioning leaves the
	// default role to be assigned at first login.
	p, err := h.provision.Provision(ctx, id, body.Email, role)
	if err != nil {
		h.log.Warn("profile provisioning failed", zap.String("principal_id", id), zap.Error(err))
		resp["profile_provisioned"] = false
		return c.JSON(http.StatusCreated, resp)
	}
	if h.audit != nil {
		meta, _ := identity.NewJSON(map[string]string{"role": string(p.Role), "source": "signup"})
		event := audit.NewEvent(audit.EventProfileProvisioned).
			Actor(id).
			Subject(id).
			Metadata(meta).
			Success()
		if err := event.Save(ctx, h.audit); err != nil {
			h.log.Warn("audit save failed", zap.Error(err))
		}
	}
	resp["profile_provisioned"] = true
	resp["role"] = p.Role
	return c.JSON(http.StatusCreated, resp)
}

// HandlePasswordReset always answers 202 so the response does not reveal
// whether an account exists. The token is delivered out of band.
func (h *Handler) HandlePasswordReset(c echo.Context) error {
	if h.accounts == nil {
		return h.Error(c, http.StatusNotImplemented, "Password reset is handled by the identity provider", nil)
	}
	var body struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}

	if _, err := h.accounts.RequestPasswordReset(c.Request().Context(), body.Email); err != nil {
		h.log.Warn("password reset request failed", zap.Error(err))
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "requested"})
}

func (h *Handler) HandlePasswordResetComplete(c echo.Context) error {
	if h.accounts == nil {
		return h.Error(c, http.StatusNotImplemented, "Password reset is handled by the identity provider", nil)
	}
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}

	if err := h.accounts.CompletePasswordReset(c.Request().Context(), body.Token, body.Password); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}

// HandleAudit lists audit events, newest first. Query parameters: actor,
// subject, type, status, since (RFC 3339), limit.
func (h *Handler) HandleAudit(c echo.Context) error {
	if h.audit == nil {
		return h.Error(c, http.StatusNotImplemented, "Audit trail is disabled", nil)
	}

	f := audit.Filter{
		ActorID:   c.QueryParam("actor"),
		SubjectID: c.QueryParam("subject"),
		Limit:     100,
	}
	if v := c.QueryParam("type"); v != "" {
		f.Types = []string{v}
	}
	if v := c.QueryParam("status"); v != "" {
		f.Statuses = []string{v}
	}
	if v := c.QueryParam("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return h.Error(c, http.StatusBadRequest, "Invalid since", err)
		}
		f.StartTime = t
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return h.Error(c, http.StatusBadRequest, "Invalid limit", err)
		}
		f.Limit = n
	}

	events, err := h.audit.Query(c.Request().Context(), f)
	if err != nil {
		return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"events": events})
}

// fail maps core errors to status codes.
func (h *Handler) fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials), errors.Is(err, provider.ErrInvalidCredentials):
		return h.Error(c, http.StatusUnauthorized, "Invalid email or password", nil)
	case errors.Is(err, session.ErrTimeout):
		return h.Error(c, http.StatusGatewayTimeout, "Login timed out, try again", nil)
	case errors.Is(err, provider.ErrAccountExists):
		return h.Error(c, http.StatusConflict, "Account already exists", nil)
	case errors.Is(err, flow.ErrInvalidInput):
		return h.Error(c, http.StatusBadRequest, "Invalid input", err)
	case errors.Is(err, provider.ErrInvalidResetToken):
		return h.Error(c, http.StatusBadRequest, "Invalid or expired reset token", nil)
	case errors.Is(err, provider.ErrProviderUnavailable):
		return h.Error(c, http.StatusServiceUnavailable, "Identity provider unavailable", err)
	default:
		h.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
	}
}

// Error writes the JSON error body used by every handler.
func (h *Handler) Error(c echo.Context, code int, message string, err error) error {
	resp := map[string]any{
		"status": message,
		"code":   code,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	return c.JSON(code, resp)
}
