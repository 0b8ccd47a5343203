package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"foresight/internal/appstate"
	"foresight/internal/auth"
	"foresight/internal/dashboard"
	"foresight/internal/models"
	"foresight/internal/objectstore"
	"foresight/internal/service/account"
	"foresight/internal/service/analysis"
)

// DashboardAPI is the remote analysis backend the proxy routes forward to.
type DashboardAPI interface {
	History(ctx context.Context, gcsKey string) (json.RawMessage, error)
	SendMessage(ctx context.Context, gcsKey, message string) (json.RawMessage, error)
	GenerateSummary(ctx context.Context, path string, mode dashboard.Mode) (*models.Dashboard, error)
}

// SessionReader serves the read side of the session routes.
type SessionReader interface {
	List(ctx context.Context, userID string) ([]models.Session, error)
	Get(ctx context.Context, userID, sessionID string) (*models.Session, error)
}

// SessionFeed pushes session list changes to live subscribers.
type SessionFeed interface {
	Subscribe(userID string, onUpdate func([]models.Session)) func()
}

// Deps collects everything the handlers need.
type Deps struct {
	Accounts  *account.Service
	Auth      *auth.Service
	Analysis  *analysis.Service
	Dashboard DashboardAPI
	Sessions  SessionReader
	Feed      SessionFeed
	States    *appstate.Registry
	Objects   objectstore.Store
	// MaxUploadBytes caps multipart bodies on the upload routes.
	MaxUploadBytes int64
	// PingInterval is the SSE heartbeat period; zero means 15s.
	PingInterval time.Duration
}

// Handler wires HTTP routes to the account, session and analysis services.
type Handler struct {
	accounts  *account.Service
	auth      *auth.Service
	analysis  *analysis.Service
	dashboard DashboardAPI
	sessions  SessionReader
	feed      SessionFeed
	states    *appstate.Registry
	objects   objectstore.Store
	maxUpload int64
	ping      time.Duration
}

const (
	defaultMaxUpload    = 32 << 20
	defaultPingInterval = 15 * time.Second
)

// NewHandler constructs a Handler instance.
func NewHandler(d Deps) *Handler {
	h := &Handler{
		accounts:  d.Accounts,
		auth:      d.Auth,
		analysis:  d.Analysis,
		dashboard: d.Dashboard,
		sessions:  d.Sessions,
		feed:      d.Feed,
		states:    d.States,
		objects:   d.Objects,
		maxUpload: d.MaxUploadBytes,
		ping:      d.PingInterval,
	}
	if h.maxUpload <= 0 {
		h.maxUpload = defaultMaxUpload
	}
	if h.ping <= 0 {
		h.ping = defaultPingInterval
	}
	return h
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")

	// Dashboard API proxy.
	api.GET("/chat/history", h.chatHistory)
	api.POST("/chat/message", h.chatMessage)
	api.GET("/dashboard", h.dashboardData)
	api.GET("/get-signed-url", h.signedURL)

	api.POST("/upload", h.limitBody(), h.auth.BearerMiddleware(), h.upload)

	api.POST("/users/register", h.registerUser)
	api.POST("/users/login", h.loginUser)

	authMW := h.auth.Middleware()
	csrf := h.auth.CSRFMiddleware()

	userRoutes := api.Group("/users")
	userRoutes.Use(authMW, csrf)
	userRoutes.POST("/logout", h.logoutUser)
	userRoutes.GET("/me", h.currentUser)
	userRoutes.DELETE("/me", h.deleteUser)

	sessionRoutes := api.Group("/sessions")
	sessionRoutes.Use(authMW, csrf)
	sessionRoutes.GET("", h.listSessions)
	sessionRoutes.GET("/stream", h.streamSessions)
	sessionRoutes.GET("/:session_id", h.getSession)
	sessionRoutes.DELETE("/:session_id", h.deleteSession)
	sessionRoutes.POST("/:session_id/select", h.selectSession)

	api.POST("/analysis", h.limitBody(), authMW, csrf, h.submitAnalysis)

	if local, ok := h.objects.(*objectstore.LocalStore); ok {
		api.GET("/files/*key", h.serveLocalFile(local))
	}

	h.registerPages(router)
}

func (h *Handler) authorizedUserID(c *gin.Context) (string, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return "", false
	}
	return userID, true
}

// state returns the user's application state store, or nil when none is kept.
func (h *Handler) state(userID string) *appstate.Store {
	if h.states == nil {
		return nil
	}
	return h.states.Get(userID)
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
