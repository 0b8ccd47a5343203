package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"foresight/internal/config"
	"foresight/internal/redis"

	"github.com/gin-gonic/gin"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestAuthIssueValidateRevoke(t *testing.T) {
	svc := NewService(testSecret, nil, time.Hour)
	ctx := context.Background()
	token, err := svc.IssueToken(ctx, "01HUSER")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}
	userID, err := svc.ValidateToken(ctx, token)
	if err != nil || userID != "01HUSER" {
		t.Fatalf("ValidateToken failed: id=%s err=%v", userID, err)
	}
	if err := svc.RevokeToken(ctx, token); err != nil {
		t.Fatalf("RevokeToken error: %v", err)
	}
	if _, err := svc.ValidateToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after revoke, got %v", err)
	}

	token2, err := svc.IssueToken(ctx, "01HUSER")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if err := svc.RevokeUserTokens(ctx, "01HUSER"); err != nil {
		t.Fatalf("RevokeUserTokens error: %v", err)
	}
	if _, err := svc.ValidateToken(ctx, token2); err == nil {
		t.Fatalf("expected error after revoke all")
	}
}

func TestAuthValidateExpiredToken(t *testing.T) {
	svc := NewService(testSecret, nil, time.Minute)
	token, err := svc.IssueToken(context.Background(), "u2")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expiration error, got %v", err)
	}
}

func TestAuthRejectsForeignSignature(t *testing.T) {
	other := NewService([]byte("another-secret-another-secret!!"), nil, time.Hour)
	token, err := other.IssueToken(context.Background(), "u3")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	svc := NewService(testSecret, nil, time.Hour)
	if _, err := svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature error, got %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestMiddlewareAcceptsHeaderAndCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService(testSecret, nil, time.Hour)
	token, _ := svc.IssueToken(context.Background(), "u4")

	r := gin.New()
	r.GET("/me", svc.Middleware(), func(c *gin.Context) {
		id, _ := UserIDFromContext(c)
		c.String(http.StatusOK, id)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "u4" {
		t.Fatalf("header auth: %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: svc.AuthCookieName(), Value: token})
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie auth: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBearerMiddlewareIgnoresCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService(testSecret, nil, time.Hour)
	token, _ := svc.IssueToken(context.Background(), "u5")

	r := gin.New()
	r.POST("/upload", svc.BearerMiddleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	req.AddCookie(&http.Cookie{Name: svc.AuthCookieName(), Value: token})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", rec.Code)
	}
	if rec.Body.String() != `{"message":"Missing or invalid auth header"}` {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestCSRFMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService(testSecret, nil, time.Hour)
	r := gin.New()
	r.Use(svc.CSRFMiddleware())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without tokens, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.AddCookie(&http.Cookie{Name: svc.CSRFCookieName(), Value: "abc"})
	req.Header.Set(svc.CSRFHeaderName(), "abc")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected matching tokens to pass, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected bearer request to skip csrf, got %d", rec.Code)
	}
}

func TestAuthRevocationUsesRedis(t *testing.T) {
	cacheClient, cleanup := newRedisCacheClient(t)
	defer cleanup()

	svc := NewService(testSecret, cacheClient, time.Hour)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, "u10")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if err := svc.RevokeToken(ctx, token); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	claims, _ := svc.parse(token)
	ttl, err := cacheClient.TTL(ctx, "auth:revoked:"+claims.ID)
	if err != nil || ttl <= 0 {
		t.Fatalf("expected revocation key with ttl, got %v err=%v", ttl, err)
	}
	// a second service sharing redis sees the revocation
	peer := NewService(testSecret, cacheClient, time.Hour)
	if _, err := peer.ValidateToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked token on peer, got %v", err)
	}
}

func newRedisCacheClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed auth tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Host: host,
			Port: port,
			DB:   db,
		},
	}
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if raw := client.Raw(); raw != nil {
		if err := raw.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flush db: %v", err)
		}
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup
}
