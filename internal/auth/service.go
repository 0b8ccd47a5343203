package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"foresight/internal/redis"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers malformed, expired, and revoked tokens.
var ErrInvalidToken = errors.New("invalid token")

const (
	revokedTokenKey = "auth:revoked:%s"
	revokedUserKey  = "auth:revoked_user:%s"
)

// Service issues, validates, and revokes user authentication tokens.
// Tokens are HS256 JWTs signed with the identity credential; revocations live
// in redis when configured and in process memory otherwise.
type Service struct {
	secret         []byte
	tokenTTL       time.Duration
	rdb            *redis.Client
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
	now            func() time.Time

	mu           sync.Mutex
	revoked      map[string]time.Time
	revokedUsers map[string]time.Time
}

// NewService constructs an auth service with the supplied token lifetime.
func NewService(secret []byte, rdb *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		secret:         secret,
		tokenTTL:       ttl,
		rdb:            rdb,
		cookieName:     "auth_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
		now:            time.Now,
		revoked:        make(map[string]time.Time),
		revokedUsers:   make(map[string]time.Time),
	}
}

// IssueToken signs a new token for the user.
func (s *Service) IssueToken(_ context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("invalid user id")
	}
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *Service) parse(authToken string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(authToken, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// ValidateToken verifies signature, expiry and revocation, returning the user id.
func (s *Service) ValidateToken(ctx context.Context, authToken string) (string, error) {
	if authToken == "" {
		return "", fmt.Errorf("%w: token required", ErrInvalidToken)
	}
	claims, err := s.parse(authToken)
	if err != nil {
		return "", err
	}
	revoked, err := s.isRevoked(ctx, claims)
	if err != nil {
		return "", fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return "", fmt.Errorf("%w: revoked", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// RevokeToken denies a single token until it would have expired anyway.
func (s *Service) RevokeToken(ctx context.Context, authToken string) error {
	if authToken == "" {
		return nil
	}
	claims, err := s.parse(authToken)
	if err != nil {
		// already unusable
		return nil
	}
	expires := claims.ExpiresAt.Time
	if s.rdb != nil {
		ttl := expires.Sub(s.now())
		if ttl <= 0 {
			return nil
		}
		if err := s.rdb.Set(ctx, fmt.Sprintf(revokedTokenKey, claims.ID), "1", ttl); err != nil {
			return fmt.Errorf("revoke token: %w", err)
		}
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[claims.ID] = expires
	s.pruneLocked()
	return nil
}

// RevokeUserTokens invalidates every token issued to the user up to now.
func (s *Service) RevokeUserTokens(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	now := s.now().UTC()
	if s.rdb != nil {
		if err := s.rdb.Set(ctx, fmt.Sprintf(revokedUserKey, userID), strconv.FormatInt(now.Unix(), 10), s.tokenTTL); err != nil {
			return fmt.Errorf("revoke user tokens: %w", err)
		}
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokedUsers[userID] = now
	return nil
}

func (s *Service) isRevoked(ctx context.Context, claims *jwt.RegisteredClaims) (bool, error) {
	var issued time.Time
	if claims.IssuedAt != nil {
		issued = claims.IssuedAt.Time
	}
	if s.rdb != nil {
		hit, err := s.rdb.Exists(ctx, fmt.Sprintf(revokedTokenKey, claims.ID))
		if err != nil || hit {
			return hit, err
		}
		raw, err := s.rdb.Get(ctx, fmt.Sprintf(revokedUserKey, claims.Subject))
		if errors.Is(err, redis.ErrCacheMiss) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		cutoff, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return false, nil
		}
		return !issued.After(time.Unix(cutoff, 0)), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revoked[claims.ID]; ok {
		return true, nil
	}
	if cutoff, ok := s.revokedUsers[claims.Subject]; ok {
		return !issued.After(cutoff.Truncate(time.Second)), nil
	}
	return false, nil
}

// pruneLocked drops deny-list entries whose tokens have expired.
func (s *Service) pruneLocked() {
	now := s.now()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
}

// AuthCookieName returns the cookie name storing auth tokens.
func (s *Service) AuthCookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

// TokenTTL reports the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}
