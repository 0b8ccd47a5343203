package objectstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LocalFilesPrefix is the route prefix that serves LocalStore links.
const LocalFilesPrefix = "/api/files/"

// ErrInvalidSignature is returned for tampered or expired local links.
var ErrInvalidSignature = errors.New("invalid or expired signature")

// LocalStore writes objects below a directory and signs links with HMAC-SHA256.
// It backs development setups without cloud credentials.
type LocalStore struct {
	root    string
	baseURL string
	secret  []byte
	now     func() time.Time
}

func NewLocalStore(root, baseURL string, secret []byte) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("local object store directory required")
	}
	if len(secret) == 0 {
		return nil, errors.New("local object store needs a signing secret")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create object store dir: %w", err)
	}
	return &LocalStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		now:     time.Now,
	}, nil
}

func (l *LocalStore) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

func (l *LocalStore) Put(_ context.Context, key string, data []byte, _ string) error {
	target, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644)
}

func (l *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	target, err := l.resolve(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (l *LocalStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := l.resolve(key); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	expires := l.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", l.sign(key, expires))
	return l.baseURL + LocalFilesPrefix + key + "?" + q.Encode(), nil
}

func (l *LocalStore) Delete(_ context.Context, key string) error {
	target, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Verify checks a link produced by SignedURL and returns the file path to serve.
func (l *LocalStore) Verify(key, expires, sig string) (string, error) {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || l.now().Unix() > exp {
		return "", ErrInvalidSignature
	}
	if !hmac.Equal([]byte(sig), []byte(l.sign(key, exp))) {
		return "", ErrInvalidSignature
	}
	target, err := l.resolve(key)
	if err != nil {
		return "", ErrInvalidSignature
	}
	if _, err := os.Stat(target); err != nil {
		return "", ErrNotFound
	}
	return target, nil
}

func (l *LocalStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, l.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{'|'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
