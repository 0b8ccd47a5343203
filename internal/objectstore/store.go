// Package objectstore stores uploaded pitch documents and hands out
// short-lived read-only links to them.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"foresight/internal/config"

	"golang.org/x/sync/errgroup"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// MaxFiles is the most documents one submission may carry.
const MaxFiles = 3

var (
	// ErrNoFiles is returned when an upload batch is empty.
	ErrNoFiles = errors.New("no files uploaded")
	// ErrTooManyFiles is returned when a batch carries more than MaxFiles documents.
	ErrTooManyFiles = fmt.Errorf("at most %d files per submission", MaxFiles)
	// ErrDuplicateFile is returned when two documents of a batch share an original name.
	ErrDuplicateFile = errors.New("duplicate file in submission")
)

// DefaultSignedURLTTL is how long a signed link stays valid.
const DefaultSignedURLTTL = 15 * time.Minute

// Store is the minimal object storage surface the service needs.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Upload is one file of a batch, read fully into memory.
type Upload struct {
	OriginalName string
	ContentType  string
	Data         []byte
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// ObjectName derives the stored file name: the sanitized startup name, the
// 1-based position in the session, and the original extension.
func ObjectName(startupName string, index int, originalName string) string {
	ext := filepath.Ext(originalName)
	return fmt.Sprintf("%s_%d%s", unsafeChars.ReplaceAllString(startupName, "_"), index+1, ext)
}

// ObjectPath joins the owner, session and name into a storage key.
func ObjectPath(userID, sessionID, name string) string {
	return path.Join(userID, sessionID, name)
}

// ValidateBatch checks the size of a submission and that no original name repeats.
func ValidateBatch(files []Upload) error {
	if len(files) == 0 {
		return ErrNoFiles
	}
	if len(files) > MaxFiles {
		return ErrTooManyFiles
	}
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if _, dup := seen[f.OriginalName]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateFile, f.OriginalName)
		}
		seen[f.OriginalName] = struct{}{}
	}
	return nil
}

// UploadAll stores every file of the batch concurrently and returns their
// keys in input order. offset is the number of files the session already
// holds, so a later batch never reuses an earlier key. The first failure
// cancels the remaining uploads.
func UploadAll(ctx context.Context, store Store, userID, sessionID, startupName string, offset int, files []Upload) ([]string, error) {
	if err := ValidateBatch(files); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	paths := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, file := range files {
		key := ObjectPath(userID, sessionID, ObjectName(startupName, offset+i, file.OriginalName))
		paths[i] = key
		g.Go(func() error {
			contentType := file.ContentType
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			if err := store.Put(gctx, key, file.Data, contentType); err != nil {
				return fmt.Errorf("upload %s: %w", file.OriginalName, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// New builds the store selected by cfg.ObjectStore.Driver.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	switch strings.ToLower(cfg.ObjectStore.Driver) {
	case "s3":
		return NewS3Store(ctx, cfg.ObjectStore)
	case "azure":
		return NewAzureStore(cfg.ObjectStore)
	case "local":
		secret, err := cfg.Identity.Secret()
		if err != nil {
			return nil, err
		}
		return NewLocalStore(cfg.ObjectStore.LocalDir, cfg.ObjectStore.PublicBaseURL, secret)
	default:
		return nil, fmt.Errorf("unsupported object store driver: %s", cfg.ObjectStore.Driver)
	}
}
