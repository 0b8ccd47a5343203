// Package analysis runs the upload → analyse → persist flow for a startup and
// keeps the user's application state in step with it.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"foresight/internal/appstate"
	"foresight/internal/dashboard"
	"foresight/internal/models"
	"foresight/internal/objectstore"

	"github.com/rs/zerolog/log"
)

var (
	ErrUnauthenticated = errors.New("user is not authenticated")
	ErrMissingSession  = errors.New("missing session id")
	ErrMissingName     = errors.New("missing startup name")
	ErrNoFiles         = objectstore.ErrNoFiles
	ErrTooManyFiles    = objectstore.ErrTooManyFiles
	ErrDuplicateFile   = objectstore.ErrDuplicateFile
)

// SessionStore is the persistence the flow needs.
type SessionStore interface {
	Create(ctx context.Context, userID string, data models.StartupData) (*models.Session, error)
	Get(ctx context.Context, userID, sessionID string) (*models.Session, error)
	AppendFiles(ctx context.Context, userID, sessionID string, files []models.FileDescriptor) (*models.Session, error)
	Complete(ctx context.Context, userID, sessionID string, analysis json.RawMessage) (*models.Session, error)
	Delete(ctx context.Context, userID, sessionID string) error
}

// Summarizer fetches an analysis from the Dashboard API.
type Summarizer interface {
	GenerateSummary(ctx context.Context, path string, mode dashboard.Mode) (*models.Dashboard, error)
}

// Queue runs summary calls on a shared pool.
type Queue interface {
	Submit(ctx context.Context, userID string, fn func(context.Context) error) error
	CancelUser(userID string)
}

// Result is the outcome of one submission or selection.
type Result struct {
	Session   *models.Session   `json:"session"`
	Dashboard *models.Dashboard `json:"dashboard"`
	Paths     []string          `json:"paths,omitempty"`
	Mode      dashboard.Mode    `json:"mode,omitempty"`
}

// FileLink is a session file with a short-lived download link ("#" when unavailable).
type FileLink struct {
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	Path         string `json:"path"`
	URL          string `json:"url"`
}

type Service struct {
	sessions  SessionStore
	objects   objectstore.Store
	dashboard Summarizer
	states    *appstate.Registry
	queue     Queue
	urlTTL    time.Duration
}

// NewService wires the flow. states may be nil when no UI state is kept.
func NewService(sessions SessionStore, objects objectstore.Store, summarizer Summarizer, states *appstate.Registry, urlTTL time.Duration) *Service {
	if urlTTL <= 0 {
		urlTTL = objectstore.DefaultSignedURLTTL
	}
	return &Service{
		sessions:  sessions,
		objects:   objects,
		dashboard: summarizer,
		states:    states,
		urlTTL:    urlTTL,
	}
}

// UseQueue routes Dashboard API summary calls through q instead of calling inline.
func (s *Service) UseQueue(q Queue) {
	s.queue = q
}

// CancelPending drops the user's summary calls still waiting in the queue.
func (s *Service) CancelPending(userID string) {
	if s.queue != nil {
		s.queue.CancelUser(userID)
	}
}

// RunQueued runs fn on the summary queue under owner, or inline when no queue is set.
func (s *Service) RunQueued(ctx context.Context, owner string, fn func(context.Context) error) error {
	if s.queue != nil {
		return s.queue.Submit(ctx, owner, fn)
	}
	return fn(ctx)
}

func (s *Service) dispatch(userID string, actions ...appstate.Action) {
	if s.states == nil || userID == "" {
		return
	}
	s.states.Get(userID).Dispatch(actions...)
}

// SubmitAnalysis creates or reuses the session for data.Name, uploads files,
// records them, and requests the analysis. It stops at the first failure and
// leaves whatever already succeeded in place.
func (s *Service) SubmitAnalysis(ctx context.Context, userID string, active *models.Session, data models.StartupData, files []objectstore.Upload) (*Result, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	data.Name = strings.TrimSpace(data.Name)
	logger := log.With().Str("user_id", userID).Str("startup", data.Name).Logger()
	if len(files) > 0 {
		if err := objectstore.ValidateBatch(files); err != nil {
			return nil, err
		}
	}

	session := active
	if session == nil || session.Name != data.Name {
		created, err := s.sessions.Create(ctx, userID, data)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		session = created
		logger.Info().Str("session_id", session.ID).Msg("session created")
	} else if len(files) > 0 && session.ID != "" {
		// the caller's copy may predate files added since; numbering follows the stored list
		current, err := s.sessions.Get(ctx, userID, session.ID)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		session = current
	}
	s.dispatch(userID, appstate.SessionSelected{Session: session})

	result := &Result{Session: session}
	if len(files) > 0 {
		if session.ID == "" {
			return nil, ErrMissingSession
		}
		if data.Name == "" {
			return nil, ErrMissingName
		}
		paths, err := objectstore.UploadAll(ctx, s.objects, userID, session.ID, data.Name, len(session.Files), files)
		if err != nil {
			return nil, fmt.Errorf("upload files: %w", err)
		}
		descriptors := make([]models.FileDescriptor, len(paths))
		for i, p := range paths {
			descriptors[i] = models.FileDescriptor{
				Name:         path.Base(p),
				OriginalName: files[i].OriginalName,
				Path:         p,
			}
		}
		updated, err := s.sessions.AppendFiles(ctx, userID, session.ID, descriptors)
		if err != nil {
			return nil, fmt.Errorf("save files: %w", err)
		}
		session = updated
		result.Session = session
		result.Paths = paths
		logger.Info().Str("session_id", session.ID).Int("files", len(paths)).Msg("files uploaded")
	}

	target := ""
	if len(result.Paths) > 0 {
		target = result.Paths[0]
	} else {
		target = models.FirstFilePath(session)
	}
	if target == "" {
		return result, nil
	}
	mode := dashboard.ModeRead
	if len(result.Paths) > 0 {
		mode = dashboard.ModeNew
	}
	result.Mode = mode

	d, err := s.analyse(ctx, userID, session, target, mode)
	if err != nil {
		return nil, err
	}
	result.Dashboard = d

	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	completed, err := s.sessions.Complete(ctx, userID, session.ID, payload)
	if err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	result.Session = completed
	return result, nil
}

// SelectSession makes the session current and always re-reads its analysis
// from the Dashboard API; the stored payload is not reused.
func (s *Service) SelectSession(ctx context.Context, userID, sessionID string) (*Result, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	session, err := s.sessions.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	s.dispatch(userID, appstate.SessionSelected{Session: session})

	result := &Result{Session: session}
	target := ""
	if len(session.Files) > 0 {
		target = session.Files[0].Path
	}
	if target == "" {
		return result, nil
	}
	result.Mode = dashboard.ModeRead
	d, err := s.analyse(ctx, userID, session, target, dashboard.ModeRead)
	if err != nil {
		return nil, err
	}
	result.Dashboard = d
	return result, nil
}

func (s *Service) analyse(ctx context.Context, userID string, session *models.Session, target string, mode dashboard.Mode) (*models.Dashboard, error) {
	s.dispatch(userID, appstate.DashboardLoading{})
	var d *models.Dashboard
	call := func(ctx context.Context) error {
		var err error
		d, err = s.dashboard.GenerateSummary(ctx, target, mode)
		return err
	}
	if err := s.RunQueued(ctx, userID, call); err != nil {
		s.dispatch(userID, appstate.DashboardFailed{Err: "Failed to fetch dashboard data"})
		log.Error().Err(err).
			Str("user_id", userID).
			Str("session_id", session.ID).
			Str("path", models.AnalysisKey(target)).
			Str("mode", string(mode)).
			Msg("dashboard request failed")
		return nil, fmt.Errorf("fetch dashboard: %w", err)
	}
	s.dispatch(userID, appstate.DashboardLoaded{Dashboard: d})
	return d, nil
}

// SignedURL checks the object once and returns a read-only link to it.
func (s *Service) SignedURL(ctx context.Context, key string) (string, error) {
	ok, err := s.objects.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("check object: %w", err)
	}
	if !ok {
		return "", objectstore.ErrNotFound
	}
	return s.objects.SignedURL(ctx, key, s.urlTTL)
}

// FileLinks resolves download links for the session's files one at a time, in order.
func (s *Service) FileLinks(ctx context.Context, session *models.Session) []FileLink {
	if session == nil {
		return nil
	}
	links := make([]FileLink, 0, len(session.Files))
	for _, f := range session.Files {
		link := FileLink{Name: f.Name, OriginalName: f.OriginalName, Path: f.Path, URL: "#"}
		if f.Path != "" {
			if u, err := s.SignedURL(ctx, f.Path); err == nil {
				link.URL = u
			} else {
				log.Warn().Err(err).Str("path", f.Path).Msg("signed url unavailable")
			}
		}
		links = append(links, link)
	}
	return links
}

// DeleteSession removes the session and then, best effort, its stored objects.
func (s *Service) DeleteSession(ctx context.Context, userID, sessionID string) error {
	session, err := s.sessions.Get(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, userID, sessionID); err != nil {
		return err
	}
	for _, f := range session.Files {
		if err := s.objects.Delete(ctx, f.Path); err != nil {
			log.Warn().Err(err).Str("path", f.Path).Msg("delete object failed")
		}
	}
	return nil
}
