// Package dashboard talks to the remote analysis backend.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"foresight/internal/models"

	"github.com/rs/zerolog/log"
)

// Mode selects whether the backend re-analyses the documents or serves the stored result.
type Mode string

const (
	ModeNew  Mode = "new"
	ModeRead Mode = "read"
)

// ErrInvalidMode is returned by ParseMode for anything but "", "new" and "read".
var ErrInvalidMode = errors.New("invalid mode")

// ParseMode defaults an empty mode to ModeNew. Modes are case sensitive.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case "", ModeNew:
		return ModeNew, nil
	case ModeRead:
		return ModeRead, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}

// UpstreamError carries a non-2xx reply from the analysis backend.
type UpstreamError struct {
	Status int
	// Body is the reply when it parsed as JSON, nil otherwise.
	Body json.RawMessage
	// Text is the raw reply, truncated, for logging.
	Text string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("dashboard api responded with status %d", e.Status)
}

// ErrMissingPath is returned when GenerateSummary gets an empty path.
var ErrMissingPath = errors.New("missing analysis path")

const maxBodyBytes = 8 << 20

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// History returns the upstream chat history for an analysis key verbatim.
func (c *Client) History(ctx context.Context, gcsKey string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("gcs_key", gcsKey)
	return c.do(ctx, http.MethodGet, "/history", q)
}

// SendMessage posts a chat message and returns the upstream reply verbatim.
func (c *Client) SendMessage(ctx context.Context, gcsKey, message string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("gcs_key", gcsKey)
	q.Set("message", message)
	return c.do(ctx, http.MethodPost, "/chat/message", q)
}

type summaryResponse struct {
	StartupName     string `json:"startup_name"`
	AnalysisSummary *struct {
		ShortSummary    string `json:"short_summary"`
		DetailedSummary string `json:"detailed_analysis_summary"`
	} `json:"analysis_summary"`
	PeerComparison *models.PeerComparison `json:"peer_comparison_table"`
	ExtractedData  map[string]any         `json:"extracted_data"`
	GCSKey         string                 `json:"gcs_key"`
	FilesProcessed int                    `json:"files_processed"`
	FilesInfo      json.RawMessage        `json:"files_info"`
	Stored         bool                   `json:"stored_in_database"`
	ResponseTime   float64                `json:"response_time_seconds"`
}

// GenerateSummary requests the analysis for path, truncated to its analysis key.
func (c *Client) GenerateSummary(ctx context.Context, path string, mode Mode) (*models.Dashboard, error) {
	key := models.AnalysisKey(path)
	if key == "" {
		return nil, ErrMissingPath
	}
	if mode == "" {
		mode = ModeNew
	}
	q := url.Values{}
	q.Set("path", key)
	q.Set("mode", string(mode))
	raw, err := c.do(ctx, http.MethodGet, "/generate_summary", q)
	if err != nil {
		return nil, err
	}
	var resp summaryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	d := &models.Dashboard{
		StartupName:    resp.StartupName,
		PeerComparison: resp.PeerComparison,
		Extracted:      GroupExtracted(resp.ExtractedData),
		GCSKey:         resp.GCSKey,
		FilesProcessed: resp.FilesProcessed,
		FilesInfo:      resp.FilesInfo,
		Stored:         resp.Stored,
		ResponseTime:   resp.ResponseTime,
	}
	if resp.AnalysisSummary != nil {
		d.Summary = resp.AnalysisSummary.ShortSummary
		d.DetailedSummary = resp.AnalysisSummary.DetailedSummary
	}
	return d, nil
}

// Ping reports whether the Dashboard API answers HTTP at all. Any status counts.
func (c *Client) Ping(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, q url.Values) (json.RawMessage, error) {
	target := c.baseURL + endpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	log.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("dashboard api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: jsonOrNil(body), Text: truncate(string(body), 512)}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("decode %s response: invalid json", endpoint)
	}
	return json.RawMessage(body), nil
}

// jsonOrNil keeps the body only when it is valid JSON.
func jsonOrNil(body []byte) json.RawMessage {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return nil
	}
	return json.RawMessage(body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
