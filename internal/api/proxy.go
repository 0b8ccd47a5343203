package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"foresight/internal/dashboard"
	"foresight/internal/logging"
	"foresight/internal/models"
	"foresight/internal/objectstore"
	"foresight/internal/worker"
)

func (h *Handler) chatHistory(c *gin.Context) {
	gcsKey := strings.TrimSpace(c.Query("gcs_key"))
	if gcsKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameter: gcs_key"})
		return
	}
	body, err := h.dashboard.History(c.Request.Context(), gcsKey)
	if err != nil {
		logUpstream(c, err, "chat history request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch chat history from dashboard API"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (h *Handler) chatMessage(c *gin.Context) {
	gcsKey := strings.TrimSpace(c.Query("gcs_key"))
	message := c.Query("message")
	if gcsKey == "" || strings.TrimSpace(message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters: gcs_key and message"})
		return
	}
	body, err := h.dashboard.SendMessage(c.Request.Context(), gcsKey, message)
	if err != nil {
		logUpstream(c, err, "chat message request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message to dashboard API"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (h *Handler) dashboardData(c *gin.Context) {
	path := strings.TrimSpace(c.Query("path"))
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing required query param: path"})
		return
	}
	mode, err := dashboard.ParseMode(c.Query("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid mode: must be new or read"})
		return
	}
	var d *models.Dashboard
	err = h.analysis.RunQueued(c.Request.Context(), "proxy:"+c.ClientIP(), func(ctx context.Context) error {
		var err error
		d, err = h.dashboard.GenerateSummary(ctx, path, mode)
		return err
	})
	if errors.Is(err, worker.ErrDispatcherBusy) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Analysis queue is full, try again shortly"})
		return
	}
	if err != nil {
		logUpstream(c, err, "dashboard request failed")
		var upstream *dashboard.UpstreamError
		if errors.As(err, &upstream) {
			var detail any = gin.H{}
			if len(upstream.Body) > 0 {
				detail = upstream.Body
			}
			c.JSON(upstream.Status, gin.H{"message": "Failed to fetch dashboard data", "error": detail})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error fetching dashboard data", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Dashboard data fetched successfully", "data": d})
}

func (h *Handler) signedURL(c *gin.Context) {
	key := strings.TrimSpace(c.Query("path"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "File path is required"})
		return
	}
	url, err := h.analysis.SignedURL(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "File not found"})
			return
		}
		logger := logging.FromContext(c)
		logger.Error().Err(err).Str("path", key).Msg("signed url failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not generate signed URL", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// logUpstream records the upstream status and body that the client does not get to see.
func logUpstream(c *gin.Context, err error, msg string) {
	logger := logging.FromContext(c)
	evt := logger.Error().Err(err).Str("route", c.FullPath())
	var upstream *dashboard.UpstreamError
	if errors.As(err, &upstream) {
		evt = evt.Int("status", upstream.Status).Str("body", upstream.Text)
	}
	evt.Msg(msg)
}

// upstreamMessage is the best human-readable text for a failed dashboard call.
func upstreamMessage(err error) string {
	var upstream *dashboard.UpstreamError
	if errors.As(err, &upstream) && len(upstream.Body) > 0 {
		var body struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(upstream.Body, &body) == nil {
			for _, s := range []string{body.Message, body.Detail, body.Error} {
				if s != "" {
					return s
				}
			}
		}
	}
	return "Failed to fetch dashboard data"
}

func isUpstream(err error) bool {
	var upstream *dashboard.UpstreamError
	return errors.As(err, &upstream)
}
