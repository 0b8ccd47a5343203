package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"foresight/internal/dashboard"
	"foresight/internal/logging"
	"foresight/internal/models"
	"foresight/internal/objectstore"
	"foresight/internal/service/analysis"
	"foresight/internal/service/sessions"
	"foresight/internal/worker"
)

// submitAnalysis runs the upload and analysis flow for the active (or named) session.
func (h *Handler) submitAnalysis(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.parseMultipart(c); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	files, err := formUploads(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data := startupData(c)
	if data.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing startup name"})
		return
	}
	active, err := h.activeSession(c, userID, c.PostForm("sessionId"))
	if err != nil {
		writeSessionError(c, err)
		return
	}
	result, err := h.analysis.SubmitAnalysis(c.Request.Context(), userID, active, data, files)
	if err != nil {
		writeAnalysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": result.Session, "dashboard": result.Dashboard, "paths": result.Paths})
}

// activeSession picks an explicit session id when given, else the one selected in the user's state.
func (h *Handler) activeSession(c *gin.Context, userID, sessionID string) (*models.Session, error) {
	if sessionID = strings.TrimSpace(sessionID); sessionID != "" {
		return h.sessions.Get(c.Request.Context(), userID, sessionID)
	}
	if st := h.state(userID); st != nil {
		return st.Snapshot().Selected, nil
	}
	return nil, nil
}

func writeAnalysisError(c *gin.Context, err error) {
	logger := logging.FromContext(c)
	var upstream *dashboard.UpstreamError
	switch {
	case errors.Is(err, analysis.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, analysis.ErrMissingSession), errors.Is(err, analysis.ErrMissingName), errors.Is(err, objectstore.ErrNoFiles):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, analysis.ErrTooManyFiles), errors.Is(err, analysis.ErrDuplicateFile):
		msg, _ := batchMessage(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": msg, "error": err.Error()})
	case errors.Is(err, sessions.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, worker.ErrDispatcherBusy):
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Analysis queue is full, try again shortly"})
	case errors.As(err, &upstream):
		var detail any = gin.H{}
		if len(upstream.Body) > 0 {
			detail = upstream.Body
		}
		c.JSON(upstream.Status, gin.H{"message": "Failed to fetch dashboard data", "error": detail})
	default:
		logger.Error().Err(err).Msg("analysis failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
