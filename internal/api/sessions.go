package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"foresight/internal/logging"
	"foresight/internal/models"
	"foresight/internal/service/sessions"
)

func (h *Handler) listSessions(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	list, err := h.sessions.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = make([]models.Session, 0)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

func (h *Handler) getSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	session, err := h.sessions.Get(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *Handler) deleteSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.analysis.DeleteSession(c.Request.Context(), userID, c.Param("session_id")); err != nil {
		writeSessionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) selectSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	result, err := h.analysis.SelectSession(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		writeAnalysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func writeSessionError(c *gin.Context, err error) {
	if errors.Is(err, sessions.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// streamSessions pushes the user's session list on every change until the client leaves.
func (h *Handler) streamSessions(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	updates := make(chan []models.Session, 8)
	unsubscribe := h.feed.Subscribe(userID, func(list []models.Session) {
		// Only the newest list matters; drop the stale one if the client is slow.
		for {
			select {
			case updates <- list:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		var data []byte
		switch v := payload.(type) {
		case string:
			data = []byte(v)
		default:
			var err error
			data, err = json.Marshal(v)
			if err != nil {
				return err
			}
		}
		if event != "" {
			if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()
	logger := logging.FromContext(c)
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case list := <-updates:
			if list == nil {
				list = make([]models.Session, 0)
			}
			if err := sendEvent("sessions", gin.H{"sessions": list}); err != nil {
				logger.Debug().Err(err).Str("user_id", userID).Msg("session stream closed")
				return
			}
		case <-ticker.C:
			if err := sendEvent("ping", gin.H{"time": time.Now().UTC()}); err != nil {
				return
			}
		}
	}
}
