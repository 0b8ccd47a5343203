package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"foresight/internal/logging"
	"foresight/internal/models"
	"foresight/internal/objectstore"
	"foresight/internal/service/sessions"
)

var documentFields = []string{"documents", "documents[]"}

// limitBody caps the request body before anything reads the form.
func (h *Handler) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
		c.Next()
	}
}

func (h *Handler) parseMultipart(c *gin.Context) error {
	if c.Request.MultipartForm != nil {
		return nil
	}
	if err := c.Request.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes: %w", h.maxUpload, err)
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			return err
		}
	}
	return nil
}

// formUploads collects the documents of a multipart request in submission order.
func formUploads(c *gin.Context) ([]objectstore.Upload, error) {
	form := c.Request.MultipartForm
	if form == nil {
		return nil, nil
	}
	var uploads []objectstore.Upload
	for _, field := range documentFields {
		for _, fh := range form.File[field] {
			upload, err := readUpload(fh)
			if err != nil {
				return nil, err
			}
			uploads = append(uploads, upload)
		}
	}
	return uploads, nil
}

// batchMessage explains why a submission's file list was refused.
func batchMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, objectstore.ErrTooManyFiles):
		return fmt.Sprintf("You can only upload a maximum of %d files.", objectstore.MaxFiles), true
	case errors.Is(err, objectstore.ErrDuplicateFile):
		return "A file with the same name was already added.", true
	}
	return "", false
}

func readUpload(fh *multipart.FileHeader) (objectstore.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return objectstore.Upload{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return objectstore.Upload{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return objectstore.Upload{
		OriginalName: filepath.Base(fh.Filename),
		ContentType:  mimetype.Detect(data).String(),
		Data:         data,
	}, nil
}

func startupData(c *gin.Context) models.StartupData {
	return models.StartupData{
		Name:         strings.TrimSpace(c.PostForm("name")),
		Website:      strings.TrimSpace(c.PostForm("website")),
		Pitch:        strings.TrimSpace(c.PostForm("pitch")),
		TargetMarket: strings.TrimSpace(c.PostForm("targetMarket")),
	}
}

// upload stores a batch of documents under {uid}/{sessionId}/ and returns their keys.
func (h *Handler) upload(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	logger := logging.FromContext(c)
	if err := h.parseMultipart(c); err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("invalid upload body")
		c.JSON(http.StatusBadRequest, gin.H{"message": "Upload failed", "error": err.Error()})
		return
	}
	files, err := formUploads(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Upload failed", "error": err.Error()})
		return
	}
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No files uploaded"})
		return
	}
	if err := objectstore.ValidateBatch(files); err != nil {
		msg, _ := batchMessage(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": msg, "error": err.Error()})
		return
	}
	sessionID := strings.TrimSpace(c.PostForm("sessionId"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing sessionId"})
		return
	}
	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing startup name"})
		return
	}

	offset := 0
	existing, err := h.sessions.Get(c.Request.Context(), userID, sessionID)
	switch {
	case err == nil:
		offset = len(existing.Files)
	case !errors.Is(err, sessions.ErrNotFound):
		logger.Error().Err(err).Str("user_id", userID).Str("session_id", sessionID).Msg("load session for upload")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Upload failed", "error": err.Error()})
		return
	}

	paths, err := objectstore.UploadAll(c.Request.Context(), h.objects, userID, sessionID, name, offset, files)
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID).Str("session_id", sessionID).Msg("upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Upload failed", "error": err.Error()})
		return
	}
	logger.Info().Str("user_id", userID).Str("session_id", sessionID).Int("files", len(paths)).Msg("upload stored")
	c.JSON(http.StatusOK, gin.H{"message": "Upload success", "paths": paths})
}
