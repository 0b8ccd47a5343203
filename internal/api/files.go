package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"foresight/internal/objectstore"
)

// serveLocalFile answers the links minted by the local object store.
func (h *Handler) serveLocalFile(store *objectstore.LocalStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		target, err := store.Verify(key, c.Query("expires"), c.Query("sig"))
		if err != nil {
			if errors.Is(err, objectstore.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"message": "File not found"})
				return
			}
			c.JSON(http.StatusForbidden, gin.H{"message": "invalid or expired link"})
			return
		}
		c.File(target)
	}
}
