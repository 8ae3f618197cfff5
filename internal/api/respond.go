package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"whatsapp-crm/internal/apperr"

	"github.com/gin-gonic/gin"
)

// respondError writes err as {"error": ...}. notFound replaces the message of
// missing-resource errors.
func respondError(c *gin.Context, err error, notFound string) {
	status := apperr.StatusOf(err)
	switch {
	case status == http.StatusNotFound && notFound != "":
		c.JSON(status, gin.H{"error": notFound})
	case status >= http.StatusInternalServerError:
		slog.Error("request failed", slog.String("path", c.Request.URL.Path), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	default:
		body := gin.H{"error": err.Error()}
		if details := apperr.DetailsOf(err); details != nil {
			body["details"] = details
		}
		c.JSON(status, body)
	}
}

// bindJSON decodes the request body into dst. An empty body leaves dst as is.
func bindJSON(c *gin.Context, dst interface{}) bool {
	err := json.NewDecoder(c.Request.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body is too large"})
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
	return false
}
