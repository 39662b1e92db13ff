package http

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openshelf/bookreader/internal/entities"
)

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"` // machine-readable error kind
}

// SuccessResponse is a standard success response with optional data.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// errorKinds maps core error kinds to HTTP statuses and wire names. The UI
// routes on the kind, not on the message.
var errorKinds = []struct {
	err    error
	status int
	kind   string
}{
	{entities.ErrInvalidPath, http.StatusBadRequest, "invalid_path"},
	{entities.ErrInvalidProgress, http.StatusBadRequest, "invalid_progress"},
	{entities.ErrRootMissing, http.StatusNotFound, "missing"},
	{entities.ErrRootUnwritable, http.StatusForbidden, "unwritable"},
	{entities.ErrAlreadyActive, http.StatusConflict, "already_active"},
	{entities.ErrNotActive, http.StatusServiceUnavailable, "not_active"},
	{entities.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, "unsupported_format"},
	{entities.ErrDuplicateBook, http.StatusConflict, "duplicate_book"},
	{entities.ErrUnknownBook, http.StatusNotFound, "unknown_book"},
	{entities.ErrFormat, http.StatusUnprocessableEntity, "format_error"},
	{entities.ErrCancelled, 499, "cancelled"},
	{entities.ErrIO, http.StatusInternalServerError, "io_failure"},
}

// respondError translates a core error into the standard error envelope.
func respondError(c *gin.Context, err error) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			c.JSON(k.status, ErrorResponse{Error: err.Error(), Kind: k.kind})
			return
		}
	}
	log.Printf("ERROR: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

func respondNotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: resource + " not found"})
}
