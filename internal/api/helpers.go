package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/cjgriscom/lib3mf/pkg/attachment"
	"github.com/cjgriscom/lib3mf/pkg/chunkstream"
	"github.com/cjgriscom/lib3mf/pkg/toolpath"
)

func writeBadRequest(c *echo.Context, msg, param string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, param)
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "")
}

func writeError(c *echo.Context, status int, errType, msg, param string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Param:   param,
		},
	})
}

// writeReadError maps toolpath and container errors to HTTP statuses.
func writeReadError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, toolpath.ErrInvalidIndex):
		return writeNotFound(c, err.Error())
	case errors.Is(err, toolpath.ErrMissingAttachment),
		errors.Is(err, toolpath.ErrBinaryStreamNotFound),
		errors.Is(err, attachment.ErrNotFound):
		return writeError(c, http.StatusNotFound, "missing_attachment_error", err.Error(), "")
	case errors.Is(err, chunkstream.ErrChecksumMismatch),
		errors.Is(err, chunkstream.ErrCorruptContainer):
		return writeError(c, http.StatusUnprocessableEntity, "corrupt_stream_error", err.Error(), "")
	default:
		return writeError(c, http.StatusUnprocessableEntity, "invalid_layer_error", err.Error(), "")
	}
}

func indexParam(c *echo.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
