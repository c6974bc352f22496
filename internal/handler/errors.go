package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"mail-digest-go/internal/digest"
)

// writeError maps workflow errors to HTTP status codes
func writeError(c *gin.Context, err error) {
	var (
		cfgErr      *digest.ConfigurationError
		renderErr   *digest.RenderError
		dispatchErr *digest.DispatchError
		selectErr   *digest.SelectionError
	)

	status, kind := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.As(err, &cfgErr):
		status, kind = http.StatusUnprocessableEntity, "configuration_error"
	case errors.Is(err, digest.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, digest.ErrInvalidState), errors.Is(err, digest.ErrIllegalTransition):
		status, kind = http.StatusConflict, "invalid_state"
	case errors.Is(err, digest.ErrPrepareInProgress), errors.Is(err, digest.ErrConcurrentPrepare):
		status, kind = http.StatusConflict, "prepare_in_progress"
	case errors.As(err, &dispatchErr):
		status, kind = http.StatusBadGateway, "dispatch_error"
	case errors.As(err, &renderErr):
		status, kind = http.StatusBadGateway, "render_error"
	case errors.As(err, &selectErr):
		status, kind = http.StatusInternalServerError, "selection_error"
	default:
		var perr *digest.PersistenceError
		if errors.As(err, &perr) {
			kind = "database_error"
		}
	}

	if status >= http.StatusInternalServerError {
		logrus.WithField("path", c.FullPath()).Errorf("Request failed: %v", err)
	}

	c.JSON(status, ErrorResponse{
		Error:   kind,
		Message: err.Error(),
		Code:    status,
	})
}

func badID(c *gin.Context) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_id",
		Message: "Invalid digest ID",
		Code:    http.StatusBadRequest,
	})
}
