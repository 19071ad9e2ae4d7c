package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/connected/cmd/connected/service"
	"github.com/lyzr/connected/common/chunkstore"
	"github.com/lyzr/connected/common/logger"
	"github.com/lyzr/connected/common/models"
)

// respondError maps domain errors onto status codes and the ErrorResponse body.
// Unknown errors are logged and reported as 500.
func respondError(c echo.Context, log *logger.Logger, err error) error {
	var incomplete *models.IncompleteUploadError
	if errors.As(err, &incomplete) {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:          "upload incomplete",
			Code:           models.CodeIncompleteUpload,
			UploadID:       incomplete.UploadID,
			TotalChunks:    incomplete.Total,
			ReceivedChunks: incomplete.Received,
			MissingChunks:  incomplete.Missing,
		})
	}

	status, code := http.StatusInternalServerError, models.CodeInternal
	switch {
	case errors.Is(err, models.ErrUploadExpired), errors.Is(err, chunkstore.ErrNotFound):
		status, code = http.StatusNotFound, models.CodeUploadExpired
	case errors.Is(err, models.ErrStorageFailure):
		status, code = http.StatusBadGateway, models.CodeStorageFailure
	case errors.Is(err, models.ErrInvalidSession):
		status, code = http.StatusUnauthorized, models.CodeInvalidSession
	case errors.Is(err, models.ErrTransferNotFound):
		status, code = http.StatusNotFound, models.CodeTransferNotFound
	case errors.Is(err, models.ErrForbidden):
		status, code = http.StatusForbidden, models.CodeForbidden
	case errors.Is(err, models.ErrInvalidTransition):
		status, code = http.StatusConflict, models.CodeInvalidTransition
	case errors.Is(err, service.ErrTooLarge):
		status, code = http.StatusRequestEntityTooLarge, models.CodeTooLarge
	case errors.Is(err, service.ErrInvalidTransfer),
		errors.Is(err, service.ErrChunkCountMismatch),
		errors.Is(err, chunkstore.ErrIndexOutOfRange):
		status, code = http.StatusBadRequest, models.CodeBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		log.WithContext(c.Request().Context()).Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
		message = "internal error"
	}

	return c.JSON(status, models.ErrorResponse{Error: message, Code: code})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: message, Code: models.CodeBadRequest})
}

// bindAndValidate decodes the body into req and runs its validate tags
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return badRequest(c, err.Error())
	}
	return nil
}
