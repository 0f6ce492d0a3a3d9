package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/threatprofile-gateway/services"
	"github.com/upb/threatprofile-gateway/utils"
)

// HandleServiceError maps domain errors to HTTP responses. redirect is
// attached to 401/403 bodies so the dashboard can follow the guard.
func HandleServiceError(w http.ResponseWriter, err error, redirect string, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, err.Error())

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, err.Error(), details)

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, err.Error(), redirect)

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, err.Error(), redirect)

	case services.IsExternalError(err):
		// upstream failures are 502
		logger.Warn("upstream service error", zap.Error(err))
		writeErr = utils.WriteError(w, http.StatusBadGateway, err.Error(), details)

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}
