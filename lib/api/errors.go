package api

import (
	"errors"
	"net/http"

	"agentdms/lib/authz"
	"agentdms/lib/data"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
)

// StoreErrorResponse maps a repository or resolver error to a response.
// Unclassified errors become a 500 with the message "Failed to <action>".
func StoreErrorResponse(err error, action string, logger *logrus.Logger) events.APIGatewayProxyResponse {
	switch {
	case errors.Is(err, data.ErrNotFound), errors.Is(err, authz.ErrCustomFieldNotFound):
		return ErrorResponse(http.StatusNotFound, err.Error(), logger)
	case errors.Is(err, data.ErrConflict), errors.Is(err, data.ErrNotRemovable):
		return ErrorResponse(http.StatusConflict, err.Error(), logger)
	case errors.Is(err, data.ErrImmutableUser):
		return ForbiddenResponse(err.Error(), logger)
	case errors.Is(err, authz.ErrUnverifiableRestriction):
		logger.WithError(err).Error("Field value restriction could not be verified")
		return ErrorResponse(http.StatusUnprocessableEntity, "value could not be verified", logger)
	default:
		logger.WithError(err).Errorf("Failed to %s", action)
		return ErrorResponse(http.StatusInternalServerError, "Failed to "+action, logger)
	}
}
