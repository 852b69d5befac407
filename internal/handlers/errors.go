package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rmaraujo/formbridge/backend/internal/services"
	"github.com/rmaraujo/formbridge/backend/pkg/response"
)

// respondServiceError translates service-layer errors into HTTP responses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrTemplateNotFound),
		errors.Is(err, services.ErrTableNotFound),
		errors.Is(err, services.ErrFieldNotFound),
		errors.Is(err, services.ErrWorkflowNotFound),
		errors.Is(err, services.ErrGroupNotFound):
		response.NotFound(c, err.Error())
		return
	case errors.Is(err, services.ErrTemplateExists):
		response.Error(c, response.NewConflict(err.Error()))
		return
	case errors.Is(err, services.ErrFixedFieldImmutable),
		errors.Is(err, services.ErrFixedFieldUndeletable):
		response.Unprocessable(c, err.Error())
		return
	}

	var (
		valErr    *services.ValidationError
		permErr   *services.InvalidPermutationError
		emptyErr  *services.EmptyApproverSetError
		fieldErr  *services.UnknownEditableFieldError
		childErr  *services.TableHasChildrenError
		bundleErr *services.InvalidBundleError
		verErr    *services.UnsupportedVersionError
	)
	switch {
	case errors.As(err, &valErr),
		errors.As(err, &permErr),
		errors.As(err, &emptyErr),
		errors.As(err, &fieldErr),
		errors.As(err, &bundleErr):
		response.BadRequest(c, err.Error())
	case errors.As(err, &childErr):
		response.Error(c, response.NewConflict(err.Error()))
	case errors.As(err, &verErr):
		response.Unprocessable(c, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// pathID parses the named uint path parameter, replying 400 on failure.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
