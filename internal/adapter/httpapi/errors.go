package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"placesdb/internal/shared"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func statusFor(err error) int {
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindInvalidArgument:
		return http.StatusBadRequest
	case shared.KindReadOnly:
		return http.StatusForbidden
	case shared.KindInterrupted, shared.KindConnectionAlreadyOpen:
		return http.StatusConflict
	case shared.KindClosed, shared.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and JSON body. Server errors are logged;
// their text is not returned.
func writeError(c *gin.Context, log *slog.Logger, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), Kind: shared.KindOf(err).String()}
	if status == http.StatusInternalServerError {
		log.Error("request failed", "path", c.FullPath(), "error", err)
		body.Error = "internal error"
	}
	c.AbortWithStatusJSON(status, body)
}

// writeBindError reports a request body or query that failed validation.
func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{
			Error: "invalid field " + verrs[0].Field() + ": " + verrs[0].Tag(),
			Kind:  shared.KindInvalidArgument.String(),
		})
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: err.Error(), Kind: shared.KindInvalidArgument.String()})
}
