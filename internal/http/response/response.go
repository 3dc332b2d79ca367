package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
	"github.com/yungbote/figuregen-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}

// Classify maps an error to its HTTP status and machine code.
func Classify(err error) (int, string) {
	if ae, ok := apierr.As(err); ok && ae.Status != 0 {
		return ae.Status, ae.Code
	}
	switch {
	case errors.Is(err, errs.ErrNoInstructions):
		return http.StatusBadRequest, "no_instructions"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errs.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, errs.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, errs.ErrRemoteTimeout):
		return http.StatusGatewayTimeout, "remote_timeout"
	case errors.Is(err, errs.ErrRemoteRunFailed):
		return http.StatusBadGateway, "remote_run_failed"
	case errors.Is(err, errs.ErrNoReply):
		return http.StatusBadGateway, "no_reply"
	case errors.Is(err, errs.ErrFetchFailed):
		return http.StatusUnprocessableEntity, "fetch_failed"
	case errors.Is(err, errs.ErrUploadFailed):
		return http.StatusBadGateway, "upload_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// RespondErr writes err with the status Classify picks for it.
func RespondErr(c *gin.Context, err error) {
	status, code := Classify(err)
	RespondError(c, status, code, err)
}
