package response

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "viral-clipper/pkg/errors"
)

// Response is the standard API response structure
type Response struct {
	Error  int32  `json:"error"`            // Error code (0 = success)
	Msg    string `json:"msg"`              // Human-readable message
	Kind   string `json:"kind,omitempty"`   // Error class, e.g. NoValidClipsError
	Stage  string `json:"stage,omitempty"`  // Pipeline stage an error escaped from
	Detail string `json:"detail,omitempty"` // Additional error details
	Data   any    `json:"data"`             // Response payload
}

// Success returns a success response with data
func Success(c *gin.Context, data any) {
	c.JSON(200, Response{
		Error: 0,
		Msg:   "success",
		Data:  data,
	})
}

// FromError converts an error to a Response.
// Errors that are not AppErrors are reported as CodeUnknown.
func FromError(err error) Response {
	if err == nil {
		return Response{
			Error: 0,
			Msg:   "success",
		}
	}

	resp := Response{
		Error: int32(apperrors.GetCode(err)),
		Msg:   apperrors.GetMessage(err),
		Kind:  apperrors.Kind(err),
		Stage: apperrors.GetStage(err),
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Detail = appErr.Detail
	}
	return resp
}

// ErrorResponse sends an error response from an error
func ErrorResponse(c *gin.Context, err error) {
	c.JSON(200, FromError(err))
}
