package api

import (
	"net/http"

	"agriprice/internal/errors"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps application error codes to HTTP status codes
func statusFor(code string) int {
	switch code {
	case errors.CodeNotTrained:
		return http.StatusServiceUnavailable
	case errors.CodeInvalidInput, errors.CodeValidationError:
		return http.StatusBadRequest
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeConflict:
		return http.StatusConflict
	case errors.CodeExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an ErrorResponse. Domain sentinels are mapped to
// codes first.
func respondError(c *gin.Context, err error) {
	err = errors.FromDomain(err)
	code := errors.GetCode(err)
	c.AbortWithStatusJSON(statusFor(code), ErrorResponse{Error: err.Error(), Code: code})
}
