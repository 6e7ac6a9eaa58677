package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes carried in the error envelope.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeSessionNotFound   = "SESSION_NOT_FOUND"
	CodeAnalysisNotFound  = "ANALYSIS_NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeSignupFailed      = "SIGNUP_FAILED"
	CodeLoginFailed       = "LOGIN_FAILED"
	CodeUploadFailed      = "UPLOAD_FAILED"
	CodeInternal          = "INTERNAL_ERROR"
)

// ErrorBody is the error envelope returned by every endpoint.
type ErrorBody struct {
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// OK sends a 200 JSON response. Success bodies are written as-is.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created sends a 201 JSON response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// Error sends an error envelope with the given HTTP status.
func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorBody{Status: "error", ErrorCode: code, Message: message})
}

// Abort is Error for middleware; it stops the handler chain.
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{Status: "error", ErrorCode: code, Message: message})
}

// BadRequest sends 400 INVALID_REQUEST.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeInvalidRequest, message)
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// NotFound sends 404 with code.
func NotFound(c *gin.Context, code, message string) {
	Error(c, http.StatusNotFound, code, message)
}

// Conflict sends 409 INVALID_TRANSITION.
func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, CodeInvalidTransition, message)
}

// Internal sends 500 INTERNAL_ERROR.
func Internal(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeInternal, message)
}
