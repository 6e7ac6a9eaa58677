package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edumirror/backend/internal/models"
	"github.com/edumirror/backend/pkg/response"
	"github.com/edumirror/backend/pkg/utils"
)

// SignupRequest is the body for POST /api/auth/signup.
type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

// LoginRequest is the body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with an access token.
type TokenResponse struct {
	Status      string `json:"status"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	users  Users
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(users Users, jwt *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, jwt: jwt, logger: logger}
}

// Signup handles POST /api/auth/signup.
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user, err := h.users.Create(c.Request.Context(), req.Email, hash, req.Name)
	if errors.Is(err, ErrEmailTaken) {
		response.Error(c, http.StatusBadRequest, response.CodeSignupFailed, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("create user", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	h.issue(c, http.StatusCreated, user)
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), req.Email)
	if err != nil || !utils.CheckPassword(req.Password, user.Password) {
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			h.logger.Error("lookup user", zap.Error(err))
		}
		response.Error(c, http.StatusUnauthorized, response.CodeLoginFailed, "invalid email or password")
		return
	}

	h.issue(c, http.StatusOK, user)
}

func (h *Handler) issue(c *gin.Context, status int, user *models.User) {
	token, err := h.jwt.Generate(user.ID, user.Email)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	c.JSON(status, TokenResponse{Status: "success", AccessToken: token, ExpiresIn: h.jwt.ExpiresIn()})
}
