package handlers

import (
	"errors"
	"net/http"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/pkg/api/auth"
)

// AuthHandler issues API tokens to the operator.
type AuthHandler struct {
	operator   auth.Operator
	jwtService *auth.JWTService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(operator auth.Operator, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{operator: operator, jwtService: jwtService}
}

// LoginRequest is the request body for POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the request body for POST /api/v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.operator.Authenticate(req.Username, req.Password); err != nil {
		if errors.Is(err, auth.ErrLoginDisabled) {
			Forbidden(w, err.Error())
			return
		}
		logger.WarnCtx(r.Context(), "API login failed", "username", req.Username)
		Unauthorized(w, "Invalid username or password")
		return
	}

	pair, err := h.jwtService.GenerateTokenPair(h.operator.Username)
	if err != nil {
		InternalServerError(w, "Failed to generate token")
		return
	}
	logger.InfoCtx(r.Context(), "API login", "username", req.Username)
	WriteJSONOK(w, pair)
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		Unauthorized(w, "Invalid or expired refresh token")
		return
	}
	if claims.Username != h.operator.Username {
		Unauthorized(w, "Operator no longer exists")
		return
	}

	pair, err := h.jwtService.GenerateTokenPair(claims.Username)
	if err != nil {
		InternalServerError(w, "Failed to generate token")
		return
	}
	WriteJSONOK(w, pair)
}
