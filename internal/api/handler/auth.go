package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/nextstop/nextstop/internal/api/response"
	"github.com/nextstop/nextstop/internal/auth"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *auth.Service
	logger      zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *auth.Service, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// RegisterDevice handles POST /v1/auth/device - issue a device access token.
func (h *AuthHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req auth.DeviceTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	tokenResp, err := h.authService.RegisterDevice(r.Context(), &req)
	if err != nil {
		var validationErr *auth.ValidationError
		if errors.As(err, &validationErr) {
			response.BadRequest(w, r, "validation error", validationErr.Errors)
			return
		}

		h.logger.Error().Err(err).Msg("device registration failed")
		response.InternalError(w, r, "device registration failed")
		return
	}

	response.JSON(w, r, http.StatusOK, tokenResp)
}
