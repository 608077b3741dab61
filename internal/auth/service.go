package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nextstop/nextstop/internal/api/models"
)

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// ServiceConfig holds configuration for the auth service.
type ServiceConfig struct {
	JWTService *JWTService
	Devices    DeviceRepository
	Logger     zerolog.Logger
}

// Service provides device authentication.
type Service struct {
	jwtService *JWTService
	devices    DeviceRepository
	logger     zerolog.Logger
	now        func() time.Time
}

// NewService creates a new auth service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		jwtService: cfg.JWTService,
		devices:    cfg.Devices,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// RegisterDevice finds or creates the device for an install and issues an
// access token.
func (s *Service) RegisterDevice(ctx context.Context, req *DeviceTokenRequest) (*TokenResponse, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	now := s.now().UTC()

	device, err := s.devices.FindByInstallID(ctx, req.InstallID)
	switch {
	case err == nil:
		if err := s.devices.Touch(ctx, device.ID, now); err != nil {
			return nil, fmt.Errorf("touching device: %w", err)
		}
		device.LastSeenAt = now
	case errors.Is(err, ErrDeviceNotFound):
		device = &Device{
			ID:         generateDeviceID(),
			InstallID:  req.InstallID,
			Platform:   req.Platform,
			CreatedAt:  now,
			LastSeenAt: now,
		}
		if err := s.devices.Create(ctx, device); err != nil {
			return nil, fmt.Errorf("creating device: %w", err)
		}
		s.logger.Info().Str("device_id", device.ID).Str("platform", device.Platform).Msg("device registered")
	default:
		return nil, fmt.Errorf("finding device: %w", err)
	}

	accessToken, expiresAt, err := s.jwtService.GenerateAccessToken(device.ID)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(expiresAt.Sub(now).Seconds()),
		Device:      device,
	}, nil
}

// ValidateAccessToken validates an access token and returns the device ID.
func (s *Service) ValidateAccessToken(tokenString string) (string, error) {
	claims, err := s.jwtService.ValidateAccessToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.DeviceID, nil
}

// generateDeviceID generates a unique device ID with prefix.
func generateDeviceID() string {
	return "dev_" + uuid.New().String()[:22]
}
