// Package auth registers devices and issues their access tokens.
package auth

import (
	"regexp"
	"time"

	"github.com/nextstop/nextstop/internal/api/models"
)

// Supported device platforms.
var platforms = map[string]bool{
	"ios":     true,
	"android": true,
	"web":     true,
	"cli":     true,
}

var installIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

// Device is a registered client install.
type Device struct {
	ID         string    `json:"deviceId"`
	InstallID  string    `json:"-"`
	Platform   string    `json:"platform"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// DeviceTokenRequest is the request body for device registration.
type DeviceTokenRequest struct {
	// InstallID is a stable random id generated by the client on install.
	InstallID string `json:"installId"`

	// Platform is one of ios, android, web or cli.
	Platform string `json:"platform"`
}

// Validate validates the device token request.
func (r *DeviceTokenRequest) Validate() []models.FieldError {
	var errs []models.FieldError

	switch {
	case r.InstallID == "":
		errs = append(errs, models.FieldError{
			Field:   "installId",
			Message: "install id is required",
			Code:    "REQUIRED",
		})
	case !installIDRegex.MatchString(r.InstallID):
		errs = append(errs, models.FieldError{
			Field:   "installId",
			Message: "install id must be 8-128 URL-safe characters",
			Code:    "INVALID_FORMAT",
		})
	}

	if !platforms[r.Platform] {
		errs = append(errs, models.FieldError{
			Field:   "platform",
			Message: "platform must be one of ios, android, web, cli",
			Code:    "INVALID_VALUE",
		})
	}

	return errs
}

// TokenResponse represents the response after successful registration.
type TokenResponse struct {
	// AccessToken is the JWT access token for API authentication.
	AccessToken string `json:"accessToken"`

	// TokenType is always "Bearer".
	TokenType string `json:"tokenType"`

	// ExpiresIn is the number of seconds until the access token expires.
	ExpiresIn int64 `json:"expiresIn"`

	// Device is the registered device.
	Device *Device `json:"device"`
}
