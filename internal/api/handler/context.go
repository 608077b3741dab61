// Package handler provides HTTP handlers for the NextStop API.
package handler

import (
	"context"

	"github.com/nextstop/nextstop/internal/api/middleware"
)

// GetDeviceID retrieves the authenticated device ID from the context.
func GetDeviceID(ctx context.Context) string {
	return middleware.GetDeviceID(ctx)
}
