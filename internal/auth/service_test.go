package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstop/nextstop/internal/auth"
)

func newAuthService() *auth.Service {
	return auth.NewService(auth.ServiceConfig{
		JWTService: newJWT("test-secret", "https://api.nextstop.app", "nextstop-api"),
		Devices:    auth.NewInMemoryDeviceRepository(),
		Logger:     zerolog.Nop(),
	})
}

func TestService_RegisterDevice(t *testing.T) {
	svc := newAuthService()
	ctx := context.Background()

	first, err := svc.RegisterDevice(ctx, &auth.DeviceTokenRequest{InstallID: "install-0001", Platform: "ios"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", first.TokenType)
	assert.Regexp(t, `^dev_[0-9a-f-]{22}$`, first.Device.ID)
	assert.Greater(t, first.ExpiresIn, int64(0))

	deviceID, err := svc.ValidateAccessToken(first.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, first.Device.ID, deviceID)

	// The same install keeps its device id.
	again, err := svc.RegisterDevice(ctx, &auth.DeviceTokenRequest{InstallID: "install-0001", Platform: "ios"})
	require.NoError(t, err)
	assert.Equal(t, first.Device.ID, again.Device.ID)

	other, err := svc.RegisterDevice(ctx, &auth.DeviceTokenRequest{InstallID: "install-0002", Platform: "cli"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Device.ID, other.Device.ID)
}

func TestService_RegisterDevice_Validation(t *testing.T) {
	svc := newAuthService()

	tests := []struct {
		name   string
		req    auth.DeviceTokenRequest
		fields []string
	}{
		{"empty", auth.DeviceTokenRequest{}, []string{"installId", "platform"}},
		{"short install id", auth.DeviceTokenRequest{InstallID: "abc", Platform: "ios"}, []string{"installId"}},
		{"bad characters", auth.DeviceTokenRequest{InstallID: "install id!", Platform: "web"}, []string{"installId"}},
		{"unknown platform", auth.DeviceTokenRequest{InstallID: "install-0001", Platform: "palm"}, []string{"platform"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterDevice(context.Background(), &tt.req)
			var verr *auth.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)

			fields := make([]string, len(verr.Errors))
			for i, e := range verr.Errors {
				fields[i] = e.Field
			}
			assert.Equal(t, tt.fields, fields)
		})
	}
}
