// --- File: dispatchservice/config/config_test.go ---
package config_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-dispatch-service/dispatchservice/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpdateConfigWithEnvOverrides(t *testing.T) {
	logger := newTestLogger()

	baseConfig := func() *config.Config {
		return &config.Config{
			ProjectID:  "base-project",
			ListenAddr: ":8080",
			FCM: config.FCMConfig{
				ServiceAccountFile: "/etc/fcm/sa.json",
			},
		}
	}

	t.Run("Success - All overrides applied", func(t *testing.T) {
		cfg := baseConfig()

		t.Setenv("PROJECT_ID", "env-project")
		t.Setenv("PORT", "9090")
		t.Setenv("SUBSCRIPTION_ID", "env-sub")
		t.Setenv("FCM_PROJECT_ID", "env-fcm-project")
		t.Setenv("FCM_SERVICE_ACCOUNT", `{"type":"service_account"}`)
		t.Setenv("FCM_ENDPOINT_BASE", "http://localhost:9999")
		t.Setenv("FCM_REQUEST_TIMEOUT", "3s")
		t.Setenv("FCM_TRANSPORT", "SDK")
		t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.com, http://b.com,")

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "env-project", finalCfg.ProjectID)
		assert.Equal(t, ":9090", finalCfg.ListenAddr)
		assert.Equal(t, "env-sub", finalCfg.SubscriptionID)
		assert.True(t, finalCfg.PipelineEnabled())
		assert.NotNil(t, finalCfg.PubsubConsumerConfig)

		assert.Equal(t, "env-fcm-project", finalCfg.FCM.ProjectID)
		assert.Equal(t, `{"type":"service_account"}`, finalCfg.FCM.ServiceAccountJSON)
		assert.Equal(t, "http://localhost:9999", finalCfg.FCM.EndpointBase)
		assert.Equal(t, 3*time.Second, finalCfg.FCM.RequestTimeout)
		assert.Equal(t, config.TransportSDK, finalCfg.FCM.Transport)
		assert.Equal(t, []string{"http://a.com", "http://b.com"}, finalCfg.CorsConfig.AllowedOrigins)
	})

	t.Run("Success - Defaults applied", func(t *testing.T) {
		cfg := baseConfig()
		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "base-project", finalCfg.ProjectID)
		assert.Equal(t, "base-project", finalCfg.FCM.ProjectID)
		assert.Equal(t, config.TransportHTTP, finalCfg.FCM.Transport)
		assert.Equal(t, 10*time.Second, finalCfg.FCM.RequestTimeout)
		assert.Equal(t, 1, finalCfg.NumPipelineWorkers)
		assert.False(t, finalCfg.PipelineEnabled())
	})

	t.Run("Success - FCM project stands in for the service project", func(t *testing.T) {
		t.Setenv("FCM_PROJECT_ID", "only-fcm")
		finalCfg, err := config.UpdateConfigWithEnvOverrides(&config.Config{}, logger)
		require.NoError(t, err)

		assert.Equal(t, "only-fcm", finalCfg.ProjectID)
	})

	t.Run("Success - Missing service account is not fatal", func(t *testing.T) {
		finalCfg, err := config.UpdateConfigWithEnvOverrides(&config.Config{ProjectID: "p"}, logger)
		require.NoError(t, err)

		assert.Empty(t, finalCfg.FCM.ServiceAccountJSON)
		assert.Empty(t, finalCfg.FCM.ServiceAccountFile)
	})

	t.Run("Validation Failure - Missing ProjectID", func(t *testing.T) {
		t.Setenv("PROJECT_ID", "")
		t.Setenv("FCM_PROJECT_ID", "")
		_, err := config.UpdateConfigWithEnvOverrides(&config.Config{}, logger)
		assert.Error(t, err)
	})

	t.Run("Validation Failure - Unknown transport", func(t *testing.T) {
		cfg := baseConfig()
		cfg.FCM.Transport = "carrier-pigeon"
		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		assert.Error(t, err)
	})
}
