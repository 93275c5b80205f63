// --- File: dispatchservice/config/config.go ---
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

// Supported FCM transports.
const (
	TransportHTTP = "http"
	TransportSDK  = "sdk"
)

type FCMConfig struct {
	// ProjectID is the messaging project; defaults to the service ProjectID.
	ProjectID          string
	ServiceAccountJSON string
	ServiceAccountFile string
	EndpointBase       string
	RequestTimeout     time.Duration
	Transport          string
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	IdentityServiceURL     string

	CorsConfig middleware.CorsConfig
	FCM        FCMConfig

	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// PipelineEnabled reports whether asynchronous dispatch from Pub/Sub is configured.
func (c *Config) PipelineEnabled() bool {
	return c.SubscriptionID != ""
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
// A missing service account is not a validation error: it is logged, and the
// dispatch path fails fast per request instead.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "TOPIC_ID", "source", "env")
		cfg.TopicID = val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}
	if val := os.Getenv("IDENTITY_SERVICE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "IDENTITY_SERVICE_URL", "source", "env")
		cfg.IdentityServiceURL = val
	}

	// FCM Overrides
	if val := os.Getenv("FCM_PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_PROJECT_ID", "source", "env")
		cfg.FCM.ProjectID = val
	}
	if val := os.Getenv("FCM_SERVICE_ACCOUNT"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_SERVICE_ACCOUNT", "source", "env")
		cfg.FCM.ServiceAccountJSON = val
	}
	if val := os.Getenv("FCM_SERVICE_ACCOUNT_FILE"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_SERVICE_ACCOUNT_FILE", "source", "env")
		cfg.FCM.ServiceAccountFile = val
	}
	if val := os.Getenv("FCM_ENDPOINT_BASE"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_ENDPOINT_BASE", "source", "env")
		cfg.FCM.EndpointBase = val
	}
	if val := os.Getenv("FCM_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			logger.Debug("Overriding config value", "key", "FCM_REQUEST_TIMEOUT", "source", "env")
			cfg.FCM.RequestTimeout = d
		}
	}
	if val := os.Getenv("FCM_TRANSPORT"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_TRANSPORT", "source", "env")
		cfg.FCM.Transport = strings.ToLower(strings.TrimSpace(val))
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.FCM.ProjectID == "" {
		cfg.FCM.ProjectID = cfg.ProjectID
	}
	if cfg.ProjectID == "" {
		cfg.ProjectID = cfg.FCM.ProjectID
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML, PROJECT_ID or FCM_PROJECT_ID env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.FCM.RequestTimeout <= 0 {
		cfg.FCM.RequestTimeout = 10 * time.Second
	}
	switch cfg.FCM.Transport {
	case "":
		cfg.FCM.Transport = TransportHTTP
	case TransportHTTP, TransportSDK:
	default:
		return nil, fmt.Errorf("fcm transport %q is not supported (use %q or %q)", cfg.FCM.Transport, TransportHTTP, TransportSDK)
	}

	if cfg.FCM.ServiceAccountJSON == "" && cfg.FCM.ServiceAccountFile == "" {
		logger.Error("Missing FCM_SERVICE_ACCOUNT; every dispatch will fail until it is configured")
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
