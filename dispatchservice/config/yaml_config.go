// --- File: dispatchservice/config/yaml_config.go ---
package config

import (
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlFCMConfig struct {
	ProjectID          string `yaml:"project_id"`
	ServiceAccountFile string `yaml:"service_account_file"`
	EndpointBase       string `yaml:"send_endpoint_base"`
	RequestTimeout     string `yaml:"request_timeout"`
	Transport          string `yaml:"transport"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string         `yaml:"project_id"`
	ListenAddr             string         `yaml:"listen_addr"`
	TopicID                string         `yaml:"topic_id"`
	SubscriptionID         string         `yaml:"subscription_id"`
	SubscriptionDLQTopicID string         `yaml:"subscription_dlq_topic_id"`
	IdentityServiceURL     string         `yaml:"identity_service_url"`
	CorsConfig             YamlCorsConfig `yaml:"cors"`
	FCMConfig              YamlFCMConfig  `yaml:"fcm"`
	NumPipelineWorkers     int            `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
// An unparsable request_timeout is logged and left to the validated default.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:          baseCfg.ProjectID,
		ListenAddr:         baseCfg.ListenAddr,
		TopicID:            baseCfg.TopicID,
		SubscriptionID:     baseCfg.SubscriptionID,
		IdentityServiceURL: baseCfg.IdentityServiceURL,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		FCM: FCMConfig{
			ProjectID:          baseCfg.FCMConfig.ProjectID,
			ServiceAccountFile: baseCfg.FCMConfig.ServiceAccountFile,
			EndpointBase:       baseCfg.FCMConfig.EndpointBase,
			Transport:          baseCfg.FCMConfig.Transport,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if raw := baseCfg.FCMConfig.RequestTimeout; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			logger.Warn("Ignoring invalid fcm.request_timeout", "value", raw, "err", err)
		} else {
			cfg.FCM.RequestTimeout = d
		}
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"fcm_transport", cfg.FCM.Transport,
	)

	return cfg, nil
}
