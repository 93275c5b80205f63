// --- File: cmd/dispatchservice/rundispatchservice.go ---
package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-push-dispatch-service/dispatchservice"
	"github.com/tinywideclouds/go-push-dispatch-service/dispatchservice/config"
	"github.com/tinywideclouds/go-push-dispatch-service/internal/credentials"
	"github.com/tinywideclouds/go-push-dispatch-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"

	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-push-dispatch-service")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, _ := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Sender ---
	sender, err := newSender(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create FCM sender", "err", err)
		os.Exit(1)
	}

	// --- Auth (optional) ---
	var authMiddleware func(http.Handler) http.Handler
	if cfg.IdentityServiceURL != "" {
		jwksURL, err := middleware.DiscoverAndValidateJWTConfig(cfg.IdentityServiceURL, middleware.RSA256, logger)
		if err != nil {
			logger.Error("JWT discovery failed", "err", err)
			os.Exit(1)
		}
		authMiddleware, err = middleware.NewJWKSAuthMiddleware(jwksURL, logger)
		if err != nil {
			logger.Error("JWKS middleware failed", "err", err)
			os.Exit(1)
		}
		logger.Info("Inbound authentication enabled", "identity_service", cfg.IdentityServiceURL)
	}

	// --- Consumer (optional) ---
	var consumer messagepipeline.MessageConsumer
	if cfg.PipelineEnabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Error("PubSub client failed", "err", err)
			os.Exit(1)
		}
		defer psClient.Close()

		consumer, err = newIngestionConsumer(ctx, cfg, psClient, logger)
		if err != nil {
			logger.Error("PubSub consumer failed", "err", err)
			os.Exit(1)
		}
	}

	service, err := dispatchservice.New(cfg, sender, consumer, authMiddleware, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = service.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting service...", "listen_addr", cfg.ListenAddr, "fcm_transport", cfg.FCM.Transport)
	if err := service.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

// newSender builds the configured transport. A missing or malformed service
// account is logged and yields a broker that fails every request fast.
func newSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (dispatch.Sender, error) {
	if cfg.FCM.Transport == config.TransportSDK {
		var opts []option.ClientOption
		if cfg.FCM.ServiceAccountJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.FCM.ServiceAccountJSON)))
		} else if cfg.FCM.ServiceAccountFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.FCM.ServiceAccountFile))
		}
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FCM.ProjectID}, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firebase App: %w", err)
		}
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create FCM messaging client: %w", err)
		}
		return fcm.NewSDKSender(fcmMessaging, logger), nil
	}

	cred, err := credentials.LoadServiceCredential(cfg.FCM.ServiceAccountJSON, cfg.FCM.ServiceAccountFile)
	if err != nil {
		logger.Error("Service account unavailable; dispatch will fail until configured", "err", err)
	}
	broker := credentials.NewBroker(cred,
		credentials.WithHTTPClient(&http.Client{Timeout: cfg.FCM.RequestTimeout}),
		credentials.WithLogger(logger),
	)
	return fcm.NewHTTPSender(fcm.HTTPConfig{
		ProjectID:    cfg.FCM.ProjectID,
		EndpointBase: cfg.FCM.EndpointBase,
		Timeout:      cfg.FCM.RequestTimeout,
	}, broker, logger), nil
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	subConfig := &pubsubpb.Subscription{
		Name:                  sub,
		Topic:                 convertPubsub(cfg.ProjectID, cfg.TopicID, "topics"),
		AckDeadlineSeconds:    10,
		EnableMessageOrdering: false,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}

	if cfg.TopicID != "" {
		logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
		_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
		if err != nil {
			if status.Code(err) == codes.AlreadyExists {
				logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
			} else {
				logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
				return nil, fmt.Errorf("could not create sub: %s", sub)
			}
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
