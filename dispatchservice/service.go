// --- File: dispatchservice/service.go ---
package dispatchservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-push-dispatch-service/dispatchservice/config"
	"github.com/tinywideclouds/go-push-dispatch-service/internal/api"
	"github.com/tinywideclouds/go-push-dispatch-service/internal/pipeline"
	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[dispatch.Request]
	logger          *slog.Logger
}

// New assembles the service. consumer may be nil when no subscription is
// configured; the service then only serves the HTTP endpoint.
func New(
	cfg *config.Config,
	sender dispatch.Sender,
	consumer messagepipeline.MessageConsumer,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Pipeline (optional)
	var streamingService *messagepipeline.StreamingService[dispatch.Request]
	if consumer != nil {
		var err error
		streamingService, err = messagepipeline.NewStreamingService(
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
			consumer,
			pipeline.DispatchRequestTransformer,
			pipeline.NewProcessor(sender, logger),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 3. API
	dispatchAPI := api.NewDispatchAPI(sender, logger)

	if authMiddleware == nil {
		authMiddleware = func(h http.Handler) http.Handler { return h }
	}

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)
	preflight := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	// No method in the pattern: RequirePost answers non-POST methods with 405 ahead of auth.
	for _, path := range []string{"/{$}", "/api/v1/dispatch"} {
		mux.Handle(path, corsMiddleware(api.RequirePost(authMiddleware(http.HandlerFunc(dispatchAPI.Dispatch)))))
		mux.Handle("OPTIONS "+path, preflight)
	}

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Dispatch pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Processing pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
