package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

// NewProcessor performs exactly one dispatch attempt per message.
// Failures are logged and the message is still acknowledged: redelivery would be a retry.
func NewProcessor(
	sender dispatch.Sender,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[dispatch.Request] {

	return func(ctx context.Context, original messagepipeline.Message, request *dispatch.Request) error {
		procLogger := logger.With(
			"component", "DispatchProcessor",
			"pubsub_msg_id", original.ID,
		)

		res, err := sender.Send(ctx, *request)
		if err != nil {
			procLogger.Error("FCM Dispatch failed",
				"kind", dispatch.KindOf(err).String(),
				"err", err,
			)
			return nil
		}

		procLogger.Info("FCM Dispatched", "receipt", string(res.Body))
		return nil
	}
}
