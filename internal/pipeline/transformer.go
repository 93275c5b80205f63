// Package pipeline consumes dispatch requests from Pub/Sub and hands each one to
// the same Sender used by the HTTP endpoint.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

// DispatchRequestTransformer decodes a raw message payload into a dispatch.Request.
// Malformed payloads and payloads without a device token are skipped with an error
// so the StreamingService can Nack them towards the dead-letter topic.
func DispatchRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*dispatch.Request, bool, error) {
	var req dispatch.Request
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal dispatch request from message %s: %w", msg.ID, err)
	}

	if err := req.Validate(); err != nil {
		return nil, true, fmt.Errorf("invalid dispatch request in message %s: %w", msg.ID, err)
	}

	return &req, false, nil
}
