package fcm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// SDKSender dispatches through the Firebase Admin SDK, which manages its own credentials.
type SDKSender struct {
	client MessagingClient
	logger *slog.Logger
}

func NewSDKSender(client MessagingClient, logger *slog.Logger) *SDKSender {
	return &SDKSender{
		client: client,
		logger: logger.With("component", "FCMSDKSender"),
	}
}

// Send mirrors HTTPSender: the success body is the provider's {"name": ...} document.
func (s *SDKSender) Send(ctx context.Context, req dispatch.Request) (*dispatch.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	messageID, err := s.client.Send(ctx, toSDKMessage(req))
	if err != nil {
		if messaging.IsUnregistered(err) {
			s.logger.Warn("Device token is no longer registered", "err", err)
		}
		// The SDK has already consumed the response body; only its parsed error text survives.
		if resp := errorutils.HTTPResponse(err); resp != nil {
			return nil, &dispatch.Error{
				Kind:    dispatch.KindProviderDispatch,
				Status:  resp.StatusCode,
				Message: fmt.Sprintf("FCM error %d: %s", resp.StatusCode, err),
				Err:     err,
			}
		}
		s.logger.Error("FCM transport failure", "err", err)
		return nil, dispatch.NewError(dispatch.KindProviderDispatch, err.Error(), err)
	}

	body, err := json.Marshal(map[string]string{"name": messageID})
	if err != nil {
		return nil, dispatch.NewError(dispatch.KindProviderDispatch, err.Error(), err)
	}
	return &dispatch.Result{StatusCode: http.StatusOK, Body: body}, nil
}

func toSDKMessage(req dispatch.Request) *messaging.Message {
	msg := &messaging.Message{
		Token: req.Token,
		Data:  req.Data,
		Android: &messaging.AndroidConfig{
			// The SDK validates priority against its lowercase names.
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: DefaultChannelID,
				Sound:     DefaultNotificationSound,
			},
		},
	}
	if req.HasVisibleContent() {
		msg.Notification = &messaging.Notification{
			Title: req.Title,
			Body:  req.Body,
		}
	}
	if msg.Data == nil {
		msg.Data = map[string]string{}
	}
	return msg
}
