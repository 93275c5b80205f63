package fcm_test

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-dispatch-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

// MockClient satisfies the MessagingClient interface
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func TestSDKSender_Send(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	t.Run("Happy Path", func(t *testing.T) {
		mockClient := new(MockClient)
		sender := fcm.NewSDKSender(mockClient, logger)

		mockClient.On("Send", ctx, mock.MatchedBy(func(msg *messaging.Message) bool {
			return msg.Token == "device-1" &&
				msg.Notification == nil &&
				msg.Android.Priority == "high" &&
				msg.Android.Notification.ChannelID == "default" &&
				msg.Data != nil
		})).Return("projects/p/messages/123", nil)

		res, err := sender.Send(ctx, dispatch.Request{Token: "device-1"})

		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"projects/p/messages/123"}`, string(res.Body))
		mockClient.AssertExpectations(t)
	})

	t.Run("Visible content builds a notification", func(t *testing.T) {
		mockClient := new(MockClient)
		sender := fcm.NewSDKSender(mockClient, logger)

		mockClient.On("Send", ctx, mock.MatchedBy(func(msg *messaging.Message) bool {
			return msg.Notification != nil && msg.Notification.Title == "Alert" && msg.Notification.Body == ""
		})).Return("id", nil)

		_, err := sender.Send(ctx, dispatch.Request{Token: "device-1", Title: "Alert"})

		require.NoError(t, err)
		mockClient.AssertExpectations(t)
	})

	t.Run("Transport Failure", func(t *testing.T) {
		mockClient := new(MockClient)
		sender := fcm.NewSDKSender(mockClient, logger)
		mockClient.On("Send", ctx, mock.Anything).Return("", errors.New("network down"))

		_, err := sender.Send(ctx, dispatch.Request{Token: "device-1"})

		require.Error(t, err)
		assert.Equal(t, dispatch.KindProviderDispatch, dispatch.KindOf(err))
		assert.Contains(t, err.Error(), "network down")
	})

	t.Run("Missing token never reaches the client", func(t *testing.T) {
		mockClient := new(MockClient)
		sender := fcm.NewSDKSender(mockClient, logger)

		_, err := sender.Send(ctx, dispatch.Request{})

		require.Error(t, err)
		assert.Equal(t, dispatch.KindClientInput, dispatch.KindOf(err))
		mockClient.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})
}
