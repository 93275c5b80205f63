// Package fcm builds Firebase Cloud Messaging HTTP v1 payloads and submits them.
package fcm

import (
	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

// Fixed Android delivery hints.
const (
	AndroidPriorityHigh      = "HIGH"
	DefaultChannelID         = "default"
	DefaultNotificationSound = "default"
)

// Envelope is the body of a messages:send call.
type Envelope struct {
	Message Message `json:"message"`
}

// Message is the provider message. Notification is a pointer so that a request
// without visible content omits the block entirely instead of sending an empty one.
type Message struct {
	Token        string            `json:"token"`
	Notification *Notification     `json:"notification,omitempty"`
	Android      AndroidConfig     `json:"android"`
	Data         map[string]string `json:"data"`
}

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type AndroidConfig struct {
	Priority     string              `json:"priority"`
	Notification AndroidNotification `json:"notification"`
}

type AndroidNotification struct {
	ChannelID string `json:"channel_id"`
	Sound     string `json:"sound"`
}

// BuildMessage maps a validated request onto the provider envelope.
func BuildMessage(req dispatch.Request) Envelope {
	msg := Message{
		Token: req.Token,
		Android: AndroidConfig{
			Priority: AndroidPriorityHigh,
			Notification: AndroidNotification{
				ChannelID: DefaultChannelID,
				Sound:     DefaultNotificationSound,
			},
		},
		Data: req.Data,
	}

	if req.HasVisibleContent() {
		msg.Notification = &Notification{
			Title: req.Title,
			Body:  req.Body,
		}
	}

	if msg.Data == nil {
		msg.Data = map[string]string{}
	}

	return Envelope{Message: msg}
}
