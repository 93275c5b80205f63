package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

// DefaultEndpointBase is the public FCM API host.
const DefaultEndpointBase = "https://fcm.googleapis.com"

// HTTPConfig configures the raw HTTP v1 sender.
type HTTPConfig struct {
	ProjectID    string
	EndpointBase string
	Timeout      time.Duration
	// HTTPClient, if set, takes precedence over Timeout.
	HTTPClient *http.Client
}

// invalidator is implemented by token sources that can drop a rejected credential.
type invalidator interface {
	Invalidate()
}

// HTTPSender posts one message per call to the project's messages:send endpoint.
type HTTPSender struct {
	tokens  dispatch.TokenSource
	client  *http.Client
	sendURL string
	logger  *slog.Logger
}

// SendURL returns the per-project send endpoint.
func SendURL(base, projectID string) string {
	if base == "" {
		base = DefaultEndpointBase
	}
	return fmt.Sprintf("%s/v1/projects/%s/messages:send", strings.TrimRight(base, "/"), url.PathEscape(projectID))
}

func NewHTTPSender(cfg HTTPConfig, tokens dispatch.TokenSource, logger *slog.Logger) *HTTPSender {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPSender{
		tokens:  tokens,
		client:  client,
		sendURL: SendURL(cfg.EndpointBase, cfg.ProjectID),
		logger:  logger.With("component", "FCMHTTPSender"),
	}
}

// Send performs exactly one provider call. The provider body is returned
// verbatim on success and embedded verbatim in the error otherwise.
func (s *HTTPSender) Send(ctx context.Context, req dispatch.Request) (*dispatch.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(BuildMessage(req))
	if err != nil {
		return nil, dispatch.NewError(dispatch.KindProviderDispatch, "failed to marshal payload: "+err.Error(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sendURL, bytes.NewReader(payload))
	if err != nil {
		return nil, dispatch.NewError(dispatch.KindProviderDispatch, err.Error(), err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		s.logger.Error("FCM transport failure", "err", err)
		return nil, dispatch.NewError(dispatch.KindProviderDispatch, err.Error(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dispatch.NewError(dispatch.KindProviderDispatch, "failed to read FCM response: "+err.Error(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			// Drop the credential so the next request mints a fresh one.
			if inv, ok := s.tokens.(invalidator); ok {
				inv.Invalidate()
			}
		}
		s.logger.Warn("FCM rejected message", "status", resp.StatusCode)
		return nil, dispatch.ProviderError(resp.StatusCode, body)
	}

	return &dispatch.Result{StatusCode: resp.StatusCode, Body: body}, nil
}
