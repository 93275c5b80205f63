package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

const (
	// RequestIDHeader is read from the inbound request and echoed on the response.
	RequestIDHeader = "X-Request-ID"

	maxBodyBytes = 1 << 20

	msgMethodNotAllowed = "Only POST allowed"
	msgMissingToken     = "Missing token"
	msgInvalidJSON      = "Invalid JSON body"
)

type DispatchAPI struct {
	Sender dispatch.Sender
	Logger *slog.Logger
}

func NewDispatchAPI(sender dispatch.Sender, logger *slog.Logger) *DispatchAPI {
	return &DispatchAPI{
		Sender: sender,
		Logger: logger.With("component", "DispatchAPI"),
	}
}

// Dispatch turns one inbound request into exactly one provider call.
// Every failure is converted to a plain-text response; provider diagnostics are kept verbatim.
func (api *DispatchAPI) Dispatch(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)
	logger := api.Logger.With("request_id", requestID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeText(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	var req dispatch.Request
	if err := decodeSingle(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		logger.Warn("Dispatch: JSON Decode failed", "err", err)
		writeText(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	if req.Token == "" {
		logger.Warn("Dispatch: Validation failed", "reason", "missing token")
		writeText(w, http.StatusBadRequest, msgMissingToken)
		return
	}

	res, err := api.Sender.Send(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		logger.Error("Dispatch failed", "kind", dispatch.KindOf(err).String(), "status", status, "err", err)
		writeText(w, status, err.Error())
		return
	}

	logger.Info("Dispatched", "provider_status", res.StatusCode)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Body)
}

// RequirePost answers every method other than POST with 405 before next runs.
// It sits outside authentication so an unauthenticated GET still sees 405.
func RequirePost(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeText(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decodeSingle decodes exactly one JSON value; trailing data is an error.
func decodeSingle(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// statusFor maps an error kind to the caller-facing status.
func statusFor(err error) int {
	if dispatch.KindOf(err) == dispatch.KindClientInput {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
