package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

const (
	// MessagingScope is the OAuth scope granted to the minted access token.
	MessagingScope = "https://www.googleapis.com/auth/firebase.messaging"

	// JWTBearerGrantType is the token-exchange grant for signed assertions.
	JWTBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// SafetyMargin is subtracted from a cached token's expiry before it is reused.
	SafetyMargin = 60 * time.Second

	// DefaultTokenLifetime applies when the token endpoint omits expires_in.
	// It is also the lifetime requested for the signed assertion.
	DefaultTokenLifetime = 3600 * time.Second
)

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   *int64 `json:"expires_in"`
}

// Broker owns the service credential and a single cached access token.
// The cache slot is replaced whole; concurrent misses are coalesced into one exchange.
type Broker struct {
	cred       *ServiceCredential
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger

	slot  atomic.Pointer[cachedToken]
	group singleflight.Group
}

// Option configures a Broker.
type Option func(*Broker)

// WithHTTPClient overrides the client used for the token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Broker) { b.httpClient = c }
}

// WithClock injects the time source, used by tests for deterministic expiry.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

// WithLogger sets the broker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) { b.logger = logger }
}

// NewBroker creates a Broker. A nil credential yields a broker whose every
// call fails with a configuration error and performs no network I/O.
func NewBroker(cred *ServiceCredential, opts ...Option) *Broker {
	b := &Broker{
		cred:       cred,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "CredentialBroker")
	return b
}

// AccessToken returns a bearer token that stays valid for at least SafetyMargin.
func (b *Broker) AccessToken(ctx context.Context) (string, error) {
	if b.cred == nil {
		return "", dispatch.NewError(dispatch.KindConfiguration, ErrMissingConfiguration.Error(), ErrMissingConfiguration)
	}

	if tok, ok := b.cached(); ok {
		return tok, nil
	}

	// The shared exchange is detached from any one caller's cancellation and
	// is bounded by the HTTP client timeout. Each caller abandons only its own wait.
	exchangeCtx := context.WithoutCancel(ctx)
	ch := b.group.DoChan("access_token", func() (interface{}, error) {
		// Another caller may have refreshed while we were waiting to enter.
		if tok, ok := b.cached(); ok {
			return tok, nil
		}
		return b.exchange(exchangeCtx)
	})

	select {
	case <-ctx.Done():
		return "", dispatch.NewError(dispatch.KindCredentialExchange, "token exchange abandoned: "+ctx.Err().Error(), ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token so the next call performs a fresh exchange.
func (b *Broker) Invalidate() {
	b.slot.Store(nil)
}

func (b *Broker) cached() (string, bool) {
	t := b.slot.Load()
	if t == nil {
		return "", false
	}
	if !t.expiresAt.Add(-SafetyMargin).After(b.now()) {
		return "", false
	}
	return t.accessToken, true
}

func (b *Broker) exchange(ctx context.Context) (string, error) {
	now := b.now()

	assertion, err := b.signAssertion(now)
	if err != nil {
		return "", dispatch.NewError(dispatch.KindCredentialExchange, "failed to sign assertion: "+err.Error(), err)
	}

	form := url.Values{
		"grant_type": {JWTBearerGrantType},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cred.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", dispatch.NewError(dispatch.KindCredentialExchange, "failed to build token request: "+err.Error(), err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.logger.Error("Token exchange request failed", "err", err)
		return "", dispatch.NewError(dispatch.KindCredentialExchange, "token exchange request failed: "+err.Error(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", dispatch.NewError(dispatch.KindCredentialExchange, "failed to read token response: "+err.Error(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b.logger.Warn("Token exchange rejected", "status", resp.StatusCode)
		return "", &dispatch.Error{
			Kind:    dispatch.KindCredentialExchange,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("Token exchange failed: %d %s", resp.StatusCode, body),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", dispatch.NewError(dispatch.KindCredentialExchange, "failed to decode token response: "+err.Error(), err)
	}
	if tr.AccessToken == "" {
		return "", &dispatch.Error{
			Kind:    dispatch.KindCredentialExchange,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("Token exchange returned no access_token: %s", body),
		}
	}

	lifetime := DefaultTokenLifetime
	if tr.ExpiresIn != nil {
		lifetime = time.Duration(*tr.ExpiresIn) * time.Second
	}

	b.slot.Store(&cachedToken{
		accessToken: tr.AccessToken,
		expiresAt:   now.Add(lifetime),
	})
	b.logger.Debug("Access token refreshed", "expires_in", lifetime.String())

	return tr.AccessToken, nil
}

func (b *Broker) signAssertion(now time.Time) (string, error) {
	// MapClaims keeps aud a plain string; ClaimStrings would encode it as an array.
	claims := jwt.MapClaims{
		"scope": MessagingScope,
		"iss":   b.cred.ClientEmail,
		"sub":   b.cred.ClientEmail,
		"aud":   b.cred.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(DefaultTokenLifetime).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(b.cred.PrivateKey)
}
