// Package credentials mints and caches the short-lived bearer credential used to
// call the messaging provider, derived from a long-lived service account.
package credentials

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2/google"
)

// ErrMissingConfiguration is returned when the service account is absent or unusable.
var ErrMissingConfiguration = errors.New("missing FCM service account configuration")

// ServiceCredential is the immutable long-lived identity loaded once at startup.
type ServiceCredential struct {
	// ClientEmail is the service principal, used as both issuer and subject.
	ClientEmail string
	// TokenURI is the token-issuance endpoint and the assertion audience.
	TokenURI   string
	PrivateKey *rsa.PrivateKey
}

// ParseServiceAccount decodes a service account JSON key file.
// The PEM key is parsed here so a malformed key surfaces at startup rather than per request.
func ParseServiceAccount(jsonKey []byte) (*ServiceCredential, error) {
	if len(jsonKey) == 0 {
		return nil, ErrMissingConfiguration
	}

	cfg, err := google.JWTConfigFromJSON(jsonKey, MessagingScope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingConfiguration, err)
	}
	if cfg.Email == "" {
		return nil, fmt.Errorf("%w: client_email is empty", ErrMissingConfiguration)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private_key: %v", ErrMissingConfiguration, err)
	}

	return &ServiceCredential{
		ClientEmail: cfg.Email,
		TokenURI:    cfg.TokenURL,
		PrivateKey:  key,
	}, nil
}

// LoadServiceCredential reads the service account from an inline JSON value,
// falling back to a file path when the inline value is empty.
func LoadServiceCredential(inlineJSON, path string) (*ServiceCredential, error) {
	if inlineJSON != "" {
		return ParseServiceAccount([]byte(inlineJSON))
	}
	if path == "" {
		return nil, ErrMissingConfiguration
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingConfiguration, err)
	}
	return ParseServiceAccount(raw)
}
