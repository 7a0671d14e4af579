// Package auth verifies join-handshake authentication tokens against a
// public key fetched from the external authentication service.
package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Identity is the decoded content of a valid token.
type Identity struct {
	Username  string
	AvatarURL string
}

// ErrNoKey indicates the verifier has no usable public key, so every
// join is treated as unauthenticated.
var ErrNoKey = errors.New("auth: no verification key available")

// claims is the token payload shape issued by the auth service.
type claims struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
	jwt.RegisteredClaims
}

// Verifier validates tokens with an RSA public key. A Verifier without a
// key is functional: Verify fails and joins proceed unauthenticated.
type Verifier struct {
	key *rsa.PublicKey
	log *zap.Logger
}

// NewVerifier creates a Verifier around an already-parsed key. key may
// be nil.
func NewVerifier(key *rsa.PublicKey, logger *zap.Logger) *Verifier {
	return &Verifier{key: key, log: logger}
}

// FetchVerifier retrieves the PEM public key from keyURL and builds a
// Verifier with it. Any failure is non-fatal: the returned Verifier has
// a placeholder (nil) key and all joins are treated as unauthenticated.
//
// Precondition: client and logger must be non-nil.
func FetchVerifier(ctx context.Context, keyURL string, client *http.Client, logger *zap.Logger) *Verifier {
	key, err := fetchKey(ctx, keyURL, client)
	if err != nil {
		logger.Warn("fetching auth verification key, joins will be unauthenticated",
			zap.String("url", keyURL),
			zap.Error(err),
		)
		return NewVerifier(nil, logger)
	}
	logger.Info("auth verification key loaded", zap.String("url", keyURL))
	return NewVerifier(key, logger)
}

func fetchKey(ctx context.Context, keyURL string, client *http.Client) (*rsa.PublicKey, error) {
	if keyURL == "" {
		return nil, errors.New("no key URL configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, keyURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building key request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching key: unexpected status %s", resp.Status)
	}
	pem, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("reading key body: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parsing key PEM: %w", err)
	}
	return key, nil
}

// Verify decodes token and returns the identity it carries. Failure is a
// normal outcome during join: the member simply has no username/avatar.
func (v *Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	if v.key == nil {
		return Identity{}, ErrNoKey
	}
	if token == "" {
		return Identity{}, errors.New("auth: empty token")
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return Identity{}, fmt.Errorf("auth: parsing token: %w", err)
	}
	return Identity{Username: c.Username, AvatarURL: c.AvatarURL}, nil
}
