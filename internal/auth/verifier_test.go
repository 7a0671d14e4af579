package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return priv, &priv.PublicKey
}

func signToken(t *testing.T, priv *rsa.PrivateKey, username, avatar string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims{
		Username:  username,
		AvatarURL: avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func TestVerify_ValidToken(t *testing.T) {
	priv, pub := newKeyPair(t)
	v := NewVerifier(pub, zap.NewNop())

	identity, err := v.Verify(context.Background(), signToken(t, priv, "alice01", "https://cdn/avatar.png"))
	require.NoError(t, err)
	assert.Equal(t, "alice01", identity.Username)
	assert.Equal(t, "https://cdn/avatar.png", identity.AvatarURL)
}

func TestVerify_NilKey(t *testing.T) {
	v := NewVerifier(nil, zap.NewNop())
	_, err := v.Verify(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestVerify_EmptyToken(t *testing.T) {
	_, pub := newKeyPair(t)
	v := NewVerifier(pub, zap.NewNop())
	_, err := v.Verify(context.Background(), "")
	assert.Error(t, err)
}

func TestVerify_WrongKey(t *testing.T) {
	priv, _ := newKeyPair(t)
	_, otherPub := newKeyPair(t)
	v := NewVerifier(otherPub, zap.NewNop())

	_, err := v.Verify(context.Background(), signToken(t, priv, "alice01", ""))
	assert.Error(t, err)
}

func TestVerify_ExpiredToken(t *testing.T) {
	priv, pub := newKeyPair(t)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims{
		Username: "alice01",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err := token.SignedString(priv)
	require.NoError(t, err)

	v := NewVerifier(pub, zap.NewNop())
	_, err = v.Verify(context.Background(), signed)
	assert.Error(t, err)
}

func TestVerify_RejectsUnexpectedAlgorithm(t *testing.T) {
	_, pub := newKeyPair(t)
	v := NewVerifier(pub, zap.NewNop())

	// HS256 token signed with the public key bytes as the HMAC secret.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{Username: "mallory"})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), signed)
	assert.Error(t, err)
}

func TestVerify_CancelledContext(t *testing.T) {
	priv, pub := newKeyPair(t)
	v := NewVerifier(pub, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := v.Verify(ctx, signToken(t, priv, "alice01", ""))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchVerifier_ServesKey(t *testing.T) {
	priv, _ := newKeyPair(t)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(pemBytes)
	}))
	defer srv.Close()

	v := FetchVerifier(context.Background(), srv.URL, srv.Client(), zap.NewNop())
	identity, err := v.Verify(context.Background(), signToken(t, priv, "alice01", ""))
	require.NoError(t, err)
	assert.Equal(t, "alice01", identity.Username)
}

func TestFetchVerifier_FailureIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	v := FetchVerifier(context.Background(), srv.URL, srv.Client(), zap.NewNop())
	_, err := v.Verify(context.Background(), "token")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestFetchVerifier_EmptyURL(t *testing.T) {
	v := FetchVerifier(context.Background(), "", http.DefaultClient, zap.NewNop())
	_, err := v.Verify(context.Background(), "token")
	assert.ErrorIs(t, err, ErrNoKey)
}
