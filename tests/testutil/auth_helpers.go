package testutil

import (
	"testing"
	"time"

	"github.com/kendall-kelly/portfolio-chat-api/models"
	"github.com/kendall-kelly/portfolio-chat-api/services"
	"github.com/stretchr/testify/require"
	jose "gopkg.in/go-jose/go-jose.v2"
	"gopkg.in/go-jose/go-jose.v2/jwt"
)

// SignToken issues an HS256 token the same way the login endpoint does
func SignToken(t *testing.T, tokens services.TokenConfig, subject, role string, ttl time.Duration) string {
	t.Helper()

	now := time.Now()
	token, err := services.IssueToken(tokens, subject, role, now, now.Add(ttl))
	require.NoError(t, err, "Failed to sign test token")
	return token
}

// AdminToken returns a valid admin bearer token for the app's token settings
func (a *TestApp) AdminToken(t *testing.T) string {
	return SignToken(t, a.Tokens(), a.Config.AdminUsername, models.RoleAdmin, time.Hour)
}

// VisitorToken returns a correctly signed token that carries neither the
// admin role nor the admin scope
func (a *TestApp) VisitorToken(t *testing.T) string {
	t.Helper()

	tokens := a.Tokens()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte(tokens.Secret)},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	now := time.Now()
	token, err := jwt.Signed(signer).Claims(jwt.Claims{
		Issuer:   tokens.Issuer,
		Subject:  "visitor",
		Audience: jwt.Audience{tokens.Audience},
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(time.Hour)),
	}).CompactSerialize()
	require.NoError(t, err)
	return token
}
