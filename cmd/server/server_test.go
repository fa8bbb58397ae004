package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harrylevesque/makerdash/internal/auth"
	"github.com/harrylevesque/makerdash/internal/config"
)

func TestNewIssuer(t *testing.T) {
	logger := zap.NewNop()
	hash, err := auth.HashPassword("hunter22")
	require.NoError(t, err)

	issuer, err := newIssuer(config.Config{}, nil, logger)
	require.NoError(t, err)
	assert.Nil(t, issuer, "no password hash leaves the API open")

	withAuth := config.Config{Auth: config.AuthConfig{Username: "admin", PasswordHash: hash}}
	master := []byte(strings.Repeat("m", 32))

	a, err := newIssuer(withAuth, master, logger)
	require.NoError(t, err)
	b, err := newIssuer(withAuth, master, logger)
	require.NoError(t, err)
	token, _, err := a.Issue("admin")
	require.NoError(t, err)
	claims, err := b.Parse(token)
	require.NoError(t, err, "keys derived from the same master key agree")
	assert.Equal(t, "admin", claims.Subject)

	random, err := newIssuer(withAuth, nil, logger)
	require.NoError(t, err)
	_, err = random.Parse(token)
	assert.Error(t, err)

	withAuth.Auth.JWTSecret = "0123456789abcdef"
	fixed, err := newIssuer(withAuth, nil, logger)
	require.NoError(t, err)
	token, _, err = fixed.Issue("admin")
	require.NoError(t, err)
	_, err = fixed.Parse(token)
	assert.NoError(t, err)
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCmd(config.New())
	for _, name := range []string{"config", "verbose", "demo"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}
