package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/analysis-runner/internal/auth"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestConfigCommandMasksSecret(t *testing.T) {
	t.Setenv("ANALYST_AUTH_JWT_SECRET", "a-secret-for-the-config-command")

	out := execute(t, "config")

	assert.Contains(t, out, "port: 8080")
	assert.NotContains(t, out, "a-secret-for-the-config-command")
}

func TestTokenCommand(t *testing.T) {
	const secret = "a-secret-for-the-token-command"
	t.Setenv("ANALYST_AUTH_JWT_SECRET", secret)

	out := execute(t, "token", "--subject", "ci", "--ttl", "1h")

	tokens, err := auth.NewTokenService(secret, 0)
	require.NoError(t, err)
	subject, err := tokens.Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ci", subject)
}
