package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/wildalert/internal/conf"
)

const testConfig = `
webserver:
  enabled: false
seed:
  demo: false
mqtt:
  password: hunter2
security:
  sessionsecret: 0123456789abcdef0123456789abcdef
  jwtsecret: fedcba9876543210fedcba9876543210
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	settings := &conf.Settings{Version: "test"}
	root := RootCommand(settings)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--config", path}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestConfigCommandRedactsSecrets(t *testing.T) {
	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "webserver:")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "0123456789abcdef0123456789abcdef")
}

func TestTokenCommand(t *testing.T) {
	out, err := execute(t, "token", "--role=admin", "--subject=control-room")
	require.NoError(t, err)

	raw := strings.TrimSpace(out)
	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte("fedcba9876543210fedcba9876543210"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "operator", claims["role"])
	assert.Equal(t, "control-room", claims["sub"])
}

func TestTokenCommandRejectsUnknownRole(t *testing.T) {
	_, err := execute(t, "token", "--role=ranger")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role")
}

func TestSimulateCommand(t *testing.T) {
	out, err := execute(t, "simulate", "--ticks=5", "--seed=42", "--verify")
	require.NoError(t, err)
	assert.Contains(t, out, "ticks: 5")
	assert.Contains(t, out, "SPECIES")
}

func TestMissingConfigFile(t *testing.T) {
	settings := &conf.Settings{}
	root := RootCommand(settings)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "config"})
	require.Error(t, root.Execute())
}
