package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadJSONLayout(t *testing.T) {
	path := writeFile(t, "client.config", `{
  "client": {
    "client_id": "CONSUMERKEY",
    "account_id": "12345",
    "redirect_url": "https://127.0.0.1:8080",
    "refresh_token": "refresh-1"
  }
}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	creds := cfg.Credentials()
	assert.Equal(t, "CONSUMERKEY", creds.ClientID)
	assert.Equal(t, "12345", creds.AccountID)
	assert.Equal(t, "https://127.0.0.1:8080", creds.RedirectURL)
	assert.Equal(t, "refresh-1", creds.RefreshToken)
	assert.Empty(t, creds.AccessToken)
	assert.Empty(t, cfg.Options().Root)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "client.yaml", `
root: https://sandbox.example.com/v1
client:
  client_id: KEY
  cert_path: /etc/ameritrade/cert.pem
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	opts := cfg.Options()
	assert.Equal(t, "https://sandbox.example.com/v1", opts.Root)
	assert.Equal(t, "KEY", opts.Credentials.ClientID)
	assert.Equal(t, "/etc/ameritrade/cert.pem", opts.Credentials.CertPath)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "client.yaml", "client:\n  client_id: FILE\n  refresh_token: from-file\n")
	t.Setenv(EnvClientID, "ENV")
	t.Setenv(EnvAccessToken, "access-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ENV", cfg.Client.ClientID)
	assert.Equal(t, "from-file", cfg.Client.RefreshToken)
	assert.Equal(t, "access-env", cfg.Client.AccessToken)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv(EnvClientID, "ENV")
	t.Setenv(EnvAccountID, "999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "999", cfg.Credentials().AccountID)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing client id", "client:\n  account_id: 1\n"},
		{"relative redirect", "client:\n  client_id: K\n  redirect_url: /callback\n"},
		{"bad root", "root: not a url\nclient:\n  client_id: K\n"},
		{"not yaml", "client: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "client.yaml", tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
