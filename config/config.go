package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Alias1177/ameritrade/ameritrade"
)

// Config is the credentials file. JSON is a subset of YAML, so the
// {"client": {...}} JSON layout parses as well.
type Config struct {
	Client struct {
		ClientID     string `yaml:"client_id"`
		AccountID    string `yaml:"account_id"`
		RedirectURL  string `yaml:"redirect_url"`
		RefreshToken string `yaml:"refresh_token"`
		AccessToken  string `yaml:"access_token"`
		CertPath     string `yaml:"cert_path"`
	} `yaml:"client"`
	// Root overrides the API root, e.g. for a sandbox.
	Root string `yaml:"root"`
}

// Environment variables that override file values when set.
const (
	EnvClientID     = "AMERITRADE_CLIENT_ID"
	EnvAccountID    = "AMERITRADE_ACCOUNT_ID"
	EnvRedirectURL  = "AMERITRADE_REDIRECT_URL"
	EnvRefreshToken = "AMERITRADE_REFRESH_TOKEN"
	EnvAccessToken  = "AMERITRADE_ACCESS_TOKEN"
	EnvCertPath     = "AMERITRADE_CERT_PATH"
	EnvRoot         = "AMERITRADE_ROOT"
)

// Load reads path, applies environment overrides and validates the result.
// An empty path loads from the environment only.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	override(&c.Client.ClientID, EnvClientID)
	override(&c.Client.AccountID, EnvAccountID)
	override(&c.Client.RedirectURL, EnvRedirectURL)
	override(&c.Client.RefreshToken, EnvRefreshToken)
	override(&c.Client.AccessToken, EnvAccessToken)
	override(&c.Client.CertPath, EnvCertPath)
	override(&c.Root, EnvRoot)
}

func override(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func (c *Config) Validate() error {
	if c.Client.ClientID == "" {
		return errors.New("client.client_id cannot be empty")
	}
	if c.Client.RedirectURL != "" {
		if u, err := url.Parse(c.Client.RedirectURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("client.redirect_url '%s' is not an absolute URL", c.Client.RedirectURL)
		}
	}
	if c.Root != "" {
		if u, err := url.Parse(c.Root); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("root '%s' is not an absolute URL", c.Root)
		}
	}
	return nil
}

// Credentials returns the client section as library credentials.
func (c *Config) Credentials() ameritrade.Credentials {
	return ameritrade.Credentials{
		ClientID:     c.Client.ClientID,
		AccountID:    c.Client.AccountID,
		RedirectURL:  c.Client.RedirectURL,
		RefreshToken: c.Client.RefreshToken,
		AccessToken:  c.Client.AccessToken,
		CertPath:     c.Client.CertPath,
	}
}

// Options returns client options for the file's credentials and root.
func (c *Config) Options() ameritrade.Options {
	return ameritrade.Options{Credentials: c.Credentials(), Root: c.Root}
}
