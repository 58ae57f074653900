package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Parses File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		content := `
[credentials.spotify]
client_id = "abc"
redirect_uri = "https://example.com/auth/callback"
scope = "user-library-read"

[server]
host = "127.0.0.1"
port = 9090

[web]
base_url = "https://example.com"

[redis]
addr = "redis:6379"
db = 2
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		config, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if config.Credentials.Spotify.ClientID != "abc" {
			t.Errorf("unexpected client id: %s", config.Credentials.Spotify.ClientID)
		}
		if config.Server.Port != 9090 {
			t.Errorf("unexpected port: %d", config.Server.Port)
		}
		if config.Web.BaseURL != "https://example.com" {
			t.Errorf("unexpected base url: %s", config.Web.BaseURL)
		}
		if config.Redis.DB != 2 {
			t.Errorf("unexpected redis db: %d", config.Redis.DB)
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("Invalid TOML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		os.WriteFile(path, []byte("not [valid"), 0644)

		if _, err := LoadConfig(path); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", config.Server.Port)
	}
	if config.Redis.Addr != "localhost:6379" {
		t.Errorf("expected default redis addr, got %s", config.Redis.Addr)
	}
	if config.Credentials.Spotify.Scope != "user-library-read" {
		t.Errorf("expected default scope, got %s", config.Credentials.Spotify.Scope)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.Credentials.Spotify.ClientID = "abc"
		return c
	}

	t.Run("Valid", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("Missing Client ID", func(t *testing.T) {
		c := valid()
		c.Credentials.Spotify.ClientID = ""
		if err := c.Validate(); !errors.Is(err, ErrMissingCredentials) {
			t.Errorf("expected missing-credentials error, got %v", err)
		}
	})

	t.Run("Missing Redirect URI", func(t *testing.T) {
		c := valid()
		c.Credentials.Spotify.RedirectURI = ""
		if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected invalid-config error, got %v", err)
		}
	})

	t.Run("Missing Base URL", func(t *testing.T) {
		c := valid()
		c.Web.BaseURL = ""
		if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected invalid-config error, got %v", err)
		}
	})
}
