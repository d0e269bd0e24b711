// Package config provides configuration management for the token service.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SeedClient describes one client entry in the seed file. Secrets are
// plaintext in the file and hashed before storage at registration time.
type SeedClient struct {
	// ID is the client identifier; generated when empty.
	ID string `mapstructure:"id"`
	// Secret is the plaintext client secret.
	Secret string `mapstructure:"secret"`
	// Name is the human-readable client name.
	Name string `mapstructure:"name"`
	// RedirectURIs are the registered redirect URIs.
	RedirectURIs []string `mapstructure:"redirect_uris"`
	// Scopes are the approved scopes.
	Scopes []string `mapstructure:"scopes"`
	// GrantTypes are the approved grant types.
	GrantTypes []string `mapstructure:"grant_types"`
	// AccessTokenTTL optionally overrides the configured access lifetime.
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	// RefreshTokenTTL optionally overrides the configured refresh lifetime.
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// LoadSeedClients reads the YAML seed client file at path. A missing file
// is not an error; it returns an empty list so boot can proceed.
func LoadSeedClients(path string) ([]SeedClient, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	dir, file := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	v.SetConfigName(strings.TrimSuffix(file, filepath.Ext(file)))
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read seed client file: %w", err)
	}

	var out struct {
		Clients []SeedClient `mapstructure:"clients"`
	}
	if err := v.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("failed to parse seed client file: %w", err)
	}

	for i, c := range out.Clients {
		if c.Name == "" {
			return nil, fmt.Errorf("seed client %d: name is required", i)
		}
		if c.Secret == "" {
			return nil, fmt.Errorf("seed client %q: secret is required", c.Name)
		}
	}

	return out.Clients, nil
}
