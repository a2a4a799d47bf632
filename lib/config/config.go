// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/doorman/lib/ref"
)

// Config is the master configuration for doorman. Both binaries load
// the same file; each validates only the sections it uses.
type Config struct {
	// Matrix configures the homeserver connection shared by the
	// gate and the bot.
	Matrix MatrixConfig `yaml:"matrix"`

	// Gate configures the invite-gate HTTP service.
	Gate GateConfig `yaml:"gate"`

	// Bot configures the join-challenge engine.
	Bot BotConfig `yaml:"bot"`
}

// MatrixConfig configures the gatekeeper's Matrix account.
type MatrixConfig struct {
	// HomeserverURL is the base URL of the homeserver hosting the
	// gatekeeper account (e.g., "https://matrix.example.org").
	HomeserverURL string `yaml:"homeserver_url"`

	// UserID is the gatekeeper's full Matrix user ID
	// (e.g., "@doorman:example.org").
	UserID string `yaml:"user_id"`

	// AccessTokenFile is the path to a file holding the account's
	// access token. "-" reads the token from stdin.
	AccessTokenFile string `yaml:"access_token_file"`
}

// ParseUserID returns the configured user ID as a validated ref.UserID.
// Call after Validate.
func (m MatrixConfig) ParseUserID() (ref.UserID, error) {
	return ref.ParseUserID(m.UserID)
}

// GateConfig configures the invite gate.
type GateConfig struct {
	// ListenAddress is the TCP address the HTTP service binds
	// (e.g., ":8080").
	ListenAddress string `yaml:"listen_address"`

	// Turnstile configures Cloudflare Turnstile verification.
	// Required: every invite request must carry a valid response
	// token.
	Turnstile TurnstileConfig `yaml:"turnstile"`

	// GitHub configures the optional OAuth identity heuristic.
	// When absent, requests from high-abuse origins are invited
	// directly after Turnstile verification.
	GitHub *GitHubConfig `yaml:"github,omitempty"`

	// HighAbuseOrigins lists homeserver names whose users must
	// pass the identity-age heuristic before being invited. Only
	// meaningful when GitHub is configured.
	HighAbuseOrigins []string `yaml:"high_abuse_origins"`

	// MinAccountAge is the minimum age of a linked GitHub account
	// for users from high-abuse origins. Default: 720h (30 days).
	MinAccountAge Duration `yaml:"min_account_age"`

	// PendingTTL bounds the lifetime of a parked invite awaiting
	// its OAuth callback. Default: 1h.
	PendingTTL Duration `yaml:"pending_ttl"`

	// RequireProfile escalates a failed display-name fetch from a
	// logged warning to a request failure. Default: false.
	RequireProfile bool `yaml:"require_profile"`
}

// TurnstileConfig configures Cloudflare Turnstile.
type TurnstileConfig struct {
	// SiteKey is the public site key rendered into the room-picker
	// page.
	SiteKey string `yaml:"site_key"`

	// SecretKeyFile is the path to a file holding the siteverify
	// secret key.
	SecretKeyFile string `yaml:"secret_key_file"`
}

// GitHubConfig configures the GitHub OAuth app used by the
// identity-age heuristic.
type GitHubConfig struct {
	// ClientID is the OAuth app client ID.
	ClientID string `yaml:"client_id"`

	// ClientSecretFile is the path to a file holding the OAuth app
	// client secret.
	ClientSecretFile string `yaml:"client_secret_file"`

	// RedirectURL is the externally reachable URL of the gate's
	// /callback endpoint, as registered with the OAuth app.
	RedirectURL string `yaml:"redirect_url"`
}

// BotConfig configures the join-challenge engine.
type BotConfig struct {
	// ProtectedRooms lists the rooms the engine gates, as room IDs
	// ("!...") or aliases ("#..."). Empty means every room the
	// gatekeeper account has joined.
	ProtectedRooms []string `yaml:"protected_rooms"`

	// StalenessBound is the maximum age of a membership event the
	// engine will still challenge. Joins older than this (replayed
	// on reconnect) are skipped. Default: 10m.
	StalenessBound Duration `yaml:"staleness_bound"`
}

// Duration is a time.Duration that unmarshals from a Go duration
// string ("30s", "1h", "720h").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration defaults applied before the file
// is loaded. The file is still required; defaults only cover the
// optional knobs.
func Default() *Config {
	return &Config{
		Gate: GateConfig{
			MinAccountAge: Duration(720 * time.Hour),
			PendingTTL:    Duration(time.Hour),
		},
		Bot: BotConfig{
			StalenessBound: Duration(10 * time.Minute),
		},
	}
}

// Load loads configuration from the path in the DOORMAN_CONFIG
// environment variable. There are no fallbacks: if the variable is
// not set, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv("DOORMAN_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("DOORMAN_CONFIG environment variable not set; " +
			"set it to the path of your doorman config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The file is
// the single source of truth; environment variables do not override
// its values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// JSON-with-comments files are rewritten to plain JSON, which
	// the YAML parser accepts (YAML is a JSON superset).
	if strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".jsonc") {
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the sections both binaries need.
func (c *Config) Validate() error {
	var errs []error

	if c.Matrix.HomeserverURL == "" {
		errs = append(errs, fmt.Errorf("matrix.homeserver_url is required"))
	} else if parsed, err := url.Parse(c.Matrix.HomeserverURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("matrix.homeserver_url %q is not an absolute URL", c.Matrix.HomeserverURL))
	}

	if c.Matrix.UserID == "" {
		errs = append(errs, fmt.Errorf("matrix.user_id is required"))
	} else if _, err := ref.ParseUserID(c.Matrix.UserID); err != nil {
		errs = append(errs, fmt.Errorf("matrix.user_id: %w", err))
	}

	if c.Matrix.AccessTokenFile == "" {
		errs = append(errs, fmt.Errorf("matrix.access_token_file is required"))
	}

	return errors.Join(errs...)
}

// ValidateGate checks the sections the invite gate needs, in addition
// to Validate.
func (c *Config) ValidateGate() error {
	var errs []error

	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Gate.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("gate.listen_address is required"))
	}
	if c.Gate.Turnstile.SiteKey == "" {
		errs = append(errs, fmt.Errorf("gate.turnstile.site_key is required"))
	}
	if c.Gate.Turnstile.SecretKeyFile == "" {
		errs = append(errs, fmt.Errorf("gate.turnstile.secret_key_file is required"))
	}

	if c.Gate.GitHub != nil {
		if c.Gate.GitHub.ClientID == "" {
			errs = append(errs, fmt.Errorf("gate.github.client_id is required when gate.github is set"))
		}
		if c.Gate.GitHub.ClientSecretFile == "" {
			errs = append(errs, fmt.Errorf("gate.github.client_secret_file is required when gate.github is set"))
		}
		if c.Gate.GitHub.RedirectURL == "" {
			errs = append(errs, fmt.Errorf("gate.github.redirect_url is required when gate.github is set"))
		}
	} else if len(c.Gate.HighAbuseOrigins) > 0 {
		errs = append(errs, fmt.Errorf("gate.high_abuse_origins requires gate.github to be configured"))
	}

	if c.Gate.PendingTTL <= 0 {
		errs = append(errs, fmt.Errorf("gate.pending_ttl must be positive"))
	}
	if c.Gate.MinAccountAge <= 0 {
		errs = append(errs, fmt.Errorf("gate.min_account_age must be positive"))
	}

	return errors.Join(errs...)
}

// ValidateBot checks the sections the challenge engine needs, in
// addition to Validate.
func (c *Config) ValidateBot() error {
	var errs []error

	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}

	for _, room := range c.Bot.ProtectedRooms {
		if strings.HasPrefix(room, "!") {
			if _, err := ref.ParseRoomID(room); err != nil {
				errs = append(errs, fmt.Errorf("bot.protected_rooms: %w", err))
			}
			continue
		}
		if strings.HasPrefix(room, "#") {
			if _, err := ref.ParseRoomAlias(room); err != nil {
				errs = append(errs, fmt.Errorf("bot.protected_rooms: %w", err))
			}
			continue
		}
		errs = append(errs, fmt.Errorf("bot.protected_rooms: %q is neither a room ID nor an alias", room))
	}

	if c.Bot.StalenessBound <= 0 {
		errs = append(errs, fmt.Errorf("bot.staleness_bound must be positive"))
	}

	return errors.Join(errs...)
}
