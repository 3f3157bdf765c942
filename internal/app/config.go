package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/quintonwall/airbyte-token-manager/internal/credstore"
	"github.com/quintonwall/airbyte-token-manager/tokenmanager"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// CredentialStorageType represents the storage backends for credentials.
type CredentialStorageType string

const (
	CredentialStorageTypeFile    CredentialStorageType = "file"
	CredentialStorageTypeEnv     CredentialStorageType = "env"
	CredentialStorageTypeKeyring CredentialStorageType = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigServerHost      = "127.0.0.1"
	DefaultConfigServerPort      = 8390
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigStorage         = CredentialStorageTypeFile
	DefaultConfigEnvPrefix       = "AIRBYTE_"
	keyringService               = "airbyte-token-manager"
)

// ServerConfig holds broker server configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// ManagerConfig tunes the token manager.
type ManagerConfig struct {
	// Endpoints overrides the ordered token endpoint candidate list.
	// Empty means tokenmanager.DefaultEndpoints.
	Endpoints []string `json:"endpoints,omitempty" validate:"omitempty,dive,url"`

	// SafetyBuffer is the margin subtracted from a token's expiry.
	SafetyBuffer time.Duration `json:"safety_buffer"`

	// RequestTimeout bounds each token endpoint request.
	RequestTimeout time.Duration `json:"request_timeout"`
}

// CredentialsConfig describes where the credential triple comes from.
type CredentialsConfig struct {
	// Storage backend for the credential triple.
	Storage CredentialStorageType `json:"storage" validate:"required,oneof=file env keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to credentials file
	EnvPrefix   string `json:"env_prefix,omitempty"`   // For env storage: variable name prefix
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// NewStore creates a credential store from the configuration.
func (c *CredentialsConfig) NewStore() (credstore.Store, error) {
	switch c.Storage {
	case CredentialStorageTypeFile:
		return credstore.NewFileStore(c.File)
	case CredentialStorageTypeEnv:
		return credstore.NewEnvStore(c.EnvPrefix)
	case CredentialStorageTypeKeyring:
		return credstore.NewKeyringStore(keyringService, c.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.Storage)
	}
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level        `json:"log_level"`
	LogFormat   LogFormat         `json:"log_format" validate:"oneof=text json"`
	Server      ServerConfig      `json:"server"`
	Shutdown    ShutdownConfig    `json:"shutdown"`
	Manager     ManagerConfig     `json:"manager"`
	Credentials CredentialsConfig `json:"credentials"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Manager.SafetyBuffer == 0 {
		c.Manager.SafetyBuffer = tokenmanager.DefaultSafetyBuffer
	}
	if c.Manager.RequestTimeout == 0 {
		c.Manager.RequestTimeout = tokenmanager.DefaultRequestTimeout
	}
	if c.Credentials.Storage == "" {
		c.Credentials.Storage = DefaultConfigStorage
	}

	// Dynamic defaults based on storage type
	switch c.Credentials.Storage {
	case CredentialStorageTypeFile:
		if c.Credentials.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("credentials.file required (auto-detect failed: %w)", err)
			}
			c.Credentials.File = filepath.Join(configDir, "airbyte-token-manager", "credentials.json")
		}
	case CredentialStorageTypeEnv:
		if c.Credentials.EnvPrefix == "" {
			c.Credentials.EnvPrefix = DefaultConfigEnvPrefix
		}
	case CredentialStorageTypeKeyring:
		if c.Credentials.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("credentials.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Credentials.KeyringUser = currentUser.Username
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Credentials.Storage {
	case CredentialStorageTypeFile:
		if c.Credentials.File == "" {
			return errors.New("file path required for file storage")
		}
	case CredentialStorageTypeEnv:
		if c.Credentials.EnvPrefix == "" {
			return errors.New("env_prefix required for env storage")
		}
	case CredentialStorageTypeKeyring:
		if c.Credentials.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}
