package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quintonwall/airbyte-token-manager/internal/app"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("", nil, func() []string { return nil })
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.Server.Host != app.DefaultConfigServerHost {
		t.Errorf("Server.Host = %q", cfg.Server.Host)
	}
	if cfg.Credentials.Storage != app.CredentialStorageTypeFile {
		t.Errorf("Credentials.Storage = %q", cfg.Credentials.Storage)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
log_format = "json"

[server]
host = "0.0.0.0"
port = 9000

[credentials]
storage = "env"
env_prefix = "MYORG_"
`
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := loadConfig(path, nil, func() []string { return nil })
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.LogFormat != app.LogFormatJSON {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9000 {
		t.Errorf("server = %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Credentials.Storage != app.CredentialStorageTypeEnv || cfg.Credentials.EnvPrefix != "MYORG_" {
		t.Errorf("credentials = %+v", cfg.Credentials)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server]\nport = 9000\n"), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	environ := func() []string {
		return []string{"AIRBYTE_TOKEN_SERVER__PORT=9100"}
	}

	cfg, err := loadConfig(path, nil, environ)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want env override 9100", cfg.Server.Port)
	}
}

func TestLoadConfig_InvalidRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`log_format = "yaml"`), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := loadConfig(path, nil, func() []string { return nil }); err == nil {
		t.Error("expected validation error for unknown log format")
	}
}
