package credstore

import (
	"context"
	"fmt"
	"os"

	"github.com/quintonwall/airbyte-token-manager/tokenmanager"
)

// Environment variable suffixes appended to the configured prefix.
const (
	envClientID     = "CLIENT_ID"
	envClientSecret = "CLIENT_SECRET"
	envWorkspaceID  = "WORKSPACE_ID"
)

// EnvStore provides read-only access to credentials stored in environment
// variables, e.g. AIRBYTE_CLIENT_ID / AIRBYTE_CLIENT_SECRET /
// AIRBYTE_WORKSPACE_ID for the "AIRBYTE_" prefix.
type EnvStore struct {
	prefix string
}

// Compile-time check to ensure EnvStore implements Store
var _ Store = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore reading variables with the given prefix.
// Returns an error if the prefix is empty or none of the variables are set.
func NewEnvStore(prefix string) (*EnvStore, error) {
	if prefix == "" {
		return nil, fmt.Errorf("environment prefix cannot be empty")
	}

	found := false
	for _, suffix := range []string{envClientID, envClientSecret, envWorkspaceID} {
		if _, exists := os.LookupEnv(prefix + suffix); exists {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("no %s* credential variables set in environment", prefix)
	}

	return &EnvStore{
		prefix: prefix,
	}, nil
}

// Read returns the credentials from the environment. Returns an error if the
// triple is incomplete.
func (e *EnvStore) Read(ctx context.Context) (tokenmanager.Credentials, error) {
	var creds tokenmanager.Credentials

	if err := ctx.Err(); err != nil {
		return creds, err
	}

	creds = tokenmanager.Credentials{
		ClientID:     os.Getenv(e.prefix + envClientID),
		ClientSecret: os.Getenv(e.prefix + envClientSecret),
		WorkspaceID:  os.Getenv(e.prefix + envWorkspaceID),
	}
	if err := creds.Validate(); err != nil {
		return tokenmanager.Credentials{}, fmt.Errorf("incomplete credentials in %s* environment variables: %w", e.prefix, err)
	}
	return creds, nil
}

// Write is not supported for environment variables (they are read-only).
func (e *EnvStore) Write(ctx context.Context, creds tokenmanager.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variable storage is read-only")
}
