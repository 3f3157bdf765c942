package credstore

import (
	"context"

	"github.com/quintonwall/airbyte-token-manager/tokenmanager"
)

// Store reads and writes the credential triple to persistent storage.
type Store interface {
	// Read returns the stored credentials. Returns an error if credentials
	// are missing or incomplete.
	Read(ctx context.Context) (tokenmanager.Credentials, error)

	// Write persists the credentials. Returns an error if the backend is
	// read-only (e.g., environment variables) or if the write fails.
	Write(ctx context.Context, creds tokenmanager.Credentials) error
}
