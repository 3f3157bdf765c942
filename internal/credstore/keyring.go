package credstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/quintonwall/airbyte-token-manager/tokenmanager"
)

// KeyringStore keeps the credential triple as a JSON blob in OS-native
// credential storage (macOS Keychain, Windows Credential Manager, Linux
// Secret Service).
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore using the given service and user
// identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

// Read returns the credentials from the system keyring.
func (k *KeyringStore) Read(ctx context.Context) (tokenmanager.Credentials, error) {
	var creds tokenmanager.Credentials

	if err := ctx.Err(); err != nil {
		return creds, err
	}

	blob, err := keyring.Get(k.service, k.user)
	if err != nil {
		return creds, err
	}

	if err := json.Unmarshal([]byte(blob), &creds); err != nil {
		return tokenmanager.Credentials{}, fmt.Errorf("parsing keyring entry for service %s, user %s: %w", k.service, k.user, err)
	}
	if err := creds.Validate(); err != nil {
		return tokenmanager.Credentials{}, fmt.Errorf("incomplete credentials in keyring for service %s, user %s: %w", k.service, k.user, err)
	}
	return creds, nil
}

// Write persists the credentials to the system keyring, overwriting any
// existing entry.
func (k *KeyringStore) Write(ctx context.Context, creds tokenmanager.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	blob, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return keyring.Set(k.service, k.user, string(blob))
}
