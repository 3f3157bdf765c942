package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quintonwall/airbyte-token-manager/tokenmanager"
)

// FileStore keeps credentials in a JSON document with secure permissions.
// Writes use temp file + rename for crash safety.
type FileStore struct {
	filePath string
}

// Compile-time check to ensure FileStore implements Store
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore for the given path, creating parent
// directories with 0700 permissions if they don't exist.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &FileStore{
		filePath: filePath,
	}, nil
}

// Read returns the stored credentials. Returns an error if the file doesn't
// exist, has insecure permissions, or holds an incomplete triple.
func (f *FileStore) Read(ctx context.Context) (tokenmanager.Credentials, error) {
	var creds tokenmanager.Credentials

	if err := ctx.Err(); err != nil {
		return creds, err
	}

	// The file holds a client secret; refuse to use it if anyone else can.
	info, err := os.Stat(f.filePath)
	if err != nil {
		return creds, err
	}
	if info.Mode().Perm() != 0600 {
		return creds, fmt.Errorf("insecure permissions on %s: %04o (expected 0600)", f.filePath, info.Mode().Perm())
	}

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return creds, err
	}

	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("parsing credentials file %s: %w", f.filePath, err)
	}
	if err := creds.Validate(); err != nil {
		return tokenmanager.Credentials{}, fmt.Errorf("incomplete credentials in %s: %w", f.filePath, err)
	}
	return creds, nil
}

// Write atomically saves the credentials using temp file + rename.
// Sets file permissions to 0600 (owner read/write only).
func (f *FileStore) Write(ctx context.Context, creds tokenmanager.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}

	// Create secure temp file in same directory for atomic rename
	dir := filepath.Dir(f.filePath)
	tempFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(append(data, '\n')); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tempName, f.filePath); err != nil {
		return err
	}

	return os.Chmod(f.filePath, 0600)
}
