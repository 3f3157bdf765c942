package credstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/quintonwall/airbyte-token-manager/tokenmanager"
)

var testCreds = tokenmanager.Credentials{
	ClientID:     "client-id",
	ClientSecret: "client-secret",
	WorkspaceID:  "workspace-id",
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	ctx := context.Background()
	if err := store.Write(ctx, testCreds); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions = %04o, want 0600", info.Mode().Perm())
	}

	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != testCreds {
		t.Errorf("Read = %+v, want %+v", got, testCreds)
	}
}

func TestFileStore_InsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	ctx := context.Background()
	if err := store.Write(ctx, testCreds); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := os.Chmod(path, 0644); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}

	if _, err := store.Read(ctx); err == nil {
		t.Error("expected error reading world-readable credentials file")
	}
}

func TestFileStore_IncompleteCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte(`{"client_id":"only-id"}`), 0600); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if _, err := store.Read(context.Background()); err == nil {
		t.Error("expected error for incomplete credential triple")
	}
}

func TestFileStore_RejectsIncompleteWrite(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	err = store.Write(context.Background(), tokenmanager.Credentials{ClientID: "only-id"})
	if err == nil {
		t.Error("expected validation error writing incomplete credentials")
	}
}

func TestEnvStore(t *testing.T) {
	const prefix = "CREDSTORETEST_"
	t.Setenv(prefix+"CLIENT_ID", testCreds.ClientID)
	t.Setenv(prefix+"CLIENT_SECRET", testCreds.ClientSecret)
	t.Setenv(prefix+"WORKSPACE_ID", testCreds.WorkspaceID)

	store, err := NewEnvStore(prefix)
	if err != nil {
		t.Fatalf("NewEnvStore failed: %v", err)
	}

	ctx := context.Background()
	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != testCreds {
		t.Errorf("Read = %+v, want %+v", got, testCreds)
	}

	if err := store.Write(ctx, testCreds); err == nil {
		t.Error("env store must be read-only")
	}
}

func TestEnvStore_MissingVariables(t *testing.T) {
	if _, err := NewEnvStore("CREDSTORETEST_UNSET_"); err == nil {
		t.Error("expected error when no credential variables are set")
	}

	const prefix = "CREDSTORETEST_PARTIAL_"
	t.Setenv(prefix+"CLIENT_ID", "only-id")

	store, err := NewEnvStore(prefix)
	if err != nil {
		t.Fatalf("NewEnvStore failed: %v", err)
	}
	if _, err := store.Read(context.Background()); err == nil {
		t.Error("expected error for incomplete credential triple")
	}
}

func TestKeyringStore_RoundTrip(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore("airbyte-token-manager-test", "tester")
	if err != nil {
		t.Fatalf("NewKeyringStore failed: %v", err)
	}

	ctx := context.Background()
	if err := store.Write(ctx, testCreds); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != testCreds {
		t.Errorf("Read = %+v, want %+v", got, testCreds)
	}
}

func TestKeyringStore_Missing(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore("airbyte-token-manager-test", "nobody")
	if err != nil {
		t.Fatalf("NewKeyringStore failed: %v", err)
	}

	if _, err := store.Read(context.Background()); err == nil {
		t.Error("expected error for missing keyring entry")
	}
}
