// Package credstore provides persistent storage abstractions for Airbyte API
// credentials (client id, client secret, workspace id).
//
// Three backends with different security and deployment tradeoffs:
//   - File: JSON document on the local filesystem with atomic writes and
//     secure permissions
//   - Env: read-only environment variable access (requires external secret
//     management)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows
//     Credential Manager, Linux Secret Service)
//
// The `configure` CLI command needs writable storage (file or keyring);
// containerized deployments typically use the read-only env backend.
package credstore
