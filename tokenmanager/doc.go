// Package tokenmanager provides credential-based access token acquisition,
// caching, and transparent refresh for the Airbyte API.
//
// Airbyte's token issuance deviates from plain OAuth2 client credentials in
// ways that require custom handling:
//   - Several endpoint shapes exist across deployments; a client has to probe
//     them in order until one answers (see DefaultEndpoints)
//   - Requests are JSON-encoded; some deployments only accept the
//     form-encoded variant and answer HTTP 500 to JSON
//   - The workspace is carried as a "workspace:<id>" scope
//
// # Basic usage
//
//	m := tokenmanager.New()
//	if err := m.Configure(clientID, clientSecret, workspaceID); err != nil {
//		// a credential field is missing
//	}
//	token, err := m.Token(ctx)
//
// A Manager is safe for concurrent use. Reads of a valid cached token take a
// shared lock only; at most one refresh round-trip runs per expiration event
// regardless of how many callers race for it.
//
// # Process-wide instance
//
// Use Default for the shared per-process manager:
//
//	tokenmanager.Default().Configure(id, secret, workspace)
package tokenmanager
