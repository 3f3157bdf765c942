package tokenmanager

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured is returned by Token and AuthHeader when Configure has not
// been called. No network access is attempted in that case.
var ErrNotConfigured = errors.New("tokenmanager: not configured, call Configure first")

// ConfigurationError reports missing credential fields passed to Configure.
type ConfigurationError struct {
	// Missing lists the names of the empty fields.
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("tokenmanager: missing credential fields: %s", strings.Join(e.Missing, ", "))
}

// CredentialRejectedError reports that a token endpoint understood the request
// but rejected the credentials. Trying alternate endpoint shapes cannot fix
// bad credentials, so this aborts the whole refresh.
type CredentialRejectedError struct {
	// URL is the endpoint that rejected the credentials.
	URL string
	// StatusCode is the HTTP status returned, typically 401 or 403.
	StatusCode int
}

func (e *CredentialRejectedError) Error() string {
	return fmt.Sprintf("tokenmanager: credentials rejected by %s (status %d)", e.URL, e.StatusCode)
}

// Attempt records the outcome of a single endpoint candidate during a failed
// refresh. Err never carries credential material.
type Attempt struct {
	// URL is the endpoint candidate that was tried.
	URL string `json:"url"`
	// StatusCode is the HTTP status received, or 0 if the request never
	// completed (timeout, connection failure).
	StatusCode int `json:"status_code,omitempty"`
	// Err describes why the candidate did not yield a token.
	Err error `json:"-"`
}

func (a Attempt) String() string {
	if a.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", a.URL, a.StatusCode, a.Err)
	}
	return fmt.Sprintf("%s: %v", a.URL, a.Err)
}

// AcquisitionError reports that every endpoint candidate was exhausted without
// producing a token. Attempts holds one entry per candidate tried, in order.
type AcquisitionError struct {
	Attempts []Attempt
}

func (e *AcquisitionError) Error() string {
	trail := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		trail[i] = a.String()
	}
	return fmt.Sprintf("tokenmanager: all %d token endpoints failed: [%s]", len(e.Attempts), strings.Join(trail, "; "))
}

// Unwrap exposes the per-candidate errors for errors.Is/As matching.
func (e *AcquisitionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}
