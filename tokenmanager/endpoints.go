package tokenmanager

import "net/http"

// DefaultEndpoints lists the known Airbyte token endpoint shapes. Candidates
// are tried in order until one issues a token; the list covers the public API,
// its legacy path prefix, and the airbyte.ai variant.
var DefaultEndpoints = []string{
	"https://api.airbyte.com/api/public/v1/applications/token",
	"https://api.airbyte.com/v1/applications/token",
	"https://api.airbyte.ai/api/v1/applications/token",
}

// Outcome classifies a non-success response from a token endpoint candidate.
type Outcome int

const (
	// OutcomeNextCandidate means the endpoint shape is wrong or the failure
	// is transient; the refresh moves on to the next candidate.
	OutcomeNextCandidate Outcome = iota
	// OutcomeRejected means the credentials themselves were refused; the
	// refresh stops without trying further candidates.
	OutcomeRejected
	// OutcomeRetryForm means the same candidate should be retried once with
	// a form-encoded body before moving on.
	OutcomeRetryForm
)

// Classifier maps an HTTP status code from a token endpoint to an Outcome.
// The status-code policy differs between Airbyte deployments, so it is
// injectable via WithClassifier rather than hard-coded.
type Classifier func(statusCode int) Outcome

// DefaultClassifier treats 401/403 as a terminal credential rejection and 500
// as "this deployment wants the form-encoded variant". Everything else, most
// notably 404/405 from endpoint shapes that don't exist on a deployment,
// moves on to the next candidate.
func DefaultClassifier(statusCode int) Outcome {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return OutcomeRejected
	case http.StatusInternalServerError:
		return OutcomeRetryForm
	default:
		return OutcomeNextCandidate
	}
}
