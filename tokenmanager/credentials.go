package tokenmanager

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Credentials holds the immutable credential triple used to obtain access
// tokens. All three fields are required.
type Credentials struct {
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
	WorkspaceID  string `json:"workspace_id" validate:"required"`
}

var credentialsValidator = validator.New()

// Validate checks that all credential fields are present.
// Returns a *ConfigurationError listing the missing fields.
func (c Credentials) Validate() error {
	err := credentialsValidator.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// validator.InvalidValidationError cannot happen for a struct value,
		// but surface it rather than masking it as a field problem.
		return err
	}

	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return &ConfigurationError{Missing: missing}
}
