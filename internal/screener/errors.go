package screener

import (
	"fmt"

	"github.com/mohamedkhairy/stock-screener/internal/models"
)

// ConfigurationError reports a run that cannot start because of missing
// configuration
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// errMissingKey is returned when no API key is configured
var errMissingKey = &ConfigurationError{Err: models.ErrMissingCredentials}

// BaseQueryError reports a failed screener base query. It aborts the run
// and no partial result is returned.
type BaseQueryError struct {
	Status int
	Detail string
	Err    error
}

func (e *BaseQueryError) Error() string {
	if e.Detail == "" {
		return e.Message()
	}
	return fmt.Sprintf("%s: %s", e.Message(), e.Detail)
}

// Message is the short client-facing form, e.g. "Upstream 503"
func (e *BaseQueryError) Message() string {
	return fmt.Sprintf("Upstream %d", e.Status)
}

func (e *BaseQueryError) Unwrap() error {
	return e.Err
}
