package secrets

import (
	"fmt"
	"strings"
)

// AuthError reports failure to obtain a session token from the secrets
// service after exhausting every endpoint.
type AuthError struct {
	Endpoints []string
	Attempts  int
	Err       error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("secrets service inaccessible after %d attempts against %s: %v",
		e.Attempts, strings.Join(e.Endpoints, ", "), e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a secret, or a field within one, that the
// secrets service did not return.
type NotFoundError struct {
	Path   string
	Field  string
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("secret %s at %s: %s", e.Field, e.Path, e.Reason)
	}
	return fmt.Sprintf("secret %s not found at %s", e.Field, e.Path)
}

// StoreError reports a failed write to the secrets service. Body holds
// the raw response for diagnostics.
type StoreError struct {
	Path   string
	Status int
	Body   string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to store secrets at %s (status %d): %s", e.Path, e.Status, e.Body)
}
