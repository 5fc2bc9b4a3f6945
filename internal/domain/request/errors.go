package request

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActionableField rejects a submission that names nothing to act on.
	ErrNoActionableField = errors.New("at least one of github_username, email or docker_token is required")

	// ErrStatusFinal rejects a status write against a request that already
	// reached approved or failed.
	ErrStatusFinal = errors.New("access request status is final")

	ErrInvalidStatus = errors.New("invalid access request status")
)

// ConfigError marks a missing operator-supplied secret or target. It is a
// deployment defect, not a caller mistake.
type ConfigError struct {
	Missing string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s is not configured", e.Missing)
}

// IntegrationError carries the upstream status and message of a rejected
// external API call.
type IntegrationError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *IntegrationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Service, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

// StorageError wraps a persistence failure so callers can tell a store
// problem apart from an integration one.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
