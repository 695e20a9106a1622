package service

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/steiner385/MachShop-sub017/domain/entity"
)

// ValidationError rejects malformed input before any state mutation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError identifies an unknown job/conflict/report/operation id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ConflictBlockedError is raised when a force-complete is attempted while an
// unresolved conflict requiring manual approval exists for the entity/field.
type ConflictBlockedError struct {
	EntityType entity.EntityType
	EntityID   string
	Field      string
}

func (e *ConflictBlockedError) Error() string {
	return fmt.Sprintf("sync blocked by unresolved conflict on %s/%s field %q", e.EntityType, e.EntityID, e.Field)
}

// RetryExhaustedError marks a job that failed maxRetries times. The last
// error is preserved verbatim on the job itself.
type RetryExhaustedError struct {
	JobID     string
	LastError string
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("job %s exhausted retries: %s", e.JobID, e.LastError)
}

// ProviderError wraps a failure from an external record provider. The current
// job fails and may retry; reports still finalize.
type ProviderError struct {
	Side entity.System
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Side, e.Err)
}

// Unwrap exposes the underlying provider failure.
func (e *ProviderError) Unwrap() error {
	return e.Err
}
