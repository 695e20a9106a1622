package entity

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID generates a prefixed identifier, e.g. "job_2f9c…". Prefixes keep ids
// self-describing in logs and audit events.
func NewID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.New().String())
}
