package utils

import "github.com/google/uuid"

// NewRequestID returns an id for a queued submission.
func NewRequestID() string {
	return uuid.NewString()
}
