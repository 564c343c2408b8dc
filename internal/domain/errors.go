package domain

import "errors"

var (
	// ErrMalformedEvent marks a message body that cannot be decoded into a DomainEvent.
	// Such messages are dead-lettered and never retried.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrInvalidHeartbeat is returned when a heartbeat fails validation.
	ErrInvalidHeartbeat = errors.New("invalid heartbeat")

	// ErrJobRunning is returned when a scheduled job fires while its previous run is still in progress.
	ErrJobRunning = errors.New("job already running")
)
