package storage

import "errors"

// Storage error constants
var (
	// ErrThreatNotFound is returned when a threat record is not found
	ErrThreatNotFound = errors.New("threat not found")

	// ErrRunNotFound is returned when an enrichment run is not found
	ErrRunNotFound = errors.New("enrichment run not found")

	// ErrInvalidRecord is returned when a record fails validation before persistence
	ErrInvalidRecord = errors.New("invalid record")
)
