package service

import "errors"

var (
	// ErrEmptyInput is returned by CreateJob when the UPC snapshot is empty.
	// Nothing is persisted in that case.
	ErrEmptyInput = errors.New("no upcs to process")

	// ErrInvalidState is returned when an operation is requested against a
	// job or batch whose current status does not permit it.
	ErrInvalidState = errors.New("operation not permitted in current state")
)
