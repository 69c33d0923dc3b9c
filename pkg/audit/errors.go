package audit

import "errors"

var (
	// ErrInvalidRecord is returned when a record is missing required fields.
	ErrInvalidRecord = errors.New("invalid audit record")

	// ErrSinkClosed is returned when storing through an async writer that has
	// already been closed.
	ErrSinkClosed = errors.New("audit sink is closed")

	// ErrStorageFailed wraps driver-level failures from the audit store.
	ErrStorageFailed = errors.New("audit storage write failed")
)
