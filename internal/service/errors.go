package service

import "errors"

var (
	// ErrZeroDelta is returned when a delta application is attempted with delta = 0
	ErrZeroDelta = errors.New("delta must be nonzero")

	// ErrInvalidEventType is returned for event types outside order_paid/refund/cancel
	ErrInvalidEventType = errors.New("invalid event type")

	// ErrInvalidRequest is returned when request data is invalid or incomplete
	ErrInvalidRequest = errors.New("invalid request")

	// ErrSiteExists is returned when registering a site whose site_id is already taken
	ErrSiteExists = errors.New("site already exists")

	// ErrSiteNotFound is returned when a site cannot be found
	ErrSiteNotFound = errors.New("site not found")

	// ErrProductNotFound is returned when a product cannot be found
	ErrProductNotFound = errors.New("product not found")

	// ErrFailureNotFound is returned when a propagation failure row cannot be found
	ErrFailureNotFound = errors.New("propagation failure not found")
)
