package domain

import "errors"

var (
	// ErrBadDate is returned when a user date or datetime cannot be parsed.
	ErrBadDate = errors.New("bad date format")

	// ErrObjectNotFound is returned by object stores when a key does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidStreamOrder is returned for stream-order filters that are
	// neither a comparison (">=3") nor a list of orders ("4,5,6").
	ErrInvalidStreamOrder = errors.New("invalid stream order filter")

	// ErrMissingInputs is returned when a HUC has not been downloaded yet.
	ErrMissingInputs = errors.New("huc inputs not downloaded")
)
