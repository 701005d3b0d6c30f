package attend

import "errors"

// Failure classes surfaced by the service. Adapters wrap the matching
// sentinel so callers can route with errors.Is instead of matching
// message text.
var (
	// ErrInputInvalid indicates malformed caller input: bad student ID,
	// subject name, date range or status value.
	ErrInputInvalid = errors.New("invalid input")

	// ErrUnknownStudent indicates a mark or lookup for an ID that is not
	// in the registry.
	ErrUnknownStudent = errors.New("unknown student")

	// ErrAlreadyExists indicates a duplicate registration or an attempt
	// to start a second concurrent session.
	ErrAlreadyExists = errors.New("already exists")

	// ErrClassifierUnavailable indicates the classifier cannot serve
	// predictions. Checked once at session start; a session degrades to
	// detection-only instead of failing.
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrStorageIO indicates a ledger, journal or evidence write/read
	// failed at the storage layer.
	ErrStorageIO = errors.New("storage failure")

	// ErrDeviceFailure indicates the frame source could not be opened or
	// stopped delivering frames.
	ErrDeviceFailure = errors.New("frame source failure")
)
