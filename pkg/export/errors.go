package export

import "errors"

var (
	// ErrShortPayload is returned when a payload is shorter than its header.
	ErrShortPayload = errors.New("export: payload shorter than header")

	// ErrMalformed is returned when a message cannot be decoded.
	ErrMalformed = errors.New("export: malformed message")
)
