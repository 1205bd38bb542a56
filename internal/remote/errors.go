package remote

import "errors"

var (
	// ErrInvalidPayload is returned for inbound messages that are not valid JSON.
	ErrInvalidPayload = errors.New("remote: invalid payload")
)
