package httpmsg

import "errors"

// Error kinds per spec §7's HTTP catalogue.
var (
	ErrInvalidMethod   = errors.New("httpmsg: invalid method")
	ErrInvalidVersion  = errors.New("httpmsg: invalid version")
	ErrInvalidStatus   = errors.New("httpmsg: invalid status")
	ErrHeaderNotFound  = errors.New("httpmsg: header not found")
	ErrBodyTooLarge    = errors.New("httpmsg: body exceeds size limit")
	ErrMalformedChunked = errors.New("httpmsg: malformed chunked encoding")

	// ErrNeedMoreBytes signals a short read during streaming parse: the
	// caller should read more bytes and retry rather than treating this as
	// a hard failure.
	ErrNeedMoreBytes = errors.New("httpmsg: need more bytes")
)
