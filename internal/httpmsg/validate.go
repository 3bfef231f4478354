package httpmsg

import "golang.org/x/net/http/httpguts"

// ValidHeaderName reports whether name is a legal RFC 7230 header field
// name, using the same token validator net/http itself is built on.
func ValidHeaderName(name string) bool {
	return httpguts.ValidHeaderFieldName(name)
}

// ValidHeaderValue reports whether value is legal in a header field,
// rejecting embedded control characters that could be used to smuggle an
// extra header or split the response.
func ValidHeaderValue(value string) bool {
	return httpguts.ValidHeaderFieldValue(value)
}
