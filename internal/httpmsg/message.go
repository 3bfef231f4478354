package httpmsg

import (
	"strconv"
	"strings"
)

// Request is a parsed HTTP/1 request. Body is always the decoded payload:
// if Transfer-Encoding: chunked was present on the wire, Body holds the
// dechunked bytes (spec §3 invariant).
type Request struct {
	Method  Method
	Target  URL
	Version Version
	Header  *Header
	Body    []byte
}

// Response is a parsed or synthesized HTTP/1 response.
type Response struct {
	Version    Version
	Status     Status
	ReasonOverride string // non-empty to override Status.Reason()
	Header     *Header
	Body       []byte
	// Synthesized marks a response built by an interceptor's make_response
	// call rather than read from upstream (spec §3: "the response may be
	// synthesised by an interceptor, short-circuiting upstream I/O").
	Synthesized bool
}

// Exchange binds one request to at most one response.
type Exchange struct {
	Request  *Request
	Response *Response
}

func (r *Response) Reason() string {
	if r.ReasonOverride != "" {
		return r.ReasonOverride
	}
	return r.Status.Reason()
}

// IsChunked reports whether Transfer-Encoding names "chunked".
func (h *Header) IsChunked() bool {
	return h.HasToken("Transfer-Encoding", "chunked")
}

// ContentLength returns the parsed Content-Length header value, or -1 if
// absent or unparsable.
func (h *Header) ContentLength() int64 {
	v, ok := h.Get("Content-Length")
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// SetContentLength sets Content-Length, replacing any existing value.
func (h *Header) SetContentLength(n int) {
	h.Set("Content-Length", strconv.Itoa(n))
}

// KeepAlive decides whether the connection should stay open after this
// exchange, per spec §4.E tie-breaks: an explicit "Connection: close" on
// either end ends keep-alive; HTTP/1.0 defaults to close unless
// "Connection: keep-alive" is present.
func KeepAlive(reqHeader, respHeader *Header, version Version) bool {
	if reqHeader.HasToken("Connection", "close") || respHeader.HasToken("Connection", "close") {
		return false
	}
	if version.ImpliesClose() {
		return respHeader.HasToken("Connection", "keep-alive") || reqHeader.HasToken("Connection", "keep-alive")
	}
	return true
}

// StripH2c removes an "Upgrade: h2c" offer from request headers — this
// proxy never upgrades to HTTP/2 (spec §4.E tie-break, spec §1 non-goal).
func StripH2c(h *Header) {
	if h.HasToken("Upgrade", "h2c") {
		h.Del("Upgrade")
		// Connection: Upgrade is only meaningful paired with an Upgrade
		// header; drop the matching token rather than the whole header,
		// since other Connection tokens (e.g. keep-alive) may remain.
		removeConnectionToken(h, "upgrade")
		removeConnectionToken(h, "http2-settings")
	}
	h.Del("HTTP2-Settings")
}

func removeConnectionToken(h *Header, token string) {
	values := h.Values("Connection")
	if len(values) == 0 {
		return
	}
	h.Del("Connection")
	for _, v := range values {
		kept := filterTokens(v, token)
		if kept != "" {
			h.Add("Connection", kept)
		}
	}
}

func filterTokens(value, exclude string) string {
	rawParts := strings.Split(value, ",")
	out := make([]string, 0, len(rawParts))
	for _, p := range rawParts {
		p = strings.TrimSpace(p)
		if p != "" && !strings.EqualFold(p, exclude) {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
