package httpmsg

import (
	"bufio"
	"fmt"
	"strings"
)

// DefaultBodySizeLimit is the spec §4.D default (200 MB); the configured
// minimum is 4096 bytes (enforced in internal/config, not here).
const DefaultBodySizeLimit int64 = 200 * 1024 * 1024

// ParseRequest reads a request line, headers, and body from r. limit bounds
// the decoded body size (0 means DefaultBodySizeLimit). Returns
// ErrNeedMoreBytes if r does not yet contain a complete message — callers
// should read more bytes into the underlying connection and retry.
func ParseRequest(r *bufio.Reader, limit int64) (*Request, error) {
	if limit <= 0 {
		limit = DefaultBodySizeLimit
	}
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	method, targetRaw, versionRaw, err := splitRequestLine(line)
	if err != nil {
		return nil, err
	}
	m, err := ParseMethod(method)
	if err != nil {
		return nil, err
	}
	version, err := ParseVersion(versionRaw)
	if err != nil {
		return nil, err
	}
	target, err := ParseURL(targetRaw)
	if err != nil {
		return nil, err
	}

	header, err := parseHeaders(r)
	if err != nil {
		return nil, err
	}

	body, err := parseBody(r, header, limit, m == MethodConnect || m == MethodHead)
	if err != nil {
		return nil, err
	}

	return &Request{Method: m, Target: target, Version: version, Header: header, Body: body}, nil
}

// ParseResponse mirrors ParseRequest for a status line + headers + body.
// noBody should be true for responses to HEAD requests or any response
// whose status forbids a body (1xx, 204, 304): the wire carries no body
// regardless of Content-Length/Transfer-Encoding.
func ParseResponse(r *bufio.Reader, limit int64, noBody bool) (*Response, error) {
	if limit <= 0 {
		limit = DefaultBodySizeLimit
	}
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	versionRaw, statusRaw, reason, err := splitStatusLine(line)
	if err != nil {
		return nil, err
	}
	version, err := ParseVersion(versionRaw)
	if err != nil {
		return nil, err
	}
	var code int
	if _, err := fmt.Sscanf(statusRaw, "%d", &code); err != nil {
		return nil, ErrInvalidStatus
	}
	status, err := ParseStatus(code)
	if err != nil {
		return nil, err
	}

	header, err := parseHeaders(r)
	if err != nil {
		return nil, err
	}

	body, err := parseBody(r, header, limit, noBody)
	if err != nil {
		return nil, err
	}

	return &Response{Version: version, Status: status, ReasonOverride: reason, Header: header, Body: body}, nil
}

func splitRequestLine(line string) (method, target, version string, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("httpmsg: malformed request line %q", line)
	}
	return parts[0], parts[1], parts[2], nil
}

func splitStatusLine(line string) (version, code, reason string, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("httpmsg: malformed status line %q", line)
	}
	if len(parts) == 2 {
		return parts[0], parts[1], "", nil
	}
	return parts[0], parts[1], parts[2], nil
}

func parseHeaders(r *bufio.Reader) (*Header, error) {
	h := NewHeader()
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return h, nil
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			return nil, fmt.Errorf("httpmsg: malformed header line %q", line)
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if !ValidHeaderName(name) || !ValidHeaderValue(value) {
			return nil, fmt.Errorf("httpmsg: invalid header %q", line)
		}
		h.Add(name, value)
	}
}

func parseBody(r *bufio.Reader, h *Header, limit int64, noBody bool) ([]byte, error) {
	if noBody {
		return nil, nil
	}
	if h.IsChunked() {
		return dechunkBody(r, limit)
	}
	n := h.ContentLength()
	if n <= 0 {
		return nil, nil
	}
	if limit > 0 && n > limit {
		return nil, ErrBodyTooLarge
	}
	buf := make([]byte, n)
	if _, err := readFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
