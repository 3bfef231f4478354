package httpmsg

import (
	"bytes"
	"strconv"
)

// Serialize re-emits the request line, headers (one line per value, so
// duplicate names produce duplicate lines), a blank line, then the body —
// chunked when Transfer-Encoding says so, else with an automatically
// computed Content-Length (spec §4.D: "content_length() is set automatically
// before serialisation").
func (req *Request) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteString(string(req.Method))
	buf.WriteByte(' ')
	buf.WriteString(req.Target.String())
	buf.WriteByte(' ')
	buf.WriteString(req.Version.String())
	buf.WriteString("\r\n")

	writeHeadersAndBody(&buf, req.Header, req.Body)
	return buf.Bytes()
}

// Serialize re-emits the status line, headers, and body for resp.
func (resp *Response) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteString(resp.Version.String())
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(int(resp.Status)))
	buf.WriteByte(' ')
	buf.WriteString(resp.Reason())
	buf.WriteString("\r\n")

	writeHeadersAndBody(&buf, resp.Header, resp.Body)
	return buf.Bytes()
}

func writeHeadersAndBody(buf *bytes.Buffer, h *Header, body []byte) {
	if h == nil {
		h = NewHeader()
	}
	chunked := h.IsChunked()
	if !chunked {
		h = h.Clone()
		h.SetContentLength(len(body))
	}
	h.Each(func(name, value string) {
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	})
	buf.WriteString("\r\n")
	if chunked {
		buf.Write(chunkBody(body))
	} else {
		buf.Write(body)
	}
}
