// Package httpmsg implements the HTTP/1 request/response codec: an
// insertion-ordered, case-insensitive header multimap, chunked and
// content-length body framing, and a minimal URL/cookie model.
package httpmsg

import "strings"

// headerField is one name/value pair as it appeared on the wire.
type headerField struct {
	name  string
	value string
}

// Header is an ordered multimap with case-insensitive key comparison.
// Duplicate names are preserved in insertion order, matching RFC 7230's
// "a recipient MAY combine multiple header fields... without changing the
// semantics" without actually discarding the duplicates ourselves.
type Header struct {
	fields []headerField
	index  map[string][]int // lowercased name -> positions in fields
}

// NewHeader returns an empty header map.
func NewHeader() *Header {
	return &Header{index: make(map[string][]int)}
}

func foldKey(name string) string {
	return strings.ToLower(name)
}

// Add appends a value for name, preserving any existing values for that name.
func (h *Header) Add(name, value string) {
	if h.index == nil {
		h.index = make(map[string][]int)
	}
	key := foldKey(name)
	h.index[key] = append(h.index[key], len(h.fields))
	h.fields = append(h.fields, headerField{name: name, value: value})
}

// Set replaces all existing values for name with a single value.
func (h *Header) Set(name, value string) {
	h.Del(name)
	h.Add(name, value)
}

// Del removes every value stored under name.
func (h *Header) Del(name string) {
	key := foldKey(name)
	positions, ok := h.index[key]
	if !ok {
		return
	}
	remove := make(map[int]bool, len(positions))
	for _, p := range positions {
		remove[p] = true
	}
	kept := h.fields[:0]
	for i, f := range h.fields {
		if !remove[i] {
			kept = append(kept, f)
		}
	}
	h.fields = kept
	delete(h.index, key)
	h.reindex()
}

func (h *Header) reindex() {
	h.index = make(map[string][]int, len(h.fields))
	for i, f := range h.fields {
		key := foldKey(f.name)
		h.index[key] = append(h.index[key], i)
	}
}

// Get returns the first value stored under name, and whether it was present.
func (h *Header) Get(name string) (string, bool) {
	values := h.Values(name)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Values returns every value stored under name, in insertion order.
func (h *Header) Values(name string) []string {
	positions, ok := h.index[foldKey(name)]
	if !ok {
		return nil
	}
	out := make([]string, len(positions))
	for i, p := range positions {
		out[i] = h.fields[p].value
	}
	return out
}

// Has reports whether name has at least one value.
func (h *Header) Has(name string) bool {
	_, ok := h.index[foldKey(name)]
	return ok
}

// HasToken reports whether name's (possibly comma-joined) values contain
// token, compared case-insensitively. Used for Connection/Upgrade/
// Transfer-Encoding token checks.
func (h *Header) HasToken(name, token string) bool {
	token = strings.ToLower(strings.TrimSpace(token))
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.ToLower(strings.TrimSpace(part)) == token {
				return true
			}
		}
	}
	return false
}

// Each calls fn once per field, in insertion order, including duplicates.
func (h *Header) Each(fn func(name, value string)) {
	for _, f := range h.fields {
		fn(f.name, f.value)
	}
}

// Len returns the number of fields, including duplicates.
func (h *Header) Len() int {
	return len(h.fields)
}

// Clone returns a deep copy.
func (h *Header) Clone() *Header {
	out := NewHeader()
	out.fields = append([]headerField(nil), h.fields...)
	out.reindex()
	return out
}
