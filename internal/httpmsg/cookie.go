package httpmsg

import "strings"

// Cookie is a name/value pair with an ordered, case-insensitive attribute
// map (Domain, Path, Expires, Secure, ...), matching spec §3.
type Cookie struct {
	Name       string
	Value      string
	Attributes *Header
}

// ParseSetCookie parses one Set-Cookie header value. Malformed headers are
// dropped (spec §3: "Parsing of Set-Cookie returns an optional").
func ParseSetCookie(value string) (Cookie, bool) {
	parts := strings.Split(value, ";")
	nv := strings.SplitN(strings.TrimSpace(parts[0]), "=", 2)
	if len(nv) != 2 || nv[0] == "" {
		return Cookie{}, false
	}
	c := Cookie{Name: nv[0], Value: nv[1], Attributes: NewHeader()}
	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		if idx := strings.Index(attr, "="); idx >= 0 {
			c.Attributes.Add(strings.TrimSpace(attr[:idx]), strings.TrimSpace(attr[idx+1:]))
		} else {
			c.Attributes.Add(attr, "")
		}
	}
	return c, true
}

// CookieCollection is an ordered set of cookies, keyed by name.
type CookieCollection struct {
	order []string
	byName map[string]Cookie
}

// NewCookieCollection returns an empty collection.
func NewCookieCollection() *CookieCollection {
	return &CookieCollection{byName: make(map[string]Cookie)}
}

// Update overwrites entries in cc by name with entries from other, appending
// any names not already present (spec §3: "update(other) overwrites by
// name").
func (cc *CookieCollection) Update(other *CookieCollection) {
	for _, name := range other.order {
		cc.Set(other.byName[name])
	}
}

// Set inserts or overwrites a cookie by name.
func (cc *CookieCollection) Set(c Cookie) {
	if _, exists := cc.byName[c.Name]; !exists {
		cc.order = append(cc.order, c.Name)
	}
	cc.byName[c.Name] = c
}

// Get returns the cookie named name, if present.
func (cc *CookieCollection) Get(name string) (Cookie, bool) {
	c, ok := cc.byName[name]
	return c, ok
}

// All returns every cookie in insertion order.
func (cc *CookieCollection) All() []Cookie {
	out := make([]Cookie, 0, len(cc.order))
	for _, name := range cc.order {
		out = append(out, cc.byName[name])
	}
	return out
}

// ParseSetCookies parses every Set-Cookie header in h into a collection,
// silently dropping malformed entries.
func ParseSetCookies(h *Header) *CookieCollection {
	cc := NewCookieCollection()
	for _, v := range h.Values("Set-Cookie") {
		if c, ok := ParseSetCookie(v); ok {
			cc.Set(c)
		}
	}
	return cc
}
