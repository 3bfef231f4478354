package httpmsg

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// URL is the subset of RFC 3986 this proxy cares about: enough to route a
// CONNECT/absolute-form request and to compare a minted certificate's name
// against the request's target host.
type URL struct {
	Scheme   string
	UserInfo string
	Host     string
	Port     string // empty when absent; use PortOrDefault
	Path     string
	Query    string
	Fragment string
}

// ParseURL parses an absolute-form or origin-form HTTP target. Origin-form
// targets (a bare path, as sent to an origin server rather than a proxy)
// leave Scheme and Host empty; callers fill them in from the Host header.
func ParseURL(raw string) (URL, error) {
	var u URL
	rest := raw

	if strings.HasPrefix(rest, "/") || rest == "*" {
		path, query, fragment := splitPathQueryFragment(rest)
		u.Path, u.Query, u.Fragment = path, query, fragment
		return u, nil
	}

	if idx := strings.Index(rest, "://"); idx >= 0 {
		u.Scheme = strings.ToLower(rest[:idx])
		rest = rest[idx+3:]
	} else if strings.Contains(rest, ":") && !strings.Contains(rest, "/") {
		// CONNECT target form: host:port, no scheme.
		host, port, err := splitHostPort(rest)
		if err != nil {
			return URL{}, fmt.Errorf("httpmsg: invalid CONNECT target %q: %w", raw, err)
		}
		u.Host, u.Port = host, port
		return u, nil
	}

	authority := rest
	pathPart := ""
	if idx := strings.IndexAny(rest, "/?#"); idx >= 0 {
		authority = rest[:idx]
		pathPart = rest[idx:]
	}

	if idx := strings.LastIndex(authority, "@"); idx >= 0 {
		u.UserInfo = authority[:idx]
		authority = authority[idx+1:]
	}

	host, port, err := splitHostPort(authority)
	if err != nil {
		return URL{}, fmt.Errorf("httpmsg: invalid authority %q: %w", raw, err)
	}
	u.Host, u.Port = host, port

	path, query, fragment := splitPathQueryFragment(pathPart)
	u.Path, u.Query, u.Fragment = path, query, fragment
	return u, nil
}

func splitPathQueryFragment(s string) (path, query, fragment string) {
	path = s
	if idx := strings.Index(path, "#"); idx >= 0 {
		fragment = path[idx+1:]
		path = path[:idx]
	}
	if idx := strings.Index(path, "?"); idx >= 0 {
		query = path[idx+1:]
		path = path[:idx]
	}
	return path, query, fragment
}

func splitHostPort(authority string) (host, port string, err error) {
	if authority == "" {
		return "", "", nil
	}
	if strings.HasPrefix(authority, "[") {
		// IPv6 literal.
		end := strings.Index(authority, "]")
		if end < 0 {
			return "", "", fmt.Errorf("unterminated IPv6 literal")
		}
		host = authority[:end+1]
		remainder := authority[end+1:]
		if strings.HasPrefix(remainder, ":") {
			port = remainder[1:]
		}
		return host, port, nil
	}
	if idx := strings.LastIndex(authority, ":"); idx >= 0 {
		return authority[:idx], authority[idx+1:], nil
	}
	return authority, "", nil
}

// PortOrDefault fills in the scheme's well-known port when Port is absent.
func (u URL) PortOrDefault(def string) string {
	if u.Port != "" {
		return u.Port
	}
	if def != "" {
		return def
	}
	switch u.Scheme {
	case "https", "wss":
		return "443"
	case "http", "ws":
		return "80"
	default:
		return ""
	}
}

// PortNumber is PortOrDefault parsed as an integer, or 0 if unparsable.
func (u URL) PortNumber(def string) int {
	p := u.PortOrDefault(def)
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0
	}
	return n
}

// IsHost reports whether name matches u.Host, case-insensitively, after
// IDNA normalization so Unicode and punycode forms compare equal.
func (u URL) IsHost(name string) bool {
	return normalizeHost(u.Host) == normalizeHost(name)
}

// IsHostPort reports whether name and port match u.Host/u.PortOrDefault.
func (u URL) IsHostPort(name, port string) bool {
	return u.IsHost(name) && u.PortOrDefault("") == port
}

func normalizeHost(h string) string {
	h = strings.TrimSuffix(strings.ToLower(h), ".")
	if ascii, err := idna.Lookup.ToASCII(h); err == nil {
		return ascii
	}
	return h
}

// String reassembles the URL, omitting absent components.
func (u URL) String() string {
	var b strings.Builder
	if u.Scheme != "" {
		b.WriteString(u.Scheme)
		b.WriteString("://")
		if u.UserInfo != "" {
			b.WriteString(u.UserInfo)
			b.WriteByte('@')
		}
		b.WriteString(u.Host)
		if u.Port != "" {
			b.WriteByte(':')
			b.WriteString(u.Port)
		}
	} else if u.Host != "" {
		b.WriteString(u.Host)
		if u.Port != "" {
			b.WriteByte(':')
			b.WriteString(u.Port)
		}
	}
	if u.Path != "" {
		b.WriteString(u.Path)
	} else if u.Scheme != "" {
		b.WriteByte('/')
	}
	if u.Query != "" {
		b.WriteByte('?')
		b.WriteString(u.Query)
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.Fragment)
	}
	return b.String()
}
