package httpmsg

import "fmt"

// Version is an HTTP version as it appears on the wire ("HTTP/1.1").
type Version struct {
	Major int
	Minor int
}

var (
	Version10 = Version{1, 0}
	Version11 = Version{1, 1}
	Version20 = Version{2, 0}
)

func (v Version) String() string {
	return fmt.Sprintf("HTTP/%d.%d", v.Major, v.Minor)
}

// ParseVersion parses the version token from a request/status line.
func ParseVersion(s string) (Version, error) {
	var v Version
	if n, err := fmt.Sscanf(s, "HTTP/%d.%d", &v.Major, &v.Minor); err != nil || n != 2 {
		return Version{}, ErrInvalidVersion
	}
	return v, nil
}

// ImpliesClose reports whether this version defaults a connection to close
// absent an explicit "Connection: keep-alive" (spec §4.E tie-break: "A
// response of HTTP/1.0 implies close unless Connection: keep-alive is
// present").
func (v Version) ImpliesClose() bool {
	return v.Major == 1 && v.Minor == 0
}
