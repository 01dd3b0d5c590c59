package jdiff

import (
	"net"
	"net/url"
	"regexp"
	"time"
)

var (
	// DurationEncoder renders time.Duration as its Go duration string
	// ("1h30m0s") instead of a bare nanosecond count.
	DurationEncoder = NewEncoder(func(d time.Duration) string { return d.String() })

	// LocationEncoder renders *time.Location by its zone name.
	LocationEncoder = NewEncoder(func(l *time.Location) string { return l.String() })

	// IPEncoder renders net.IP in dotted or colon form rather than as a list
	// of bytes.
	IPEncoder = NewEncoder(func(ip net.IP) string { return ip.String() })

	// URLEncoder renders url.URL as its string form. The pointer form is
	// dereferenced before the hook is consulted, so one hook covers both.
	URLEncoder = NewEncoder(func(u url.URL) string { return u.String() })

	// RegexpEncoder renders regexp.Regexp by its source pattern.
	RegexpEncoder = NewEncoder(func(re regexp.Regexp) string { return re.String() })
)

// Stdlib bundles the hooks for standard library types whose exported shape
// is a poor JSON rendering.
func Stdlib() Registration {
	return Group(DurationEncoder, LocationEncoder, IPEncoder, URLEncoder, RegexpEncoder)
}
