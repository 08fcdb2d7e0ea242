package util

import (
	"net"
	"net/http"
	"net/url"
	"time"
)

// SharedClient is the single HTTP client instance reused across all remote
// blob operations for its connection pool (keep-alive), per §5's "shared
// resources" rule: nothing in the hot path should pay the cost of dialing a
// fresh connection per call.
var SharedClient = &http.Client{
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        1024,
		MaxIdleConnsPerHost: 1024,
	},
}

// MkURL builds an "http://host/path?query" URL from parts, mirroring the
// teacher's util.MkUrl.
func MkURL(hostAndPort, path string, args url.Values) string {
	u := url.URL{
		Scheme: "http",
		Host:   hostAndPort,
		Path:   path,
	}
	if args != nil {
		u.RawQuery = args.Encode()
	}
	return u.String()
}

// FragmentEscape escapes a single query component with url.QueryEscape
// (a space becomes '+', and reserved characters such as ':' and '/' are
// percent-encoded). It stands in for the original implementation's Guava
// urlFragmentEscaper when building blob/001 query strings by hand.
func FragmentEscape(s string) string {
	return url.QueryEscape(s)
}

// DoubleEscape escapes a value twice. §4.4 and §9 note that the original
// canPut implementation double-escapes nodeId and volumeId; kept here,
// used only by canPut, to remain wire-compatible with such peers.
func DoubleEscape(s string) string {
	return FragmentEscape(FragmentEscape(s))
}
