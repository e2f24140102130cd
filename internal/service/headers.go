package service

import (
	"net/http"
	"strings"
)

// hopByHopHeaders are per-connection headers that must not cross the proxy.
// Keys are lower-case; lookups lower-case the candidate first.
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-connection":    true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"host":                true,
}

// framingHeaders describe the upstream's encoding of the body, which the
// gateway re-frames before relaying.
var framingHeaders = map[string]bool{
	"content-encoding":  true,
	"transfer-encoding": true,
}

// FilterRequestHeaders returns a copy of src without hop-by-hop headers or any
// header nominated by the Connection header. Names match case-insensitively.
// Everything else, Authorization included, passes through unchanged.
func FilterRequestHeaders(src http.Header) http.Header {
	nominated := connectionTokens(src)
	dst := make(http.Header, len(src))
	for key, vals := range src {
		lk := strings.ToLower(key)
		if hopByHopHeaders[lk] || nominated[lk] {
			continue
		}
		dst[key] = append([]string(nil), vals...)
	}
	return dst
}

// FilterResponseHeaders returns a copy of src without Content-Encoding,
// Transfer-Encoding or other hop-by-hop headers.
func FilterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		lk := strings.ToLower(key)
		if framingHeaders[lk] || hopByHopHeaders[lk] {
			continue
		}
		dst[key] = append([]string(nil), vals...)
	}
	return dst
}

// connectionTokens collects the header names listed in every Connection
// header, whatever the case of the Connection key itself.
func connectionTokens(h http.Header) map[string]bool {
	tokens := make(map[string]bool)
	for key, vals := range h {
		if !strings.EqualFold(key, "Connection") {
			continue
		}
		for _, v := range vals {
			for _, tok := range strings.Split(v, ",") {
				if tok = strings.TrimSpace(tok); tok != "" {
					tokens[strings.ToLower(tok)] = true
				}
			}
		}
	}
	return tokens
}
