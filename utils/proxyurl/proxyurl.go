// Package proxyurl encodes and decodes header-embedding proxy URLs.
//
// Native players only attach custom headers to the top-level request, so an
// HLS stream that needs a Referer on every segment is rewritten to point at
// our stream proxy with the target URL and headers folded into the query.
package proxyurl

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
)

const proxyPath = "/api/stream/proxy"

// Wrap builds a proxy URL for target with the given headers embedded.
// base is the externally reachable server base, e.g. "http://host:7900".
func Wrap(base, target string, headers map[string]string) string {
	q := url.Values{}
	q.Set("url", target)
	if len(headers) > 0 {
		encoded, err := json.Marshal(headers)
		if err == nil {
			q.Set("h", base64.URLEncoding.EncodeToString(encoded))
		}
	}
	return strings.TrimRight(base, "/") + proxyPath + "?" + q.Encode()
}

// IsWrapped reports whether raw looks like a proxy URL produced by Wrap.
func IsWrapped(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(u.Path, proxyPath) && u.Query().Get("url") != ""
}

// Unwrap decodes a proxy URL back into its target URL and headers.
// ok is false when raw is not a proxy URL.
func Unwrap(raw string) (target string, headers map[string]string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil || !strings.HasSuffix(u.Path, proxyPath) {
		return "", nil, false
	}
	q := u.Query()
	target = q.Get("url")
	if target == "" {
		return "", nil, false
	}
	if h := q.Get("h"); h != "" {
		decoded, err := base64.URLEncoding.DecodeString(h)
		if err == nil {
			_ = json.Unmarshal(decoded, &headers)
		}
	}
	return target, headers, true
}
