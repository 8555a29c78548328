// Package weburl holds the little URL arithmetic both sides of the link
// need: resolving references against a document and serializing origins.
package weburl

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// Blank is the URL of an empty document.
const Blank = "about:blank"

// OpaqueOrigin is the serialization of an origin that has no scheme/host/port tuple.
const OpaqueOrigin = "null"

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
	"ftp":   "21",
}

// Resolve resolves ref against base. Absolute references are returned
// normalized. When base cannot anchor a relative reference (it is opaque,
// like about:blank) or ref does not parse, ref comes back untouched.
func Resolve(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	if u.IsAbs() {
		return u.String()
	}
	if base == nil || !base.IsAbs() || base.Opaque != "" {
		return ref
	}
	return base.ResolveReference(u).String()
}

// Origin serializes the origin of raw as scheme://host[:port]. Default
// ports are omitted and hosts are converted to their ASCII form. Schemes
// without a network origin yield "null"; file URLs yield "file://".
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return OpaqueOrigin
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "file" {
		return "file://"
	}
	if _, ok := defaultPorts[scheme]; !ok {
		return OpaqueOrigin
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return OpaqueOrigin
	}
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	port := u.Port()
	if port == "" || port == defaultPorts[scheme] {
		return scheme + "://" + host
	}
	return scheme + "://" + net.JoinHostPort(strings.Trim(host, "[]"), port)
}

// SameOrigin reports whether target permits delivery to a document at
// docURL. "*" matches everything.
func SameOrigin(target, docURL string) bool {
	if target == "*" {
		return true
	}
	return Origin(target) == Origin(docURL)
}
