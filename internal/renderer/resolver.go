// internal/renderer/resolver.go
package renderer

import (
	"fmt"
	"net/url"

	"github.com/xkilldash9x/guestwin/internal/guest"
	"github.com/xkilldash9x/guestwin/internal/weburl"
)

// Resolver turns possibly relative URLs into absolute ones using the local
// document's location as the base. It never touches the network.
type Resolver struct {
	document string
	base     *url.URL
	origin   string
}

var _ guest.Locator = (*Resolver)(nil)

// NewResolver anchors a resolver at documentURL.
func NewResolver(documentURL string) (*Resolver, error) {
	base, err := url.Parse(documentURL)
	if err != nil {
		return nil, fmt.Errorf("renderer: parse document url %q: %w", documentURL, err)
	}
	return &Resolver{
		document: documentURL,
		base:     base,
		origin:   weburl.Origin(documentURL),
	}, nil
}

// Resolve implements guest.Locator.
func (r *Resolver) Resolve(rawURL string) string {
	return weburl.Resolve(r.base, rawURL)
}

// Origin implements guest.Locator.
func (r *Resolver) Origin() string { return r.origin }

// DocumentURL returns the URL the resolver was anchored at.
func (r *Resolver) DocumentURL() string { return r.document }
