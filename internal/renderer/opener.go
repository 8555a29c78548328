// internal/renderer/opener.go
package renderer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/xkilldash9x/guestwin/internal/features"
	"github.com/xkilldash9x/guestwin/internal/guest"
	"github.com/xkilldash9x/guestwin/internal/ipc"
	"github.com/xkilldash9x/guestwin/internal/weburl"
)

const (
	// DefaultWidth and DefaultHeight apply when the feature string names no size.
	DefaultWidth  = 800
	DefaultHeight = 600

	// WebPreferencesKey holds the content-behavior sub-configuration.
	WebPreferencesKey = "webPreferences"
)

// integerOptions are coerced with leading-integer parsing.
var integerOptions = []string{"x", "y", "width", "height", "minWidth", "maxWidth", "minHeight", "maxHeight", "zoomFactor"}

// webPreferenceKeys are routed into the webPreferences sub-map.
var webPreferenceKeys = map[string]bool{
	"zoomFactor":      true,
	"nodeIntegration": true,
	"preload":         true,
}

// OpenRequest is the payload of a window-open-request.
type OpenRequest struct {
	URL                string
	Name               string
	Disposition        string
	Options            map[string]any
	AdditionalFeatures []string
}

// Args lays the request out in wire order.
func (o *OpenRequest) Args() []any {
	return []any{o.URL, o.Name, o.Disposition, o.Options, o.AdditionalFeatures}
}

// BuildOpenRequest turns open() arguments into the request the host sees.
// It never fails: malformed feature values travel as they are.
func BuildOpenRequest(locator guest.Locator, rawURL, name, featureString string) *OpenRequest {
	options := make(map[string]any)
	additional := []string{}
	seen := make(map[string]bool)

	features.Each(featureString, func(f features.Feature) {
		if !f.HasValue {
			if !seen[f.Key] {
				seen[f.Key] = true
				additional = append(additional, f.Key)
			}
			return
		}
		if webPreferenceKeys[f.Key] {
			prefs, _ := options[WebPreferencesKey].(map[string]any)
			if prefs == nil {
				prefs = make(map[string]any)
				options[WebPreferencesKey] = prefs
			}
			prefs[f.Key] = f.Value
			return
		}
		options[f.Key] = f.Value
	})

	alias(options, "left", "x")
	alias(options, "top", "y")
	setDefault(options, "title", name)
	setDefault(options, "width", DefaultWidth)
	setDefault(options, "height", DefaultHeight)

	resolved := weburl.Blank
	if rawURL != "" {
		resolved = locator.Resolve(rawURL)
	}

	for _, key := range integerOptions {
		v, ok := options[key]
		if !ok || v == nil {
			continue
		}
		if n, ok := leadingInt(v); ok {
			options[key] = n
		}
	}

	return &OpenRequest{
		URL:                resolved,
		Name:               name,
		Disposition:        ipc.DispositionNewWindow,
		Options:            options,
		AdditionalFeatures: additional,
	}
}

// alias copies from into to when from is set to a truthy value and to is absent.
func alias(options map[string]any, from, to string) {
	v, ok := options[from]
	if !ok || !truthy(v) {
		return
	}
	if _, exists := options[to]; !exists {
		options[to] = v
	}
}

func setDefault(options map[string]any, key string, v any) {
	if _, ok := options[key]; !ok {
		options[key] = v
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		return cast.ToFloat64(v) != 0
	}
}

// leadingInt parses the integer prefix of v the way feature values are read
// by browsers: leading space, an optional sign, then base-10 digits. Anything
// after the digits is ignored. ok is false when there are no digits.
func leadingInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		s := strings.TrimLeft(t, " \t\n\r\f\v")
		end := 0
		if end < len(s) && (s[end] == '+' || s[end] == '-') {
			end++
		}
		digits := end
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		if end == digits {
			return 0, false
		}
		n, err := strconv.ParseInt(s[:end], 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Open asks the host for a new window and returns its proxy. A refused open
// yields a nil proxy and a nil error; only transport failures are errors.
func (r *Renderer) Open(ctx context.Context, rawURL, name, featureString string) (*guest.Proxy, error) {
	req := BuildOpenRequest(r.resolver, rawURL, name, featureString)

	ctx, cancel := r.roundTripContext(ctx)
	defer cancel()
	res, err := r.transport.SendSync(ctx, ipc.ChannelWindowOpenRequest, req.Args()...)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", req.URL, err)
	}

	id, ok := windowID(res)
	if !ok {
		r.logger.Info("Window open refused", zap.String("url", req.URL), zap.Any("reply", res))
		return nil, nil
	}
	r.logger.Debug("Window opened", zap.String("url", req.URL), zap.Int64("window_id", int64(id)))
	return r.registry.GetOrCreate(id), nil
}

// windowID reads an open reply. Falsy replies and anything that is not a
// positive integer count as a refusal.
func windowID(res any) (guest.ID, bool) {
	switch res.(type) {
	case nil, bool:
		return 0, false
	}
	id, err := cast.ToInt64E(ipc.Plain(res))
	if err != nil || id <= 0 {
		return 0, false
	}
	return guest.ID(id), true
}
