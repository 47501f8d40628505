package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// MaxIDLength defines the maximum number of characters accepted for correlation identifiers.
const MaxIDLength = 128

// HeaderOpaqueID is the request header OpenSearch echoes into its task and
// slow logs.
const HeaderOpaqueID = "X-Opaque-Id"

type contextKey struct{}

// Set records the correlation ID on ctx. Invalid identifiers leave ctx unchanged.
func Set(ctx context.Context, id string) context.Context {
	normalized, ok := Normalize(id)
	if !ok {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, normalized)
}

// Ensure returns ctx carrying a correlation ID, generating one when absent.
func Ensure(ctx context.Context) context.Context {
	if Has(ctx) {
		return ctx
	}
	return Set(ctx, Generate())
}

// ID retrieves the correlation ID stored on ctx, if any.
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Has reports whether ctx carries a correlation ID.
func Has(ctx context.Context) bool {
	return ID(ctx) != ""
}

// Normalize validates and canonicalizes an external correlation identifier.
// It returns the normalized ID and true if the input is acceptable.
func Normalize(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", false
	}
	if len(id) > MaxIDLength {
		return "", false
	}
	for _, r := range id {
		if r < 0x20 || r > 0x7e {
			return "", false
		}
	}
	return id, true
}

// Generate produces a new time-ordered correlation identifier.
func Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Transport stamps the correlation ID of each request context onto the
// X-Opaque-Id header. Requests that already carry the header are left alone.
type Transport struct {
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	id := ID(req.Context())
	if id == "" || req.Header.Get(HeaderOpaqueID) != "" {
		return base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set(HeaderOpaqueID, id)
	return base.RoundTrip(clone)
}
