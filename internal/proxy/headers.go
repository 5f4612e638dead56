package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"net/textproto"
	"sort"
	"strings"
)

// Header names carried by ForwardedHeaders.
const (
	HeaderAuthorization  = "Authorization"
	HeaderCookie         = "Cookie"
	HeaderTenantID       = "X-Tenant-Id"
	HeaderInternalAPIKey = "X-Internal-Api-Key"
)

// Shape is the kind of credential set a ForwardedHeaders carries.
type Shape int

const (
	// ShapeUser forwards the end user's own credentials.
	ShapeUser Shape = iota + 1
	// ShapeService authenticates the gateway itself to an internal service.
	ShapeService
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case ShapeUser:
		return "user"
	case ShapeService:
		return "service"
	default:
		return "invalid"
	}
}

var allowedHeaders = map[Shape]map[string]bool{
	ShapeUser: {
		HeaderAuthorization: true,
		HeaderCookie:        true,
	},
	ShapeService: {
		HeaderTenantID:       true,
		HeaderInternalAPIKey: true,
		HeaderAuthorization:  true,
	},
}

// Header set errors.
var (
	ErrHeaderNotAllowed             = errors.New("header not allowed for shape")
	ErrConflictingServiceCredential = errors.New("service identity carries exactly one credential")
	ErrInvalidShape                 = errors.New("header set has no shape")
)

// ForwardedHeaders is a case-insensitive header set of a single shape.
// The zero value has no shape and rejects every header.
type ForwardedHeaders struct {
	shape  Shape
	values map[string]string
}

// NewUserHeaders returns an empty user-forwarding header set.
func NewUserHeaders() ForwardedHeaders {
	return ForwardedHeaders{shape: ShapeUser, values: make(map[string]string, 2)}
}

// NewServiceHeaders returns an empty service-identity header set.
func NewServiceHeaders() ForwardedHeaders {
	return ForwardedHeaders{shape: ShapeService, values: make(map[string]string, 2)}
}

// Shape returns the header set's shape.
func (h ForwardedHeaders) Shape() Shape {
	return h.shape
}

// Set stores a header. It fails when the header does not belong to the
// shape, or when a service set would end up with both an internal key and
// an Authorization header.
func (h *ForwardedHeaders) Set(name, value string) error {
	if h.shape != ShapeUser && h.shape != ShapeService {
		return ErrInvalidShape
	}
	key := textproto.CanonicalMIMEHeaderKey(name)
	if !allowedHeaders[h.shape][key] {
		return fmt.Errorf("%w: %s in %s set", ErrHeaderNotAllowed, key, h.shape)
	}
	if h.shape == ShapeService {
		other := ""
		switch key {
		case HeaderInternalAPIKey:
			other = HeaderAuthorization
		case HeaderAuthorization:
			other = HeaderInternalAPIKey
		}
		if _, ok := h.values[other]; other != "" && ok {
			return ErrConflictingServiceCredential
		}
	}
	if h.values == nil {
		h.values = make(map[string]string, 2)
	}
	h.values[key] = value
	return nil
}

// Get returns the header value, or "" when absent.
func (h ForwardedHeaders) Get(name string) string {
	return h.values[textproto.CanonicalMIMEHeaderKey(name)]
}

// Has reports whether the header is present.
func (h ForwardedHeaders) Has(name string) bool {
	_, ok := h.values[textproto.CanonicalMIMEHeaderKey(name)]
	return ok
}

// Len returns the number of headers.
func (h ForwardedHeaders) Len() int {
	return len(h.values)
}

// Names returns the header names in sorted order. Values are deliberately
// not exposed in bulk so a header set can be logged by name only.
func (h ForwardedHeaders) Names() []string {
	names := make([]string, 0, len(h.values))
	for k := range h.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// credentialValues returns the secret values the set carries. The token
// of an Authorization header is returned on its own as well.
func (h ForwardedHeaders) credentialValues() []string {
	var out []string
	if v := h.values[HeaderInternalAPIKey]; v != "" {
		out = append(out, v)
	}
	if v := h.values[HeaderAuthorization]; v != "" {
		out = append(out, v)
		if _, token, ok := strings.Cut(v, " "); ok && strings.TrimSpace(token) != "" {
			out = append(out, strings.TrimSpace(token))
		}
	}
	return out
}

// Apply writes the headers into dst, replacing any existing value.
func (h ForwardedHeaders) Apply(dst http.Header) {
	for k, v := range h.values {
		dst.Set(k, v)
	}
}
