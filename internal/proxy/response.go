package proxy

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin/render"
)

// ErrorBody is the JSON envelope returned to callers on failure.
type ErrorBody struct {
	Error   ErrorKind `json:"error"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	Target  string    `json:"target,omitempty"`
}

// WriteResponse passes a successful upstream response through unmodified.
func WriteResponse(w http.ResponseWriter, resp *Response) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// WriteError renders err as an ErrorBody. A cancelled caller gets nothing.
// It reports whether anything was written.
func WriteError(w http.ResponseWriter, err error) bool {
	if errors.Is(err, ErrCallerGone) {
		return false
	}

	pe := AsProxyError(err)
	body := ErrorBody{
		Error:   pe.Kind,
		Message: pe.Message,
		Details: pe.Details,
	}
	if pe.Kind == KindConnection {
		body.Target = pe.Target
	}

	writeJSON(w, pe.HTTPStatus(), body)
	return true
}

func writeJSON(w http.ResponseWriter, status int, obj any) {
	r := render.JSON{Data: obj}
	r.WriteContentType(w)
	w.WriteHeader(status)
	if err := r.Render(w); err != nil {
		_, _ = w.Write([]byte(`{"error":"proxy_error","message":"failed to encode error"}`))
	}
}
