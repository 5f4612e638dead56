package credential

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/tenantgw/internal/proxy"
)

func newRequest(authorization string, cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/orchestrator/inbox", nil)
	if authorization != "" {
		r.Header.Set("Authorization", authorization)
	}
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Mode
	}{
		{"dev", Dev},
		{"development", Dev},
		{" DEV ", Dev},
		{"prod", Prod},
		{"production", Prod},
		{"", Prod},
		{"staging", Prod},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseMode(tt.in), tt.in)
	}
	assert.Equal(t, "dev", Dev.String())
	assert.Equal(t, "prod", Prod.String())
}

func TestPolicy_Resolve(t *testing.T) {
	t.Parallel()

	devCookie := &http.Cookie{Name: DevTokenCookie, Value: "xyz"}
	sessionCookie := &http.Cookie{Name: "sid", Value: "s1"}

	tests := []struct {
		name       string
		mode       Mode
		req        *http.Request
		wantAuth   string
		wantCookie string
		wantToken  string
	}{
		{
			name:      "prod forwards authorization verbatim",
			mode:      Prod,
			req:       newRequest("Bearer abc"),
			wantAuth:  "Bearer abc",
			wantToken: "abc",
		},
		{
			name:       "prod ignores dev_token cookie",
			mode:       Prod,
			req:        newRequest("Bearer abc", devCookie),
			wantAuth:   "Bearer abc",
			wantCookie: "dev_token=xyz",
			wantToken:  "abc",
		},
		{
			name:       "prod with only dev_token has no authorization",
			mode:       Prod,
			req:        newRequest("", devCookie),
			wantCookie: "dev_token=xyz",
		},
		{
			name:       "dev uses dev_token when no header",
			mode:       Dev,
			req:        newRequest("", devCookie),
			wantAuth:   "Bearer xyz",
			wantCookie: "dev_token=xyz",
			wantToken:  "xyz",
		},
		{
			name:       "dev_token overrides header in dev",
			mode:       Dev,
			req:        newRequest("Bearer abc", devCookie, sessionCookie),
			wantAuth:   "Bearer xyz",
			wantCookie: "dev_token=xyz; sid=s1",
			wantToken:  "xyz",
		},
		{
			name:       "dev_token already prefixed",
			mode:       Dev,
			req:        newRequest("", &http.Cookie{Name: DevTokenCookie, Value: "Bearer xyz"}),
			wantAuth:   "Bearer xyz",
			wantCookie: `dev_token="Bearer xyz"`,
			wantToken:  "xyz",
		},
		{
			name:      "dev without cookie falls back to header",
			mode:      Dev,
			req:       newRequest("Bearer abc"),
			wantAuth:  "Bearer abc",
			wantToken: "abc",
		},
		{
			name:       "cookie forwarded without any bearer",
			mode:       Dev,
			req:        newRequest("", sessionCookie),
			wantCookie: "sid=s1",
		},
		{
			name:     "non bearer scheme forwarded but yields no token",
			mode:     Prod,
			req:      newRequest("Basic dXNlcjpwdw=="),
			wantAuth: "Basic dXNlcjpwdw==",
		},
		{
			name: "nothing presented",
			mode: Prod,
			req:  newRequest(""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			policy := NewPolicy(tt.mode)
			rc := NewRequestContext(tt.req, tt.mode, nil)
			h := policy.Resolve(rc)

			assert.Equal(t, tt.mode, policy.Mode())
			assert.Equal(t, proxy.ShapeUser, h.Shape())
			assert.Equal(t, tt.wantAuth, h.Get(proxy.HeaderAuthorization))
			assert.Equal(t, tt.wantAuth != "", h.Has(proxy.HeaderAuthorization))
			assert.Equal(t, tt.wantCookie, h.Get(proxy.HeaderCookie))
			assert.Equal(t, tt.wantToken, policy.BearerToken(rc))
		})
	}
}

func TestRequestContext_Body(t *testing.T) {
	t.Parallel()

	body := []byte(`{"tenant_id":"other"}`)
	rc := NewRequestContext(newRequest(""), Dev, body)

	assert.Equal(t, body, rc.RawBody())
	assert.Equal(t, Dev, rc.Mode())
	assert.Nil(t, NewRequestContext(newRequest(""), Prod, nil).RawBody())
}

func TestRequestContext_EmptyDevToken(t *testing.T) {
	t.Parallel()

	rc := NewRequestContext(newRequest("", &http.Cookie{Name: DevTokenCookie, Value: ""}), Dev, nil)
	_, ok := rc.DevToken()
	assert.False(t, ok)
}
