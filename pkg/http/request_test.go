package http_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractClientIP_DirectConnection_IgnoresHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	req.Header.Set("X-Real-IP", "192.168.1.1")

	config := pkghttp.ParseTrustedProxies("10.0.0.0/8, 127.0.0.1/32")

	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_TrustedProxy_UsesXForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.42, 10.0.0.5")

	config := pkghttp.ParseTrustedProxies("10.0.0.0/8")

	assert.Equal(t, "203.0.113.42", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_TrustedProxy_FallsBackToRealIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "[::1]:54321"
	req.Header.Set("X-Real-IP", "2001:db8::1")

	config := pkghttp.ParseTrustedProxies("::1/128")

	assert.Equal(t, "2001:db8::1", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_NoConfig(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.7:1234"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")

	assert.Equal(t, "198.51.100.7", pkghttp.ExtractClientIP(req, nil))
}

func TestParseTrustedProxies_SkipsBlanks(t *testing.T) {
	cfg := pkghttp.ParseTrustedProxies(" 10.0.0.0/8, ,172.16.0.0/12,")
	assert.Equal(t, []string{"10.0.0.0/8", "172.16.0.0/12"}, cfg.TrustedProxies)
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Username string `json:"username"`
	}

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"username":"alice"}`, false},
		{"unknown field", `{"username":"alice","admin":true}`, true},
		{"trailing data", `{"username":"alice"}{"username":"bob"}`, true},
		{"malformed", `{"username":`, true},
		{"oversized", `{"username":"` + strings.Repeat("a", pkghttp.MaxBodyBytes) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tt.payload))
			w := httptest.NewRecorder()

			var dst body
			err := pkghttp.DecodeJSON(w, req, &dst)
			if tt.wantErr {
				require.ErrorIs(t, err, pkghttp.ErrInvalidBody)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", dst.Username)
		})
	}
}
