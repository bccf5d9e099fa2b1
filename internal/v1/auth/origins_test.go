package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetAllowedOrigins(t *testing.T) {
	defaults := []string{"http://localhost:3000"}

	assert.Equal(t, defaults, GetAllowedOrigins("", defaults))

	got := GetAllowedOrigins("http://a.com,https://b.com", defaults)
	assert.Equal(t, []string{"http://a.com", "https://b.com"}, got)
}

func TestValidateOrigin(t *testing.T) {
	allowed := []string{"http://localhost:3000", "https://play.example.com"}

	tests := []struct {
		name    string
		origin  string
		wantErr bool
	}{
		{"no origin header allows non-browser clients", "", false},
		{"allowed origin", "http://localhost:3000", false},
		{"second allowed origin", "https://play.example.com", false},
		{"scheme mismatch", "https://localhost:3000", true},
		{"host mismatch", "http://evil.com", true},
		{"port mismatch", "http://localhost:9999", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			err := ValidateOrigin(req, allowed)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOrigin_SkipsMalformedAllowedEntries(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")

	err := ValidateOrigin(req, []string{"://bad", "http://localhost:3000"})
	assert.NoError(t, err)
}
