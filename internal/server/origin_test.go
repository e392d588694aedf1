package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCheckOrigin(t *testing.T) {
	allowedOrigin := "https://todo.example.com"

	tests := []struct {
		name          string
		origin        string
		isDevelopment bool
		want          bool
	}{
		// Always allowed
		{"empty origin", "", false, true},
		{"configured origin", "https://todo.example.com", false, true},

		// Rejected in production
		{"different host", "https://evil.com", false, false},
		{"different port", "https://todo.example.com:9090", false, false},
		{"http instead of https", "http://todo.example.com", false, false},
		{"subdomain", "https://sub.todo.example.com", false, false},

		// Localhost: allowed in dev, rejected in prod
		{"localhost dev", "http://localhost:5173", true, true},
		{"localhost no port dev", "http://localhost", true, true},
		{"127.0.0.1 dev", "http://127.0.0.1:5173", true, true},
		{"localhost prod rejected", "http://localhost:5173", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewCheckOrigin(allowedOrigin, tt.isDevelopment)
			r, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checker(r))
		})
	}
}

func TestExtractOrigin(t *testing.T) {
	tests := []struct {
		name   string
		rawURL string
		want   string
	}{
		{"plain origin", "https://example.com", "https://example.com"},
		{"URL with path", "https://example.com/app", "https://example.com"},
		{"URL with port", "http://localhost:5173", "http://localhost:5173"},
		{"empty string", "", ""},
		{"no host", "mailto:user@example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractOrigin(tt.rawURL))
		})
	}
}
