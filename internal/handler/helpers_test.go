package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maxkornevpro/key/internal/keys"
	"github.com/maxkornevpro/key/internal/store"
)

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		key        string
		defaultVal int
		want       int
	}{
		{"returns default for missing param", "/test", "limit", 20, 20},
		{"parses integer param", "/test?limit=100", "limit", 20, 100},
		{"returns default for non-integer", "/test?limit=abc", "limit", 20, 20},
		{"parses zero", "/test?limit=0", "limit", 20, 0},
		{"parses negative", "/test?limit=-5", "limit", 0, -5},
		{"returns default for empty value", "/test?limit=", "limit", 20, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			got := queryInt(r, tt.key, tt.defaultVal)
			if got != tt.want {
				t.Errorf("queryInt(%q, %d) = %d, want %d", tt.key, tt.defaultVal, got, tt.want)
			}
		})
	}
}

func TestClampInt(t *testing.T) {
	tests := []struct {
		val, min, max, want int
	}{
		{5, 0, 10, 5},
		{-1, 0, 10, 0},
		{11, 0, 10, 10},
	}
	for _, tt := range tests {
		if got := clampInt(tt.val, tt.min, tt.max); got != tt.want {
			t.Errorf("clampInt(%d, %d, %d) = %d, want %d", tt.val, tt.min, tt.max, got, tt.want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("%w: abc", keys.ErrNotFound), http.StatusNotFound},
		{"invalid duration", fmt.Errorf("%w: %q", keys.ErrInvalidDuration, "1d12h"), http.StatusBadRequest},
		{"collision", fmt.Errorf("%w: %w", store.ErrWriteFailed, keys.ErrKeyCollision), http.StatusInternalServerError},
		{"malformed", fmt.Errorf("%w: keys.json", store.ErrMalformedData), http.StatusInternalServerError},
		{"write failed", fmt.Errorf("%w: rename", store.ErrWriteFailed), http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	seen := make(map[string]string)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := classifyError(tt.err)
			if code != tt.want {
				t.Errorf("code = %d, want %d", code, tt.want)
			}
			if prev, dup := seen[msg]; dup {
				t.Errorf("message %q shared with %s", msg, prev)
			}
			seen[msg] = tt.name
		})
	}
}
