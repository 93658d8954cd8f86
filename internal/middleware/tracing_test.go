package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracing_HonorsValidRequestID(t *testing.T) {
	supplied := uuid.New().String()

	var seen string
	h := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(traceIDHeader, supplied)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, supplied, seen)
	assert.Equal(t, supplied, rec.Header().Get(traceIDHeader))
}

func TestTracing_ReplacesInvalidRequestID(t *testing.T) {
	tests := []struct {
		name     string
		supplied string
	}{
		{name: "missing", supplied: ""},
		{name: "not a uuid", supplied: "trace-me-please"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = TraceIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.supplied != "" {
				req.Header.Set(traceIDHeader, tt.supplied)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.NotEmpty(t, seen)
			assert.NotEqual(t, tt.supplied, seen)
			_, err := uuid.Parse(seen)
			assert.NoError(t, err)
			assert.Equal(t, seen, rec.Header().Get(traceIDHeader))
		})
	}
}
