package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	corsHandler := CORS([]string{"http://localhost:8080", "http://wallboard.local"})(handler)

	tests := []struct {
		name       string
		origin     string
		method     string
		preflight  string
		wantOrigin string
	}{
		{"presentation origin", "http://localhost:8080", http.MethodGet, "", "http://localhost:8080"},
		{"second origin", "http://wallboard.local", http.MethodGet, "", "http://wallboard.local"},
		{"foreign origin", "http://evil.com", http.MethodGet, "", ""},
		{"preflight for column move", "http://localhost:8080", http.MethodOptions, http.MethodPost, "http://localhost:8080"},
		{"preflight for filter clear", "http://localhost:8080", http.MethodOptions, http.MethodDelete, "http://localhost:8080"},
		{"preflight for unsupported method", "http://localhost:8080", http.MethodOptions, http.MethodPatch, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/columns", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight != "" {
				req.Header.Set("Access-Control-Request-Method", tt.preflight)
			}
			rec := httptest.NewRecorder()

			corsHandler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}
