package chi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func authProtected(keys []string) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return BearerAuthMiddleware(keys)(ok)
}

func TestBearerAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		keys   []string
		path   string
		header string
		want   int
	}{
		{"no keys disables auth", nil, "/v1/ask", "", http.StatusOK},
		{"missing header", []string{"secret"}, "/v1/ask", "", http.StatusUnauthorized},
		{"wrong scheme", []string{"secret"}, "/v1/ask", "Basic secret", http.StatusUnauthorized},
		{"wrong key", []string{"secret"}, "/v1/ask", "Bearer nope", http.StatusUnauthorized},
		{"valid key", []string{"secret"}, "/v1/ask", "Bearer secret", http.StatusOK},
		{"health exempt", []string{"secret"}, "/health", "", http.StatusOK},
		{"metrics exempt", []string{"secret"}, "/metrics", "", http.StatusOK},
		{"empty key ignored", []string{""}, "/v1/ask", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			authProtected(tt.keys).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
