package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestAuth(t *testing.T) {
	logger := zerolog.Nop()
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name    string
		config  AuthConfig
		method  string
		path    string
		headers map[string]string
		want    int
	}{
		{name: "disabled", config: AuthConfig{}, method: "POST", path: "/api/v1/jobs/x/trigger", want: http.StatusOK},
		{name: "read allowed", config: AuthConfig{APIKey: "k"}, method: "GET", path: "/api/v1/entities", want: http.StatusOK},
		{name: "read protected", config: AuthConfig{APIKey: "k", ProtectReads: true}, method: "GET", path: "/api/v1/entities", want: http.StatusUnauthorized},
		{name: "public path", config: AuthConfig{APIKey: "k", ProtectReads: true, PublicPaths: []string{"/health"}}, method: "GET", path: "/health", want: http.StatusOK},
		{name: "write without key", config: AuthConfig{APIKey: "k"}, method: "POST", path: "/api/v1/entities/e1/review", want: http.StatusUnauthorized},
		{name: "write wrong key", config: AuthConfig{APIKey: "k"}, method: "POST", path: "/x", headers: map[string]string{"X-API-Key": "nope"}, want: http.StatusUnauthorized},
		{name: "header key", config: AuthConfig{APIKey: "k"}, method: "POST", path: "/x", headers: map[string]string{"X-API-Key": "k"}, want: http.StatusOK},
		{name: "custom header", config: AuthConfig{APIKey: "k", HeaderName: "X-Ecomap-Key"}, method: "POST", path: "/x", headers: map[string]string{"X-Ecomap-Key": "k"}, want: http.StatusOK},
		{name: "bearer key", config: AuthConfig{APIKey: "k"}, method: "POST", path: "/x", headers: map[string]string{"Authorization": "Bearer k"}, want: http.StatusOK},
		{name: "basic rejected", config: AuthConfig{APIKey: "k"}, method: "POST", path: "/x", headers: map[string]string{"Authorization": "Basic k"}, want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			Auth(tt.config, &logger)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
