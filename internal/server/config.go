package server

import (
	"time"

	"github.com/agentstation/ecomap/pkg/constants"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address, for example ":8080".
	Addr string

	// PathPrefix is prepended to every API route.
	PathPrefix string

	// CORSOrigins enables CORS when set. "*" allows every origin.
	CORSOrigins []string

	// APIKey protects write endpoints when set. ProtectReads extends the
	// check to read endpoints.
	APIKey       string
	AuthHeader   string
	ProtectReads bool

	// RateLimit is requests per minute per client, 0 disables it.
	RateLimit int

	// CacheTTL bounds how long catalog list responses are cached.
	CacheTTL time.Duration

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration

	// Tracing wraps the handler in OpenTelemetry HTTP instrumentation.
	Tracing bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		PathPrefix:        "/api/v1",
		AuthHeader:        "X-API-Key",
		RateLimit:         300,
		CacheTTL:          constants.DefaultCacheTTL,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		Tracing:           true,
	}
}
