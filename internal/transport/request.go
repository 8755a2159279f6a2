package transport

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/logging"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 64 << 20

// Fetch downloads url and returns its body together with the feed format
// it is encoded in.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, "", err
	}
	body, err := ReadBody(ctx, resp)
	if err != nil {
		return nil, "", err
	}
	return body, Format(resp), nil
}

// ReadBody reads a response body and turns non-2xx statuses into an
// APIError carrying the start of the body.
func ReadBody(ctx context.Context, resp *http.Response) ([]byte, error) {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Msg("failed to close response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.WrapIO("read", "response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		endpoint := ""
		if resp.Request != nil && resp.Request.URL != nil {
			endpoint = resp.Request.URL.Redacted()
		}
		return nil, &errors.APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: msg}
	}
	return body, nil
}

// Format infers the feed format of a response from the request path
// extension, then the Content-Type header. JSON is the fallback.
func Format(resp *http.Response) string {
	if resp.Request != nil && resp.Request.URL != nil {
		if f := formatFromURL(resp.Request.URL); f != "" {
			return f
		}
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(mediaType, "ndjson"), strings.Contains(mediaType, "jsonl"):
		return "jsonl"
	case strings.Contains(mediaType, "yaml"):
		return "yaml"
	default:
		return "json"
	}
}

func formatFromURL(u *url.URL) string {
	switch ext := strings.ToLower(path.Ext(u.Path)); ext {
	case ".json", ".jsonl", ".ndjson", ".yaml", ".yml":
		return strings.TrimPrefix(ext, ".")
	default:
		return ""
	}
}

// IsURL reports whether s names a remote http(s) feed rather than a path.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
