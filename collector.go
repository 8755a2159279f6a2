package ecomap

import (
	"context"

	"github.com/agentstation/ecomap/internal/feed"
	"github.com/agentstation/ecomap/internal/transport"
	"github.com/agentstation/ecomap/pkg/entity"
)

// Collector supplies raw records to the collection job. Fetching pages and
// calling external APIs happen behind this interface.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]entity.RawRecord, error)
}

// CollectorFunc adapts a function to a Collector.
type CollectorFunc struct {
	ID string
	Fn func(ctx context.Context) ([]entity.RawRecord, error)
}

// Name implements Collector.
func (f CollectorFunc) Name() string { return f.ID }

// Collect implements Collector.
func (f CollectorFunc) Collect(ctx context.Context) ([]entity.RawRecord, error) {
	return f.Fn(ctx)
}

// FeedCollector reads raw records from a feed file or directory on every run.
func FeedCollector(path string) Collector {
	return CollectorFunc{
		ID: "feed:" + path,
		Fn: func(ctx context.Context) ([]entity.RawRecord, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			src, err := feed.Open(path)
			if err != nil {
				return nil, err
			}
			return src.Records()
		},
	}
}

// HTTPCollector fetches raw records from a remote feed on every run. The
// body is decoded by the URL extension or, failing that, its Content-Type.
// Auth is a scheme understood by transport.ParseAuth and is only applied
// when apiKey is set.
func HTTPCollector(url, auth, apiKey string) (Collector, error) {
	authenticator, err := transport.ParseAuth(auth)
	if err != nil {
		return nil, err
	}
	client := transport.New(authenticator, apiKey)
	return CollectorFunc{
		ID: "http:" + url,
		Fn: func(ctx context.Context) ([]entity.RawRecord, error) {
			body, format, err := client.Fetch(ctx, url)
			if err != nil {
				return nil, err
			}
			return feed.ParseRecords(url, format, body)
		},
	}, nil
}
