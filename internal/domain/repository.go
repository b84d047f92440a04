package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// AnalysisProvider sends an image + product name to a generative model,
// either directly or through a proxy, and returns its unprocessed answer.
type AnalysisProvider interface {
	Name() string
	Analyze(ctx context.Context, req *AnalysisRequest) (*RawProviderResponse, error)
}
