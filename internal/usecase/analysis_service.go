package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kiranacompare/backend/internal/domain"
	"github.com/kiranacompare/backend/internal/metrics"
	"go.uber.org/zap"
)

// AnalysisServiceConfig holds configuration for the analysis service
type AnalysisServiceConfig struct {
	CacheTTL time.Duration
}

// AnalysisService runs product analyses with caching
type AnalysisService struct {
	cache    domain.CacheRepository
	provider domain.AnalysisProvider
	adapter  *ResponseAdapter
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewAnalysisService creates a new analysis service. cache may be nil to disable caching.
func NewAnalysisService(
	cache domain.CacheRepository,
	provider domain.AnalysisProvider,
	logger *zap.Logger,
	config AnalysisServiceConfig,
) *AnalysisService {
	if logger == nil {
		logger = zap.NewNop()
	}

	cacheTTL := config.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 6 * time.Hour
	}

	return &AnalysisService{
		cache:    cache,
		provider: provider,
		adapter:  NewResponseAdapter(logger),
		cacheTTL: cacheTTL,
		logger:   logger.Named("analysis"),
	}
}

// ProviderName reports which provider backs the service
func (s *AnalysisService) ProviderName() string {
	return s.provider.Name()
}

// Analyze compares a product across platforms.
// Flow: validate -> check cache -> provider -> adapt -> cache -> return
func (s *AnalysisService) Analyze(ctx context.Context, request *domain.AnalysisRequest) (*domain.AnalysisResponse, error) {
	req, image, err := NormalizeRequest(request)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}

	cacheKey := generateCacheKey(image, req.ProductName)

	if cached, err := s.getFromCache(ctx, cacheKey); err == nil {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		metrics.AnalysesTotal.WithLabelValues("cached").Inc()
		cached.Cached = true
		return cached, nil
	} else if s.cache != nil {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	raw, err := s.callProvider(ctx, req)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}

	result, sources, err := s.adapter.Adapt(raw)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}

	response := &domain.AnalysisResponse{
		Result:  *result,
		Sources: sources,
	}
	metrics.AnalysesTotal.WithLabelValues("success").Inc()
	metrics.GroundingSourcesReturned.Observe(float64(len(sources)))

	if err := s.setInCache(ctx, cacheKey, response); err != nil {
		s.logger.Warn("failed to cache analysis", zap.String("key", cacheKey), zap.Error(err))
	}

	return response, nil
}

// RawAnalyze forwards the request to the provider and returns its answer
// unadapted, in the proxy wire shape. Only the citations are cleaned up.
func (s *AnalysisService) RawAnalyze(ctx context.Context, request *domain.AnalysisRequest) (*domain.ProxyResponse, error) {
	req, _, err := NormalizeRequest(request)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}

	raw, err := s.callProvider(ctx, req)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}

	sources := DedupeCitations(raw.Citations)
	metrics.AnalysesTotal.WithLabelValues("raw").Inc()
	metrics.GroundingSourcesReturned.Observe(float64(len(sources)))

	return &domain.ProxyResponse{
		Text:    raw.Text,
		Sources: sources,
	}, nil
}

func (s *AnalysisService) callProvider(ctx context.Context, req *domain.AnalysisRequest) (*domain.RawProviderResponse, error) {
	start := time.Now()
	raw, err := s.provider.Analyze(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ProviderRequestDuration.WithLabelValues(s.provider.Name(), status).Observe(time.Since(start).Seconds())

	if err != nil {
		s.logger.Error("provider request failed",
			zap.String("provider", s.provider.Name()),
			zap.String("product", req.ProductName),
			zap.Error(err))
		if !errors.Is(err, domain.ErrProviderRequestFailed) && !errors.Is(err, domain.ErrRateLimited) {
			err = fmt.Errorf("%w: %v", domain.ErrProviderRequestFailed, err)
		}
		return nil, err
	}

	s.logger.Debug("provider answered",
		zap.String("provider", s.provider.Name()),
		zap.Int("textLen", len(raw.Text)),
		zap.Int("citations", len(raw.Citations)),
		zap.Duration("took", time.Since(start)))
	return raw, nil
}

// generateCacheKey hashes the image bytes and the normalized product name.
// Format: "analysis:{sha256 hex}"
func generateCacheKey(image []byte, productName string) string {
	h := sha256.New()
	h.Write(image)
	h.Write([]byte{0})
	h.Write([]byte(normalizeForCacheKey(productName)))
	return "analysis:" + hex.EncodeToString(h.Sum(nil))
}

// getFromCache retrieves an analysis from cache. Caches may hand back the
// stored pointer or a generic JSON decoding of it.
func (s *AnalysisService) getFromCache(ctx context.Context, key string) (*domain.AnalysisResponse, error) {
	if s.cache == nil {
		return nil, domain.ErrCacheMiss
	}

	value, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if resp, ok := value.(*domain.AnalysisResponse); ok {
		copied := *resp
		return &copied, nil
	}

	b, err := json.Marshal(value)
	if err != nil {
		return nil, domain.ErrCacheMiss
	}
	var resp domain.AnalysisResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, domain.ErrCacheMiss
	}
	if resp.Sources == nil {
		resp.Sources = []domain.GroundingSource{}
	}
	return &resp, nil
}

// setInCache stores an analysis in cache
func (s *AnalysisService) setInCache(ctx context.Context, key string, resp *domain.AnalysisResponse) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Set(ctx, key, resp, s.cacheTTL)
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrNoJSONFound):
		return "no_json"
	case errors.Is(err, domain.ErrMalformedJSON):
		return "malformed_json"
	case errors.Is(err, domain.ErrMissingFields):
		return "missing_fields"
	case errors.Is(err, domain.ErrProviderRequestFailed):
		return "provider_error"
	default:
		return "error"
	}
}
