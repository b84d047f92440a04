package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kiranacompare/backend/internal/domain"
	"github.com/kiranacompare/backend/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// MockCacheRepository is a mock implementation of domain.CacheRepository
type MockCacheRepository struct {
	data      map[string]interface{}
	getError  error
	setError  error
	getCalled bool
	setCalled bool
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		data: make(map[string]interface{}),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) (interface{}, error) {
	m.getCalled = true
	if m.getError != nil {
		return nil, m.getError
	}
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, domain.ErrCacheMiss
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.setCalled = true
	if m.setError != nil {
		return m.setError
	}
	m.data[key] = value
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *MockCacheRepository) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.data[key]
	return ok, nil
}

// MockProvider is a mock implementation of domain.AnalysisProvider
type MockProvider struct {
	response *domain.RawProviderResponse
	err      error
	calls    int
	lastReq  *domain.AnalysisRequest
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Analyze(ctx context.Context, req *domain.AnalysisRequest) (*domain.RawProviderResponse, error) {
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

const fencedAnswer = "```json\n" +
	`{"priceComparison":"₹95 - ₹110","deliveryTimes":"10 minutes to 2 days",` +
	`"qualityRatings":"4.4/5","platformAvailability":"Blinkit, Zepto, Amazon"}` +
	"\n```"

func testRequest() *domain.AnalysisRequest {
	return &domain.AnalysisRequest{
		Base64Image: base64.StdEncoding.EncodeToString(testImage),
		MimeType:    "image/png",
		ProductName: "Tata Salt",
	}
}

func TestNewAnalysisService(t *testing.T) {
	t.Run("creates service with default values", func(t *testing.T) {
		svc := NewAnalysisService(NewMockCacheRepository(), &MockProvider{}, nil, AnalysisServiceConfig{})
		if svc == nil {
			t.Fatal("expected service to be created")
		}
		if svc.cacheTTL != 6*time.Hour {
			t.Errorf("cacheTTL = %v, want 6h", svc.cacheTTL)
		}
		if svc.ProviderName() != "mock" {
			t.Errorf("ProviderName() = %q, want mock", svc.ProviderName())
		}
	})

	t.Run("creates service with custom values", func(t *testing.T) {
		svc := NewAnalysisService(nil, &MockProvider{}, nil, AnalysisServiceConfig{CacheTTL: time.Hour})
		if svc.cacheTTL != time.Hour {
			t.Errorf("cacheTTL = %v, want 1h", svc.cacheTTL)
		}
	})
}

func TestAnalyze(t *testing.T) {
	ctx := context.Background()

	t.Run("returns error for nil request", func(t *testing.T) {
		provider := &MockProvider{}
		svc := NewAnalysisService(NewMockCacheRepository(), provider, nil, AnalysisServiceConfig{})

		_, err := svc.Analyze(ctx, nil)
		if !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("error = %v, want ErrInvalidRequest", err)
		}
		if provider.calls != 0 {
			t.Errorf("provider called %d times, want 0", provider.calls)
		}
	})

	t.Run("adapts provider answer and caches it", func(t *testing.T) {
		cache := NewMockCacheRepository()
		uri, title := "https://blinkit.com/p/salt", "Blinkit"
		provider := &MockProvider{response: &domain.RawProviderResponse{
			Text: fencedAnswer,
			Citations: []domain.RawCitation{
				{Web: &domain.RawWebCitation{URI: &uri, Title: &title}},
				{Web: &domain.RawWebCitation{URI: &uri, Title: &title}},
			},
		}}
		svc := NewAnalysisService(cache, provider, nil, AnalysisServiceConfig{})

		resp, err := svc.Analyze(ctx, testRequest())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Result.PriceComparison != "₹95 - ₹110" {
			t.Errorf("PriceComparison = %q", resp.Result.PriceComparison)
		}
		if len(resp.Sources) != 1 {
			t.Errorf("len(Sources) = %d, want 1", len(resp.Sources))
		}
		if resp.Cached {
			t.Error("fresh result should not be marked cached")
		}
		if !cache.setCalled {
			t.Error("expected cache.Set to be called")
		}
		if provider.lastReq.ProductName != "Tata Salt" {
			t.Errorf("provider got product %q", provider.lastReq.ProductName)
		}
	})

	t.Run("returns cached data on cache hit", func(t *testing.T) {
		cache := NewMockCacheRepository()
		provider := &MockProvider{response: &domain.RawProviderResponse{Text: fencedAnswer}}
		svc := NewAnalysisService(cache, provider, nil, AnalysisServiceConfig{})

		if _, err := svc.Analyze(ctx, testRequest()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// same image, differently spelled name
		req := testRequest()
		req.ProductName = "  tata salt!"
		resp, err := svc.Analyze(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !resp.Cached {
			t.Error("expected cached result")
		}
		if provider.calls != 1 {
			t.Errorf("provider called %d times, want 1", provider.calls)
		}
	})

	t.Run("decodes generic cached values", func(t *testing.T) {
		cache := NewMockCacheRepository()
		req := testRequest()
		cache.data[generateCacheKey(testImage, req.ProductName)] = map[string]interface{}{
			"result": map[string]interface{}{
				"priceComparison":      "₹10",
				"deliveryTimes":        "1 day",
				"qualityRatings":       "4/5",
				"platformAvailability": "JioMart",
			},
		}
		provider := &MockProvider{}
		svc := NewAnalysisService(cache, provider, nil, AnalysisServiceConfig{})

		resp, err := svc.Analyze(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Result.PlatformAvailability != "JioMart" {
			t.Errorf("PlatformAvailability = %q, want JioMart", resp.Result.PlatformAvailability)
		}
		if resp.Sources == nil {
			t.Error("Sources should be empty, not nil")
		}
		if provider.calls != 0 {
			t.Errorf("provider called %d times, want 0", provider.calls)
		}
	})

	t.Run("wraps provider failures", func(t *testing.T) {
		cache := NewMockCacheRepository()
		provider := &MockProvider{err: errors.New("connection reset")}
		svc := NewAnalysisService(cache, provider, nil, AnalysisServiceConfig{})

		_, err := svc.Analyze(ctx, testRequest())
		if !errors.Is(err, domain.ErrProviderRequestFailed) {
			t.Errorf("error = %v, want ErrProviderRequestFailed", err)
		}
		if cache.setCalled {
			t.Error("failures should not be cached")
		}
	})

	t.Run("keeps rate limit errors distinct", func(t *testing.T) {
		provider := &MockProvider{err: fmt.Errorf("%w: status 429", domain.ErrRateLimited)}
		svc := NewAnalysisService(nil, provider, nil, AnalysisServiceConfig{})

		_, err := svc.Analyze(ctx, testRequest())
		if !errors.Is(err, domain.ErrRateLimited) {
			t.Errorf("error = %v, want ErrRateLimited", err)
		}
		if errors.Is(err, domain.ErrProviderRequestFailed) {
			t.Error("rate limit should not be reported as provider failure")
		}
	})

	t.Run("surfaces adapter errors", func(t *testing.T) {
		cache := NewMockCacheRepository()
		provider := &MockProvider{response: &domain.RawProviderResponse{Text: `{"priceComparison":"₹100"}`}}
		svc := NewAnalysisService(cache, provider, nil, AnalysisServiceConfig{})

		_, err := svc.Analyze(ctx, testRequest())
		if !errors.Is(err, domain.ErrMissingFields) {
			t.Errorf("error = %v, want ErrMissingFields", err)
		}
		if cache.setCalled {
			t.Error("failures should not be cached")
		}
	})

	t.Run("cache write failure does not fail the request", func(t *testing.T) {
		cache := NewMockCacheRepository()
		cache.setError = errors.New("redis down")
		provider := &MockProvider{response: &domain.RawProviderResponse{Text: fencedAnswer}}
		svc := NewAnalysisService(cache, provider, nil, AnalysisServiceConfig{})

		if _, err := svc.Analyze(ctx, testRequest()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("works without a cache", func(t *testing.T) {
		provider := &MockProvider{response: &domain.RawProviderResponse{Text: fencedAnswer}}
		svc := NewAnalysisService(nil, provider, nil, AnalysisServiceConfig{})

		for i := 0; i < 2; i++ {
			if _, err := svc.Analyze(ctx, testRequest()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if provider.calls != 2 {
			t.Errorf("provider called %d times, want 2", provider.calls)
		}
	})
}

func TestRawAnalyze(t *testing.T) {
	ctx := context.Background()

	t.Run("passes text through and dedupes citations", func(t *testing.T) {
		uri, title := "https://zepto.com", "Zepto"
		provider := &MockProvider{response: &domain.RawProviderResponse{
			Text: "anything at all",
			Citations: []domain.RawCitation{
				{Web: &domain.RawWebCitation{URI: &uri, Title: &title}},
				{Web: &domain.RawWebCitation{URI: &uri, Title: &title}},
				{},
			},
		}}
		svc := NewAnalysisService(nil, provider, nil, AnalysisServiceConfig{})

		resp, err := svc.RawAnalyze(ctx, testRequest())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Text != "anything at all" {
			t.Errorf("Text = %q", resp.Text)
		}
		if len(resp.Sources) != 1 {
			t.Fatalf("len(Sources) = %d, want 1", len(resp.Sources))
		}
		if *resp.Sources[0].Web.URI != uri {
			t.Errorf("Sources[0] uri = %q, want %q", *resp.Sources[0].Web.URI, uri)
		}
	})

	t.Run("records outcome metrics", func(t *testing.T) {
		provider := &MockProvider{response: &domain.RawProviderResponse{Text: "x"}}
		svc := NewAnalysisService(nil, provider, nil, AnalysisServiceConfig{})

		before := testutil.ToFloat64(metrics.AnalysesTotal.WithLabelValues("raw"))
		if _, err := svc.RawAnalyze(ctx, testRequest()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		after := testutil.ToFloat64(metrics.AnalysesTotal.WithLabelValues("raw"))
		if after != before+1 {
			t.Errorf("raw outcome count = %v, want %v", after, before+1)
		}

		failing := NewAnalysisService(nil, &MockProvider{err: domain.ErrRateLimited}, nil, AnalysisServiceConfig{})
		before = testutil.ToFloat64(metrics.AnalysesTotal.WithLabelValues("rate_limited"))
		if _, err := failing.RawAnalyze(ctx, testRequest()); !errors.Is(err, domain.ErrRateLimited) {
			t.Fatalf("error = %v, want ErrRateLimited", err)
		}
		after = testutil.ToFloat64(metrics.AnalysesTotal.WithLabelValues("rate_limited"))
		if after != before+1 {
			t.Errorf("rate_limited outcome count = %v, want %v", after, before+1)
		}
	})

	t.Run("rejects invalid request", func(t *testing.T) {
		svc := NewAnalysisService(nil, &MockProvider{}, nil, AnalysisServiceConfig{})
		_, err := svc.RawAnalyze(ctx, &domain.AnalysisRequest{})
		if !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("error = %v, want ErrInvalidRequest", err)
		}
	})
}

func TestGenerateCacheKey(t *testing.T) {
	a := generateCacheKey(testImage, "Tata Salt")
	b := generateCacheKey(testImage, "tata  salt.")
	c := generateCacheKey(testImage, "Tata Sugar")

	if a != b {
		t.Errorf("normalized names should share a key: %s != %s", a, b)
	}
	if a == c {
		t.Error("different names should not share a key")
	}
	if len(a) != len("analysis:")+64 {
		t.Errorf("unexpected key length %d", len(a))
	}
}

func TestOutcomeLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrInvalidRequest, "invalid_request"},
		{domain.ErrRateLimited, "rate_limited"},
		{domain.ErrNoJSONFound, "no_json"},
		{&domain.MalformedJSONError{Cause: errors.New("x")}, "malformed_json"},
		{&domain.MissingFieldsError{Fields: []string{"a"}}, "missing_fields"},
		{domain.ErrProviderRequestFailed, "provider_error"},
		{errors.New("other"), "error"},
	}

	for _, tt := range tests {
		if got := outcomeLabel(tt.err); got != tt.want {
			t.Errorf("outcomeLabel(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
