package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kiranacompare/backend/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.5-flash"

	maxResponseBytes = 4 << 20
)

// Config holds the settings of a direct Gemini client
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	Temperature       float64
	RequestsPerMinute int
}

// Client calls the Gemini generateContent API with web search grounding
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxRetries  int
	rateLimiter *rate.Limiter
	backoff     func(attempt int) time.Duration
	logger      *zap.Logger
	debug       bool
}

// NewClient creates a new Gemini API client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		rateLimiter: rate.NewLimiter(limit, 5),
		backoff:     exponentialBackoff,
		logger:      logger.Named("gemini"),
	}
}

// SetDebug enables logging of raw provider bodies
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// Name identifies the provider in logs and metrics
func (c *Client) Name() string {
	return "gemini"
}

// exponentialBackoff returns 500ms, 1s, 2s, ... for attempts 1, 2, 3, ...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

// Analyze sends the product image and prompt to Gemini and returns the
// candidate text with its grounding citations.
func (c *Client) Analyze(ctx context.Context, req *domain.AnalysisRequest) (*domain.RawProviderResponse, error) {
	if req == nil {
		return nil, domain.ErrInvalidRequest
	}

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrProviderRequestFailed, err)
		}

		raw, retryable, err := c.doRequest(ctx, endpoint, body)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if !retryable || attempt == c.maxRetries {
			break
		}

		wait := c.backoff(attempt)
		c.logger.Warn("retrying generateContent",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderRequestFailed, ctx.Err())
		case <-time.After(wait):
		}
	}

	return nil, lastErr
}

func (c *Client) buildRequest(req *domain.AnalysisRequest) generateContentRequest {
	return generateContentRequest{
		Contents: []content{
			{
				Role: "user",
				Parts: []part{
					{InlineData: &inlineData{MimeType: req.MimeType, Data: req.Base64Image}},
					{Text: BuildAnalysisPrompt(req.ProductName)},
				},
			},
		},
		Tools: []tool{{GoogleSearch: &googleSearch{}}},
		GenerationConfig: generationConfig{
			Temperature: c.temperature,
		},
	}
}

// doRequest performs one generateContent call. The bool reports whether a
// failure is worth retrying.
func (c *Client) doRequest(ctx context.Context, endpoint string, body []byte) (*domain.RawProviderResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("User-Agent", "KiranaCompare/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// a cancelled caller is not worth retrying
		retryable := ctx.Err() == nil
		return nil, retryable, fmt.Errorf("%w: %v", domain.ErrProviderRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, fmt.Errorf("%w: failed to read response: %v", domain.ErrProviderRequestFailed, err)
	}

	if c.debug {
		c.logger.Debug("generateContent response",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, statusError(resp.StatusCode, respBody)
	}

	var parsed generateContentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, false, fmt.Errorf("%w: failed to decode response: %v", domain.ErrProviderRequestFailed, err)
	}

	if len(parsed.Candidates) == 0 {
		reason := "no candidates"
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + parsed.PromptFeedback.BlockReason
		}
		return nil, false, fmt.Errorf("%w: %s", domain.ErrProviderRequestFailed, reason)
	}

	raw := MapToRawResponse(&parsed)
	if strings.TrimSpace(raw.Text) == "" {
		return nil, false, fmt.Errorf("%w: empty response text (finish reason %q)",
			domain.ErrProviderRequestFailed, parsed.Candidates[0].FinishReason)
	}

	c.logger.Debug("generateContent ok",
		zap.Int("textLen", len(raw.Text)),
		zap.Int("groundingChunks", len(raw.Citations)))
	return raw, false, nil
}

// statusError classifies a non-2xx answer. A 429 is ErrRateLimited.
func statusError(status int, body []byte) error {
	sentinel := domain.ErrProviderRequestFailed
	if status == http.StatusTooManyRequests {
		sentinel = domain.ErrRateLimited
	}

	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return fmt.Errorf("%w: status %d: %s", sentinel, status, parsed.Error.Message)
	}
	return fmt.Errorf("%w: status %d", sentinel, status)
}
