package proxy

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
)

const maxResponseBytes = 4 << 20

// Client forwards analysis requests to a remote proxy that holds the provider credential
type Client struct {
	httpClient *http.Client
	url        string
	logger     *zap.Logger
}

// NewClient creates a proxy client for the given endpoint URL
func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		logger:     logger.Named("proxy"),
	}
}

// Name identifies the provider in logs and metrics
func (c *Client) Name() string {
	return "proxy"
}

// Analyze posts {base64Image, mimeType, productName} and reads {text, sources?} or {error}
func (c *Client) Analyze(ctx context.Context, req *domain.AnalysisRequest) (*domain.RawProviderResponse, error) {
	if req == nil {
		return nil, domain.ErrInvalidRequest
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", domain.ErrProviderRequestFailed, err)
	}

	var parsed domain.ProxyResponse
	decodeErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("proxy returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("error", parsed.Error))
		sentinel := domain.ErrProviderRequestFailed
		if resp.StatusCode == http.StatusTooManyRequests {
			sentinel = domain.ErrRateLimited
		}
		if decodeErr == nil && strings.TrimSpace(parsed.Error) != "" {
			return nil, fmt.Errorf("%w: status %d: %s", sentinel, resp.StatusCode, parsed.Error)
		}
		return nil, fmt.Errorf("%w: status %d", sentinel, resp.StatusCode)
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", domain.ErrProviderRequestFailed, decodeErr)
	}

	return &domain.RawProviderResponse{
		Text:      parsed.Text,
		Citations: parsed.Sources,
	}, nil
}
