package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kiranacompare/backend/internal/domain"
	"go.uber.org/zap"
)

const serviceVersion = "1.0.0"

// AnalysisUseCase is what the handlers need from the analysis service
type AnalysisUseCase interface {
	Analyze(ctx context.Context, req *domain.AnalysisRequest) (*domain.AnalysisResponse, error)
	RawAnalyze(ctx context.Context, req *domain.AnalysisRequest) (*domain.ProxyResponse, error)
	ProviderName() string
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	analysisService AnalysisUseCase
	logger          *zap.Logger
}

// NewHandler creates a new HTTP handler. A nil service makes the analysis
// endpoints answer 503.
func NewHandler(analysisService AnalysisUseCase, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		analysisService: analysisService,
		logger:          logger.Named("http"),
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	provider := "none"
	if h.analysisService != nil {
		provider = h.analysisService.ProviderName()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  "kirana-compare-backend",
		"version":  serviceVersion,
		"provider": provider,
	})
}

// Analyze runs the full pipeline and returns the adapted result with sources
func (h *Handler) Analyze(c *gin.Context) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}

	resp, err := h.analysisService.Analyze(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ProxyAnalyze implements the serverless proxy contract: the raw model text
// and citation chunks, or {error}.
func (h *Handler) ProxyAnalyze(c *gin.Context) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}

	resp, err := h.analysisService.RawAnalyze(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) bindRequest(c *gin.Context) (*domain.AnalysisRequest, bool) {
	if h.analysisService == nil {
		c.JSON(http.StatusServiceUnavailable, domain.ProxyResponse{
			Error: "Analysis service is not configured.",
		})
		return nil, false
	}

	var req domain.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, domain.ProxyResponse{
				Error: "The uploaded image is too large.",
			})
			return nil, false
		}
		h.respondError(c, domain.ErrInvalidRequest)
		return nil, false
	}
	return &req, true
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusForError(err)
	_ = c.Error(err)

	if status >= http.StatusInternalServerError {
		h.logger.Error("analysis failed",
			zap.String("requestID", c.GetString(requestIDKey)),
			zap.Int("status", status),
			zap.Error(err))
	}

	c.JSON(status, domain.ProxyResponse{Error: domain.UserMessage(err)})
}

// statusForError maps domain errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrNoJSONFound),
		errors.Is(err, domain.ErrMalformedJSON),
		errors.Is(err, domain.ErrMissingFields):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrProviderRequestFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
