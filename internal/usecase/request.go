package usecase

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/kiranacompare/backend/internal/domain"
)

const maxProductNameLen = 200

// Package-level compiled regex patterns for performance
var (
	dataURLRegex        = regexp.MustCompile(`^data:([\w.+-]+/[\w.+-]+)?(;[^,]*)?;base64,`)
	nonAlphanumericRegex = regexp.MustCompile(`[^\p{L}\p{M}\p{N}\s]`)
	multipleSpacesRegex  = regexp.MustCompile(`\s+`)
)

// NormalizeRequest validates an analysis request and returns a cleaned copy
// together with the decoded image bytes. A data URL prefix on the image is
// stripped and supplies the mime type when none was given.
func NormalizeRequest(req *domain.AnalysisRequest) (*domain.AnalysisRequest, []byte, error) {
	if req == nil {
		return nil, nil, domain.ErrInvalidRequest
	}

	name := multipleSpacesRegex.ReplaceAllString(strings.TrimSpace(req.ProductName), " ")
	if name == "" {
		return nil, nil, fmt.Errorf("%w: product name is required", domain.ErrInvalidRequest)
	}
	if len([]rune(name)) > maxProductNameLen {
		return nil, nil, fmt.Errorf("%w: product name longer than %d characters", domain.ErrInvalidRequest, maxProductNameLen)
	}

	payload := strings.TrimSpace(req.Base64Image)
	mimeType := strings.ToLower(strings.TrimSpace(req.MimeType))
	if m := dataURLRegex.FindStringSubmatch(payload); m != nil {
		payload = payload[len(m[0]):]
		if mimeType == "" {
			mimeType = strings.ToLower(m[1])
		}
	}
	if payload == "" {
		return nil, nil, fmt.Errorf("%w: image is required", domain.ErrInvalidRequest)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, nil, fmt.Errorf("%w: unsupported mime type %q", domain.ErrInvalidRequest, mimeType)
	}

	image, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: image is not valid base64", domain.ErrInvalidRequest)
	}

	return &domain.AnalysisRequest{
		Base64Image: payload,
		MimeType:    mimeType,
		ProductName: name,
	}, image, nil
}

// normalizeForCacheKey lowercases, drops punctuation and collapses whitespace
func normalizeForCacheKey(s string) string {
	if s == "" {
		return ""
	}
	result := strings.ToLower(s)
	result = nonAlphanumericRegex.ReplaceAllString(result, "")
	result = multipleSpacesRegex.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}
