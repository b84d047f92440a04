package gemini

import (
	"strings"

	"github.com/kiranacompare/backend/internal/domain"
)

// MapToRawResponse converts the first candidate of a generateContent answer to
// the provider-neutral RawProviderResponse. Text parts are joined with newlines.
func MapToRawResponse(resp *generateContentResponse) *domain.RawProviderResponse {
	if resp == nil || len(resp.Candidates) == 0 {
		return &domain.RawProviderResponse{}
	}
	cand := resp.Candidates[0]

	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}

	return &domain.RawProviderResponse{
		Text:      b.String(),
		Citations: mapGroundingChunks(cand.GroundingMetadata),
	}
}

// mapGroundingChunks keeps chunks as-is, absent fields included; filtering is
// the response adapter's job.
func mapGroundingChunks(meta *groundingMetadata) []domain.RawCitation {
	if meta == nil || len(meta.GroundingChunks) == 0 {
		return nil
	}

	citations := make([]domain.RawCitation, 0, len(meta.GroundingChunks))
	for _, chunk := range meta.GroundingChunks {
		if chunk.Web == nil {
			citations = append(citations, domain.RawCitation{})
			continue
		}
		citations = append(citations, domain.RawCitation{
			Web: &domain.RawWebCitation{URI: chunk.Web.URI, Title: chunk.Web.Title},
		})
	}
	return citations
}
