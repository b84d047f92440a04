package usecase

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kiranacompare/backend/internal/domain"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// RequiredFields are the AnalysisResult keys every model answer must carry, in display order
var RequiredFields = []string{
	"priceComparison",
	"deliveryTimes",
	"qualityRatings",
	"platformAvailability",
}

// jsonFenceRegex matches a fenced code block labelled json and captures its body.
// The closing fence must start a line so backticks inside string values survive.
var jsonFenceRegex = regexp.MustCompile("(?is)```json\\b[ \\t]*\\r?\\n(.*?)\\r?\\n[ \\t]*```")

const maxLoggedTextLen = 2000

// ResponseAdapter turns a free-text model answer into a validated AnalysisResult.
// Extraction, parsing and validation are separate stages so each failure kind
// can be produced and tested on its own.
type ResponseAdapter struct {
	schema *gojsonschema.Schema
	logger *zap.Logger
}

// NewResponseAdapter compiles the result schema. A nil logger disables diagnostics.
func NewResponseAdapter(logger *zap.Logger) *ResponseAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(resultSchema()))
	if err != nil {
		// the schema is a constant; failing to compile it is a programming error
		panic(fmt.Sprintf("response adapter: invalid result schema: %v", err))
	}

	return &ResponseAdapter{
		schema: schema,
		logger: logger.Named("adapter"),
	}
}

func resultSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(RequiredFields))
	required := make([]interface{}, 0, len(RequiredFields))
	for _, field := range RequiredFields {
		properties[field] = map[string]interface{}{"type": "string"}
		required = append(required, field)
	}

	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Adapt runs the full pipeline: extract candidate -> parse -> validate, then
// normalizes the citation list.
func (a *ResponseAdapter) Adapt(raw *domain.RawProviderResponse) (*domain.AnalysisResult, []domain.GroundingSource, error) {
	if raw == nil {
		return nil, nil, domain.ErrNoJSONFound
	}

	candidate, err := ExtractCandidate(raw.Text)
	if err != nil {
		a.logger.Warn("no JSON candidate in model response",
			zap.String("text", truncate(raw.Text, maxLoggedTextLen)))
		return nil, nil, err
	}

	obj, err := ParseCandidate(candidate)
	if err != nil {
		a.logger.Warn("failed to parse JSON candidate",
			zap.Error(err),
			zap.String("candidate", truncate(candidate, maxLoggedTextLen)))
		return nil, nil, err
	}

	result, err := a.ValidateFields(obj)
	if err != nil {
		a.logger.Warn("model response failed validation",
			zap.Error(err),
			zap.String("candidate", truncate(candidate, maxLoggedTextLen)))
		return nil, nil, err
	}

	return result, NormalizeSources(raw.Citations), nil
}

// ExtractCandidate finds the JSON object embedded in text. A fenced ```json block
// wins; otherwise the span from the first '{' to the last '}' is used.
func ExtractCandidate(text string) (string, error) {
	if m := jsonFenceRegex.FindStringSubmatch(text); m != nil {
		if body := strings.TrimSpace(m[1]); body != "" {
			return body, nil
		}
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end <= start {
		return "", domain.ErrNoJSONFound
	}

	return text[start : end+1], nil
}

// ParseCandidate decodes the candidate into a generic JSON object
func ParseCandidate(candidate string) (map[string]interface{}, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, &domain.MalformedJSONError{Candidate: candidate, Cause: err}
	}
	if obj == nil {
		// literal null
		return nil, &domain.MalformedJSONError{Candidate: candidate, Cause: fmt.Errorf("expected a JSON object")}
	}
	return obj, nil
}

// ValidateFields checks the four required keys are present as strings.
// Unknown keys are ignored.
func (a *ResponseAdapter) ValidateFields(obj map[string]interface{}) (*domain.AnalysisResult, error) {
	res, err := a.schema.Validate(gojsonschema.NewGoLoader(obj))
	if err != nil {
		return nil, &domain.MalformedJSONError{Cause: err}
	}

	if !res.Valid() {
		bad := make(map[string]bool, len(RequiredFields))
		for _, desc := range res.Errors() {
			switch desc.Type() {
			case "required":
				if prop, ok := desc.Details()["property"].(string); ok {
					bad[prop] = true
				}
			default:
				bad[desc.Field()] = true
			}
		}

		missing := make([]string, 0, len(bad))
		for _, field := range RequiredFields {
			if bad[field] {
				missing = append(missing, field)
			}
		}
		return nil, &domain.MissingFieldsError{Fields: missing}
	}

	return &domain.AnalysisResult{
		PriceComparison:      obj["priceComparison"].(string),
		DeliveryTimes:        obj["deliveryTimes"].(string),
		QualityRatings:       obj["qualityRatings"].(string),
		PlatformAvailability: obj["platformAvailability"].(string),
	}, nil
}

// NormalizeSources keeps citations with both a uri and a title and removes
// duplicate uris, first occurrence wins. The result is never nil.
func NormalizeSources(raw []domain.RawCitation) []domain.GroundingSource {
	sources := make([]domain.GroundingSource, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for _, c := range raw {
		if c.Web == nil || c.Web.URI == nil || c.Web.Title == nil {
			continue
		}
		uri := strings.TrimSpace(*c.Web.URI)
		title := strings.TrimSpace(*c.Web.Title)
		if uri == "" || title == "" {
			continue
		}
		if _, dup := seen[uri]; dup {
			continue
		}
		seen[uri] = struct{}{}
		sources = append(sources, domain.GroundingSource{URI: uri, Title: title})
	}

	return sources
}

// DedupeCitations applies the NormalizeSources rules but keeps the raw
// {web:{uri,title}} chunk shape of the proxy contract.
func DedupeCitations(raw []domain.RawCitation) []domain.RawCitation {
	sources := NormalizeSources(raw)
	out := make([]domain.RawCitation, 0, len(sources))
	for _, src := range sources {
		uri, title := src.URI, src.Title
		out = append(out, domain.RawCitation{Web: &domain.RawWebCitation{URI: &uri, Title: &title}})
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "...(truncated)"
}
