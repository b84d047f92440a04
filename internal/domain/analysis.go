package domain

// AnalysisResult is the product comparison extracted from a model answer.
// All fields are free-text summaries.
type AnalysisResult struct {
	PriceComparison      string `json:"priceComparison"`
	DeliveryTimes        string `json:"deliveryTimes"`
	QualityRatings       string `json:"qualityRatings"`
	PlatformAvailability string `json:"platformAvailability"`
}

// GroundingSource is a citation the provider attributes as supporting evidence
type GroundingSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// RawWebCitation is the web part of a raw citation chunk. Either field may be absent.
type RawWebCitation struct {
	URI   *string `json:"uri,omitempty"`
	Title *string `json:"title,omitempty"`
}

// RawCitation is a citation chunk exactly as the provider (or proxy) returned it
type RawCitation struct {
	Web *RawWebCitation `json:"web,omitempty"`
}

// RawProviderResponse is the unprocessed answer of an analysis provider
type RawProviderResponse struct {
	Text      string
	Citations []RawCitation
}

// AnalysisRequest is the image + name pair submitted for analysis.
// Field names follow the proxy wire contract.
type AnalysisRequest struct {
	Base64Image string `json:"base64Image" binding:"required"`
	MimeType    string `json:"mimeType"`
	ProductName string `json:"productName" binding:"required"`
}

// AnalysisResponse is the adapted result returned to the presentation layer
type AnalysisResponse struct {
	Result  AnalysisResult    `json:"result"`
	Sources []GroundingSource `json:"sources"`
	Cached  bool              `json:"cached"`
}

// ProxyResponse is the proxy endpoint body: text and sources on success, error otherwise
type ProxyResponse struct {
	Text    string        `json:"text,omitempty"`
	Sources []RawCitation `json:"sources,omitempty"`
	Error   string        `json:"error,omitempty"`
}
