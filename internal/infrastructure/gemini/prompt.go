package gemini

import (
	"fmt"
	"strings"
)

const analysisPromptTemplate = `Analyze the product in the image, which is a "%s". Search online stores and marketplaces to provide a detailed comparison.
Return the price comparison, typical delivery times, average quality ratings, and platform availability.

Respond with a single JSON object inside a fenced code block labelled json, and nothing else:
` + "```json" + `
{
  "priceComparison": "<summary of the price range, e.g. '₹1500 - ₹1800' or 'Avg. ₹1650'>",
  "deliveryTimes": "<typical delivery times, e.g. '1-3 business days'>",
  "qualityRatings": "<average quality rating across platforms, e.g. '4.5/5 stars'>",
  "platformAvailability": "<comma-separated list of major platforms, e.g. 'Amazon, Flipkart, Myntra'>"
}
` + "```" + `
All four values must be strings.`

// BuildAnalysisPrompt renders the model prompt for a product name.
// Double quotes in the name are replaced so the quoted name stays intact.
func BuildAnalysisPrompt(productName string) string {
	name := strings.TrimSpace(productName)
	name = strings.ReplaceAll(name, `"`, "'")
	return fmt.Sprintf(analysisPromptTemplate, name)
}
