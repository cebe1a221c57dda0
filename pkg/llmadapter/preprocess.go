package llmadapter

import (
	"regexp"
	"strings"
)

// reasoningModelMarkers are substrings of a model name that indicate it
// emits an internal monologue the adapter must strip before parsing (§4.4:
// "model-family-specific transforms are selected by a substring match
// against the model name").
var reasoningModelMarkers = []string{"r1", "reasoning", "o1", "think"}

var thinkBlockRE = regexp.MustCompile(`(?is)<think>.*?</think>`)

// isReasoningModel reports whether modelName matches a known reasoning-chain
// family.
func isReasoningModel(modelName string) bool {
	lower := strings.ToLower(modelName)
	for _, marker := range reasoningModelMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// StripReasoningMarkers removes angle-bracketed "think" regions from text
// when modelName identifies a reasoning-chain model.
func StripReasoningMarkers(text string, modelName string) string {
	if !isReasoningModel(modelName) {
		return text
	}
	return thinkBlockRE.ReplaceAllString(text, "")
}

// ResponseSentinels are the documented start/end markers the response-format
// instruction (§6, shared.response_format) asks the LLM to wrap its
// structured reply in.
type ResponseSentinels struct {
	Start string
	End   string
}

// DefaultSentinels matches the shared response-format template's defaults.
var DefaultSentinels = ResponseSentinels{Start: "###RESPONSE_START###", End: "###RESPONSE_END###"}

// ExtractBetweenSentinels returns the substring strictly between the first
// Start/End sentinel pair, trimmed, or ("", false) if either is missing or
// out of order. This is the "secondary cleanup pass" for JSON-drift-prone
// models (§4.4).
func ExtractBetweenSentinels(text string, sentinels ResponseSentinels) (string, bool) {
	startIdx := strings.Index(text, sentinels.Start)
	if startIdx < 0 {
		return "", false
	}
	startIdx += len(sentinels.Start)
	endIdx := strings.Index(text[startIdx:], sentinels.End)
	if endIdx < 0 {
		return "", false
	}
	return strings.TrimSpace(text[startIdx : startIdx+endIdx]), true
}

// Preprocess applies reasoning-marker stripping and returns the cleaned
// text; sentinel extraction happens inside the parsing tiers themselves
// since tiers 1/2 need it but tiers 3-5 operate on the full cleaned text.
func Preprocess(rawText string, modelName string) string {
	return strings.TrimSpace(StripReasoningMarkers(rawText, modelName))
}
