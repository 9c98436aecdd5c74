package tools

import "encoding/json"

// EstimateTokens is the conservative size probe used to bound LLM-facing
// payloads. One token per three bytes rounds up, which over-counts for
// English text and JSON punctuation, so staying under a cap here stays
// under the cap for real tokenizers too. Monotonic: longer input never
// estimates fewer tokens.
func EstimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + 2) / 3
}

// EstimateJSONTokens marshals v and estimates the token count of the
// encoded form.
func EstimateJSONTokens(v interface{}) (int, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return EstimateTokens(string(encoded)), nil
}
