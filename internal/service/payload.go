package service

import (
	"encoding/json"

	"reins/internal/api"
)

// decodeExecutePayload unpacks the dual-channel result from the
// meta-tool's execute response.
func decodeExecutePayload(result *api.CallToolResult) (*api.OperationResult, error) {
	if len(result.Content) == 0 {
		return nil, api.NewOperationError("empty meta-tool response", nil)
	}
	text, ok := result.Content[0].(string)
	if !ok {
		return nil, api.NewOperationError("unexpected meta-tool response content", nil)
	}

	var payload struct {
		Result *api.OperationResult `json:"result"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, api.NewOperationError("failed to decode meta-tool response", err)
	}
	if payload.Result == nil {
		return nil, api.NewOperationError("meta-tool response carried no result", nil)
	}
	return payload.Result, nil
}
