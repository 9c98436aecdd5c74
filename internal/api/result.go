package api

// ResultShape tags the three dual-channel result shapes.
type ResultShape string

const (
	ShapeList   ResultShape = "list"
	ShapeDetail ResultShape = "detail"
	ShapeError  ResultShape = "error"
)

// OperationResult is the dual-channel value every integration operation
// returns: ForModel is a compact projection for the LLM context, ForUser is
// the rich representation for UI rendering. Projections are pure functions
// provided by the integration author; the constructors below only enforce
// the shape-specific required fields.
type OperationResult struct {
	Shape    ResultShape            `json:"shape"`
	ForModel map[string]interface{} `json:"forModel"`
	ForUser  map[string]interface{} `json:"forUser"`
}

// NewListResult builds a list-shaped result. Count and summary are carried
// on both channels.
func NewListResult(count int, summary string, forModel, forUser map[string]interface{}) *OperationResult {
	if forModel == nil {
		forModel = map[string]interface{}{}
	}
	if forUser == nil {
		forUser = map[string]interface{}{}
	}
	forModel["count"] = count
	forModel["summary"] = summary
	forUser["count"] = count
	forUser["summary"] = summary
	return &OperationResult{Shape: ShapeList, ForModel: forModel, ForUser: forUser}
}

// NewDetailResult builds a detail-shaped result.
func NewDetailResult(forModel, forUser map[string]interface{}) *OperationResult {
	if forModel == nil {
		forModel = map[string]interface{}{}
	}
	if forUser == nil {
		forUser = map[string]interface{}{}
	}
	return &OperationResult{Shape: ShapeDetail, ForModel: forModel, ForUser: forUser}
}

// NewErrorResult builds an error-shaped result carrying code and message on
// both channels.
func NewErrorResult(code, message string) *OperationResult {
	payload := func() map[string]interface{} {
		return map[string]interface{}{"code": code, "message": message}
	}
	return &OperationResult{Shape: ShapeError, ForModel: payload(), ForUser: payload()}
}

// IsError reports whether the result carries the error shape.
func (r *OperationResult) IsError() bool { return r.Shape == ShapeError }
