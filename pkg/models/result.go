package models

// ToolResult is the uniform result of every tool invocation.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

func NewToolResult(output string) *ToolResult {
	return &ToolResult{Success: true, Output: output}
}

func NewToolError(message string) *ToolResult {
	return &ToolResult{Success: false, Error: message}
}

// ToMap is the shape stored in step results and exposed to conditions.
func (r *ToolResult) ToMap() map[string]any {
	return map[string]any{
		"success": r.Success,
		"output":  r.Output,
		"error":   nullable(r.Error),
	}
}

// AgentResult is the uniform result of every agent invocation.
type AgentResult struct {
	Success       bool           `json:"success"`
	Output        string         `json:"output"`
	Artifacts     map[string]any `json:"artifacts,omitempty"`
	Error         string         `json:"error,omitempty"`
	ExecutionTime float64        `json:"execution_time"`
}

func (r *AgentResult) ToMap() map[string]any {
	artifacts := r.Artifacts
	if artifacts == nil {
		artifacts = map[string]any{}
	}

	return map[string]any{
		"success":        r.Success,
		"output":         r.Output,
		"artifacts":      artifacts,
		"error":          nullable(r.Error),
		"execution_time": r.ExecutionTime,
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}
