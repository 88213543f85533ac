// Package agent defines the structured decision and observation types
// exchanged between agents and an orchestration layer.
package agent

// TaskInput is the input to an agent task.
type TaskInput struct {
	// Task is the task description, typically a user query.
	Task string `json:"task"`

	// Context carries optional metadata such as filters and top_k.
	Context map[string]any `json:"context,omitempty"`
}

// DecisionType classifies the decisions an agent can make.
type DecisionType string

const (
	DecisionUseTool  DecisionType = "use_tool"
	DecisionRespond  DecisionType = "respond"
	DecisionClarify  DecisionType = "clarify"
	DecisionEscalate DecisionType = "escalate"
	DecisionDelegate DecisionType = "delegate"
	DecisionRetrieve DecisionType = "retrieve"
)

// ToolCall describes a tool invocation.
type ToolCall struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// AgentDecision is the structured output of one reasoning step.
type AgentDecision struct {
	DecisionType DecisionType `json:"decision_type"`
	Reasoning    string       `json:"reasoning"`
	ToolCall     *ToolCall    `json:"tool_call,omitempty"`
	Message      string       `json:"message,omitempty"`
	DelegateTo   string       `json:"delegate_to,omitempty"`
}

// Observation reports the outcome of a tool or retrieval execution.
type Observation struct {
	// Source is the tool name, or "retrieval" for retriever output.
	Source  string         `json:"source"`
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}
