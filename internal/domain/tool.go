package domain

import "maps"

type ToolState string

const (
	ToolStateCall   ToolState = "call"
	ToolStateResult ToolState = "result"
	ToolStateError  ToolState = "error"
)

// ToolCall is a tool execution requested by the model.
type ToolCall struct {
	ID   string         `json:"toolCallId"`
	Name string         `json:"toolName"`
	Args map[string]any `json:"args"`
}

// ToolInvocation tracks a tool call from request to result.
type ToolInvocation struct {
	State      ToolState      `json:"state"`
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args,omitempty"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// NewToolInvocation opens an invocation in the call state.
func NewToolInvocation(call ToolCall) ToolInvocation {
	return ToolInvocation{
		State:      ToolStateCall,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Args:       cloneArgs(call.Args),
	}
}

// Resolve moves a pending invocation to the result state. It reports false
// when the invocation already left the call state.
func (t *ToolInvocation) Resolve(result any) bool {
	if t.State != ToolStateCall {
		return false
	}
	t.State = ToolStateResult
	t.Result = result
	return true
}

// Fail moves a pending invocation to the error state.
func (t *ToolInvocation) Fail(msg string) bool {
	if t.State != ToolStateCall {
		return false
	}
	t.State = ToolStateError
	t.Error = msg
	return true
}

func (t ToolInvocation) Clone() ToolInvocation {
	out := t
	out.Args = cloneArgs(t.Args)
	return out
}

func cloneArgs(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	maps.Copy(out, in)
	return out
}
