// Package datastream implements the line-oriented chat response format.
//
// Every part is one line of the form `<code>:<json>\n`. Text deltas, tool
// calls, tool results and step boundaries each have their own code, so a
// client can rebuild the assistant message while the response is still
// arriving.
package datastream

import "ai-portfolio/internal/domain"

const (
	ContentType   = "text/plain; charset=utf-8"
	VersionHeader = "X-Vercel-AI-Data-Stream"
	Version       = "v1"
)

// PartType is the single-character line prefix.
type PartType byte

const (
	PartText          PartType = '0'
	PartError         PartType = '3'
	PartToolCall      PartType = '9'
	PartToolResult    PartType = 'a'
	PartToolCallStart PartType = 'b'
	PartToolCallDelta PartType = 'c'
	PartFinishMessage PartType = 'd'
	PartFinishStep    PartType = 'e'
	PartStartStep     PartType = 'f'
)

func (t PartType) String() string {
	switch t {
	case PartText:
		return "text"
	case PartError:
		return "error"
	case PartToolCall:
		return "tool_call"
	case PartToolResult:
		return "tool_result"
	case PartToolCallStart:
		return "tool_call_streaming_start"
	case PartToolCallDelta:
		return "tool_call_delta"
	case PartFinishMessage:
		return "finish_message"
	case PartFinishStep:
		return "finish_step"
	case PartStartStep:
		return "start_step"
	default:
		return "unknown"
	}
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Part is one decoded line. Only the fields relevant to Type are set.
type Part struct {
	Type          PartType
	Text          string
	MessageID     string
	ToolCallID    string
	ToolName      string
	ArgsTextDelta string
	Args          map[string]any
	Result        any
	IsError       bool
	FinishReason  string
	Usage         Usage
	IsContinued   bool
}

// ToolCall returns the tool call carried by a PartToolCall.
func (p Part) ToolCall() domain.ToolCall {
	return domain.ToolCall{ID: p.ToolCallID, Name: p.ToolName, Args: p.Args}
}

type startStepPayload struct {
	MessageID string `json:"messageId"`
}

type toolCallStartPayload struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
}

type toolCallDeltaPayload struct {
	ToolCallID    string `json:"toolCallId"`
	ArgsTextDelta string `json:"argsTextDelta"`
}

type toolCallPayload struct {
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args"`
}

// toolResultPayload marks failed tools with isError; result then holds the
// error message.
type toolResultPayload struct {
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result"`
	IsError    bool   `json:"isError,omitempty"`
}

type finishStepPayload struct {
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
	IsContinued  bool   `json:"isContinued"`
}

type finishMessagePayload struct {
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
}
