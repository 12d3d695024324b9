package datastream

import "ai-portfolio/internal/domain"

// Accumulator applies decoded parts to an assistant message in arrival order.
type Accumulator struct {
	msg *domain.ChatMessage

	// Err holds the last error part received, if any.
	Err          string
	FinishReason string
	Usage        Usage
	Steps        int
}

func NewAccumulator(msg *domain.ChatMessage) *Accumulator {
	return &Accumulator{msg: msg}
}

func (a *Accumulator) Message() *domain.ChatMessage {
	return a.msg
}

// Apply folds one part into the message. It reports whether the message changed.
func (a *Accumulator) Apply(p Part) bool {
	switch p.Type {
	case PartText:
		if p.Text == "" {
			return false
		}
		a.msg.Content += p.Text
		return true
	case PartToolCallStart:
		if a.find(p.ToolCallID) != nil {
			return false
		}
		a.msg.ToolInvocations = append(a.msg.ToolInvocations, domain.NewToolInvocation(domain.ToolCall{
			ID:   p.ToolCallID,
			Name: p.ToolName,
		}))
		return true
	case PartToolCall:
		if inv := a.find(p.ToolCallID); inv != nil {
			if inv.State != domain.ToolStateCall {
				return false
			}
			inv.ToolName = p.ToolName
			inv.Args = domain.NewToolInvocation(p.ToolCall()).Args
			return true
		}
		a.msg.ToolInvocations = append(a.msg.ToolInvocations, domain.NewToolInvocation(p.ToolCall()))
		return true
	case PartToolResult:
		inv := a.find(p.ToolCallID)
		if inv == nil {
			return false
		}
		if p.IsError {
			msg, _ := p.Result.(string)
			return inv.Fail(msg)
		}
		return inv.Resolve(p.Result)
	case PartError:
		a.Err = p.Text
		return true
	case PartFinishStep:
		a.Steps++
		a.addUsage(p.Usage)
		return false
	case PartFinishMessage:
		a.FinishReason = p.FinishReason
		return false
	default:
		return false
	}
}

func (a *Accumulator) addUsage(u Usage) {
	a.Usage.PromptTokens += u.PromptTokens
	a.Usage.CompletionTokens += u.CompletionTokens
}

func (a *Accumulator) find(id string) *domain.ToolInvocation {
	for i := range a.msg.ToolInvocations {
		if a.msg.ToolInvocations[i].ToolCallID == id {
			return &a.msg.ToolInvocations[i]
		}
	}
	return nil
}
