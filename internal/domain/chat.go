package domain

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is the minimal {role, content} pair exchanged with the chat
// endpoint and forwarded to providers.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatMessage is a message in a session transcript. Assistant messages may
// carry the tool invocations made while producing them.
type ChatMessage struct {
	ID              string           `json:"id,omitempty"`
	Role            Role             `json:"role"`
	Content         string           `json:"content"`
	ToolInvocations []ToolInvocation `json:"toolInvocations,omitempty"`
}

// Message drops everything but role and content.
func (m ChatMessage) Message() Message {
	return Message{Role: m.Role, Content: m.Content}
}

// Clone returns a copy that shares no slices with m.
func (m ChatMessage) Clone() ChatMessage {
	out := m
	if m.ToolInvocations != nil {
		out.ToolInvocations = make([]ToolInvocation, len(m.ToolInvocations))
		for i, inv := range m.ToolInvocations {
			out.ToolInvocations[i] = inv.Clone()
		}
	}
	return out
}

// ChatMessagesFrom lifts plain messages into transcript messages.
func ChatMessagesFrom(in []Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(in))
	for _, m := range in {
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
