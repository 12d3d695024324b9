package domain

// Turn is a single persisted question/answer exchange.
type Turn struct {
	PK             string   `json:"-"`
	SK             string   `json:"-"`
	ConversationID string   `json:"conversationId"`
	Question       string   `json:"question"`
	Answer         string   `json:"answer"`
	Tools          []string `json:"tools,omitempty"`
	Provider       string   `json:"provider,omitempty"`
	Status         string   `json:"status,omitempty"`
	TTL            int64    `json:"-"`
}

// ConversationMeta stores aggregate conversation state.
type ConversationMeta struct {
	PK             string
	SK             string
	ConversationID string
	LastActivity   string
	Turns          int
	TTL            int64
}
