package model

import (
	"time"
)

// Role represents the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Conversation is a thread of messages for one user. It is mutated only by
// the workflow engine, which serializes processing per conversation.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Messages     []Message `json:"messages,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Message is one turn in a conversation. Append-only. An agent message
// either carries a confidence score and a non-empty retrieval trace, or is
// an escalation notice with no confidence.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Confidence     *float64  `json:"confidence,omitempty"`
	RetrievalTrace []string  `json:"retrieval_trace,omitempty"`
	Escalation     bool      `json:"escalation,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Intent is the classified category of an inbound message.
type Intent string

const (
	IntentQuestion       Intent = "question"
	IntentAccountIssue   Intent = "account_issue"
	IntentComplexQuery   Intent = "complex_query"
	IntentUnclassifiable Intent = "unclassifiable"
)

// ParseIntent maps a classifier label onto a known intent, defaulting to
// unclassifiable rather than guessing.
func ParseIntent(s string) Intent {
	switch Intent(s) {
	case IntentQuestion, IntentAccountIssue, IntentComplexQuery:
		return Intent(s)
	default:
		return IntentUnclassifiable
	}
}

// RetrievalResult is the ranked outcome of one index query. Ephemeral; it is
// persisted only through the audit trail.
type RetrievalResult struct {
	Query     string        `json:"query"`
	Results   []ScoredChunk `json:"results"`
	CreatedAt time.Time     `json:"created_at"`
}

// ScoredChunk pairs a chunk with its final ranking score.
type ScoredChunk struct {
	ChunkID string  `json:"chunk_id"`
	Text    string  `json:"-"`
	Score   float64 `json:"score"`
}

// ChunkIDs returns the ordered chunk ids of the result, used as the
// retrieval trace on agent messages.
func (r *RetrievalResult) ChunkIDs() []string {
	ids := make([]string, len(r.Results))
	for i, s := range r.Results {
		ids[i] = s.ChunkID
	}
	return ids
}
