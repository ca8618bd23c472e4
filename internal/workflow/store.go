package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helpdesk-ai/support-engine/internal/model"
)

// ConversationStore keeps conversations in memory. The engine serializes
// writes per conversation, so the store only guards the map itself.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]*model.Conversation),
	}
}

// GetOrCreate returns the conversation with the given id, creating it for
// the user on first contact. An empty id creates a fresh conversation.
func (s *ConversationStore) GetOrCreate(conversationID, userID string) *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conversationID != "" {
		if conv, ok := s.conversations[conversationID]; ok {
			return conv
		}
	}

	now := time.Now()
	conv := &model.Conversation{
		ID:           conversationID,
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
	}
	if conv.ID == "" {
		conv.ID = uuid.Must(uuid.NewV7()).String()
	}
	s.conversations[conv.ID] = conv
	return conv
}

// Get returns the live conversation by id. Only the engine, which holds
// the per-conversation slot, may touch the transcript; anything rendering
// a response takes a Snapshot instead.
func (s *ConversationStore) Get(conversationID string) (*model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationID]
	return conv, ok
}

// Snapshot returns an independent copy of a conversation, safe to encode
// while the engine appends to the live transcript.
func (s *ConversationStore) Snapshot(conversationID string) (*model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, false
	}
	return copyConversation(conv), true
}

func copyConversation(conv *model.Conversation) *model.Conversation {
	c := *conv
	c.Messages = make([]model.Message, len(conv.Messages))
	copy(c.Messages, conv.Messages)
	return &c
}

// AppendMessage appends a message to the conversation transcript.
func (s *ConversationStore) AppendMessage(conv *model.Conversation, msg model.Message) *model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv.Messages = append(conv.Messages, msg)
	conv.LastActivity = msg.CreatedAt
	return &conv.Messages[len(conv.Messages)-1]
}

// List returns copies of all conversations for a user, most recent first.
func (s *ConversationStore) List(userID string) []*model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Conversation
	for _, conv := range s.conversations {
		if conv.UserID == userID {
			out = append(out, copyConversation(conv))
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].LastActivity.After(out[j-1].LastActivity); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
