package pilot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sensorvision/pilot/pkg/llm"
)

// conversation is the transcript and pending suggestion for one widget
// assistant session. State lives only in memory: a restart drops active
// conversations and the assistant starts fresh.
type conversation struct {
	orgID      string
	messages   []llm.Message
	pending    *WidgetSuggestion
	lastAccess time.Time
}

// ConversationStore holds widget assistant sessions with idle expiry.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*conversation

	ttl         time.Duration
	maxMessages int
	logger      *zap.Logger
	now         func() time.Time
}

// NewConversationStore creates a store that expires conversations idle
// longer than ttl and caps each transcript at maxMessages entries.
func NewConversationStore(ttl time.Duration, maxMessages int, logger *zap.Logger) *ConversationStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if maxMessages <= 0 {
		maxMessages = 50
	}
	return &ConversationStore{
		conversations: make(map[string]*conversation),
		ttl:           ttl,
		maxMessages:   maxMessages,
		logger:        logger,
		now:           time.Now,
	}
}

// Create starts a new conversation owned by the organization and returns
// its ID.
func (s *ConversationStore) Create(orgID string) string {
	id := uuid.New().String()
	s.mu.Lock()
	s.conversations[id] = &conversation{orgID: orgID, lastAccess: s.now()}
	s.mu.Unlock()
	return id
}

// Append adds a message to the transcript. It fails when the conversation
// is unknown, expired, owned by another organization, or already at the
// message cap.
func (s *ConversationStore) Append(id, orgID string, msg llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(id, orgID)
	if err != nil {
		return err
	}
	if len(c.messages) >= s.maxMessages {
		return newValidationError("conversation has reached its maximum length, start a new one")
	}
	c.messages = append(c.messages, msg)
	c.lastAccess = s.now()
	return nil
}

// History returns a copy of the transcript, oldest first.
func (s *ConversationStore) History(id, orgID string) ([]llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(id, orgID)
	if err != nil {
		return nil, err
	}
	c.lastAccess = s.now()
	out := make([]llm.Message, len(c.messages))
	copy(out, c.messages)
	return out, nil
}

// SetPending stores the suggestion awaiting user confirmation, replacing
// any earlier one.
func (s *ConversationStore) SetPending(id, orgID string, sug *WidgetSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(id, orgID)
	if err != nil {
		return err
	}
	c.pending = sug
	c.lastAccess = s.now()
	return nil
}

// TakePending removes and returns the pending suggestion, or nil when
// there is none.
func (s *ConversationStore) TakePending(id, orgID string) (*WidgetSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(id, orgID)
	if err != nil {
		return nil, err
	}
	sug := c.pending
	c.pending = nil
	c.lastAccess = s.now()
	return sug, nil
}

// Pending returns the pending suggestion without consuming it.
func (s *ConversationStore) Pending(id, orgID string) (*WidgetSuggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.lookup(id, orgID)
	if err != nil {
		return nil, err
	}
	return c.pending, nil
}

// Delete removes a conversation.
func (s *ConversationStore) Delete(id string) {
	s.mu.Lock()
	delete(s.conversations, id)
	s.mu.Unlock()
}

// Len returns the number of live conversations.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// lookup must be called with the mutex held, in read mode or better: it
// never mutates the map. Expired conversations are reported as missing
// here and reclaimed by Sweep.
func (s *ConversationStore) lookup(id, orgID string) (*conversation, error) {
	c, ok := s.conversations[id]
	if !ok || s.now().Sub(c.lastAccess) > s.ttl {
		return nil, newNotFoundError("conversation", id)
	}
	if c.orgID != orgID {
		return nil, newTenantAccessError("conversation", id)
	}
	return c, nil
}

// Sweep drops all conversations idle longer than the TTL and returns how
// many were removed.
func (s *ConversationStore) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, c := range s.conversations {
		if c.lastAccess.Before(cutoff) {
			delete(s.conversations, id)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps on the given interval until ctx is done.
func (s *ConversationStore) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 && s.logger != nil {
				s.logger.Debug("swept expired conversations", zap.Int("count", n))
			}
		}
	}
}
