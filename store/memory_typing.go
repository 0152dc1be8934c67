package store

import (
	"context"
	"sync"
	"time"

	"github.com/akinalp/chatsync/models"
)

// MemoryTyping, in-process bir TypingChannel implementasyonudur.
// Testlerde ve MemoryStore ile backend'siz embedding'de kullanılır.
type MemoryTyping struct {
	mu   sync.Mutex
	subs map[string]map[chan models.TypingSignal]struct{} // conversationID → aboneler
}

// NewMemoryTyping, boş bir MemoryTyping oluşturur.
func NewMemoryTyping() *MemoryTyping {
	return &MemoryTyping{
		subs: make(map[string]map[chan models.TypingSignal]struct{}),
	}
}

// SetTyping, sinyali o konuşmanın tüm abonelerine dağıtır.
// Gönderen kendi sinyalini de alır — filtreleme engine tarafında yapılır
// (kendi participantID'sini atlar).
func (t *MemoryTyping) SetTyping(ctx context.Context, conversationID, participantID string, isTyping bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	signal := models.TypingSignal{
		ConversationID: conversationID,
		ParticipantID:  participantID,
		IsTyping:       isTyping,
		At:             time.Now(),
	}
	for ch := range t.subs[conversationID] {
		select {
		case ch <- signal:
		default:
			// Abone yavaş — ephemeral sinyal, düşürmek serbest.
		}
	}
	return nil
}

// ObserveTyping, konuşmanın typing stream'ine abone olur.
func (t *MemoryTyping) ObserveTyping(ctx context.Context, conversationID string) (<-chan models.TypingSignal, error) {
	t.mu.Lock()
	ch := make(chan models.TypingSignal, 32)
	if t.subs[conversationID] == nil {
		t.subs[conversationID] = make(map[chan models.TypingSignal]struct{})
	}
	t.subs[conversationID][ch] = struct{}{}
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.mu.Lock()
		delete(t.subs[conversationID], ch)
		t.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}
