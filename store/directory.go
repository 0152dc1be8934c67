package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
)

// ConversationDirectory, konuşma listesi görünümünü besleyen opsiyonel
// store yüzeyidir: katılımcının konuşmaları, son mesaj özeti, unread
// sayaçları ve liste tercihleri (mute/archive/pin).
//
// MessageStore'dan ayrı tutulur çünkü her backend sağlamak zorunda değildir —
// MemoryStore sağlar, minimal bir WS backend'i sağlamayabilir. Engine type
// assertion ile keşfeder.
type ConversationDirectory interface {
	// Conversation, tek bir konuşmanın metadata'sını döner.
	Conversation(ctx context.Context, conversationID string) (*models.Conversation, error)

	// Conversations, katılımcının konuşmalarını liste sırasında döner:
	// önce pinned'ler, sonra son mesajı en yeni olanlar.
	Conversations(ctx context.Context, participantID string) ([]models.Conversation, error)

	SetMuted(ctx context.Context, conversationID, participantID string, muted bool) error
	SetArchived(ctx context.Context, conversationID, participantID string, archived bool) error
	SetPinned(ctx context.Context, conversationID, participantID string, pinned bool) error
}

// ─── MemoryStore implementasyonu ───

func (s *MemoryStore) Conversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", pkg.ErrNotFound, conversationID)
	}
	out := s.conversationLocked(conversationID, conv)
	return &out, nil
}

func (s *MemoryStore) Conversations(ctx context.Context, participantID string) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Conversation
	for id, conv := range s.convs {
		for _, p := range conv.participants {
			if p == participantID {
				out = append(out, s.conversationLocked(id, conv))
				break
			}
		}
	}

	// Liste sırası: pinned'ler üstte, sonra son aktiviteye göre yeni→eski.
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Pinned[participantID], out[j].Pinned[participantID]
		if pi != pj {
			return pi
		}
		ti, tj := lastActivity(&out[i]), lastActivity(&out[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SetMuted(ctx context.Context, conversationID, participantID string, muted bool) error {
	return s.setFlag(conversationID, participantID, muted, func(c *memConversation) map[string]bool {
		if c.muted == nil {
			c.muted = make(map[string]bool)
		}
		return c.muted
	})
}

func (s *MemoryStore) SetArchived(ctx context.Context, conversationID, participantID string, archived bool) error {
	return s.setFlag(conversationID, participantID, archived, func(c *memConversation) map[string]bool {
		if c.archived == nil {
			c.archived = make(map[string]bool)
		}
		return c.archived
	})
}

func (s *MemoryStore) SetPinned(ctx context.Context, conversationID, participantID string, pinned bool) error {
	return s.setFlag(conversationID, participantID, pinned, func(c *memConversation) map[string]bool {
		if c.pinned == nil {
			c.pinned = make(map[string]bool)
		}
		return c.pinned
	})
}

func (s *MemoryStore) setFlag(conversationID, participantID string, value bool, flags func(*memConversation) map[string]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[conversationID]
	if !ok {
		return fmt.Errorf("%w: conversation %s", pkg.ErrNotFound, conversationID)
	}
	m := flags(conv)
	if value {
		m[participantID] = true
	} else {
		delete(m, participantID)
	}
	return nil
}

// conversationLocked, memConversation'dan dışa dönük snapshot üretir.
func (s *MemoryStore) conversationLocked(id string, conv *memConversation) models.Conversation {
	out := models.Conversation{
		ID:             id,
		ParticipantIDs: append([]string(nil), conv.participants...),
		IsGroup:        len(conv.participants) > 2,
		Unread:         make(map[string]int, len(conv.unread)),
		Muted:          copyFlags(conv.muted),
		Archived:       copyFlags(conv.archived),
		Pinned:         copyFlags(conv.pinned),
	}
	for p, n := range conv.unread {
		out.Unread[p] = n
	}

	// Son mesaj özeti: tombstone'lar atlanır.
	for i := len(conv.messages) - 1; i >= 0; i-- {
		m := conv.messages[i]
		if m.Deleted {
			continue
		}
		out.LastMessage = &models.MessagePreview{
			MessageID: m.ID,
			SenderID:  m.SenderID,
			Content:   m.Content,
			SentAt:    *m.ServerTS,
		}
		break
	}
	return out
}

func copyFlags(in map[string]bool) map[string]bool {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func lastActivity(c *models.Conversation) time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.SentAt
	}
	return time.Time{}
}
