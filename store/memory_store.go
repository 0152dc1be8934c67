package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
)

// MemoryStore, tamamen in-process çalışan bir MessageStore implementasyonudur.
//
// İki kullanım alanı:
//   - Engine testleri: network olmadan gerçek store davranışı
//     (server timestamp atama, client ID echo, stream fanout, tombstone).
//   - Backend'siz embedding: host uygulama tek process içinde engine'i
//     denemek istediğinde.
//
// Test yardımcıları (FailSends, EchoClientIDs, InjectMessage) gerçek store
// davranış varyasyonlarını simüle eder: transient hata, client ID echo
// etmeyen store, başka katılımcıdan gelen mesaj.
type MemoryStore struct {
	mu       sync.Mutex
	convs    map[string]*memConversation
	lastTS   time.Time
	pageSize int

	// Test kancaları
	failSend  error // nil değilse her Send bu hatayla döner
	echoIDs   bool  // false ise Send sonucu client_id taşımaz (fingerprint fallback testi)
	sendCount int
}

type memConversation struct {
	messages     []models.Message // ServerTS artan sırada
	byID         map[string]int   // messageID → index
	participants []string
	unread       map[string]int
	subs         map[chan models.MessagePage]struct{}

	// Liste tercihleri — katılımcı bazlı
	muted    map[string]bool
	archived map[string]bool
	pinned   map[string]bool
}

// NewMemoryStore, boş bir MemoryStore oluşturur.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs:    make(map[string]*memConversation),
		pageSize: 50,
		echoIDs:  true,
	}
}

// SeedConversation, katılımcı listesiyle bir konuşma kaydeder.
// Unread sayaçları katılımcı bazlı tutulur; Seed edilmemiş konuşmalarda
// sayaç takibi yapılmaz ama mesaj akışı yine çalışır.
func (s *MemoryStore) SeedConversation(conversationID string, participantIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.conv(conversationID)
	conv.participants = append([]string(nil), participantIDs...)
}

// FailSends, sonraki tüm Send çağrılarının verilen hatayla dönmesini sağlar.
// nil vermek normal davranışa döndürür.
func (s *MemoryStore) FailSends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSend = err
}

// EchoClientIDs, store'un client ID echo edip etmediğini kontrol eder.
// false: reconciliation fingerprint fallback'ine düşer.
func (s *MemoryStore) EchoClientIDs(echo bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.echoIDs = echo
}

// SendCount, bugüne kadar yapılan başarılı+başarısız Send deneme sayısını döner.
func (s *MemoryStore) SendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendCount
}

// Unread, bir katılımcının unread sayacını döner.
func (s *MemoryStore) Unread(conversationID, participantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv(conversationID).unread[participantID]
}

// Messages, konuşmadaki tüm mesajların kopyasını döner (server sırasında).
func (s *MemoryStore) Messages(conversationID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.conv(conversationID)
	out := make([]models.Message, len(conv.messages))
	copy(out, conv.messages)
	return out
}

// InjectMessage, başka bir katılımcıdan gelmiş gibi confirmed bir mesaj
// ekler ve stream'e düşürür. Testlerde "karşı taraf yazdı" senaryosu için.
func (s *MemoryStore) InjectMessage(conversationID, senderID, content string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.appendLocked(conversationID, "", senderID, models.SendRequest{Content: content})
	return msg
}

// RedeliverAll, konuşmanın tüm mesajlarını tek sayfa halinde stream'e
// yeniden düşürür. Idempotent reconciliation testleri için: aynı mesajların
// tekrar teslimi merged view'u DEĞİŞTİRMEMELİDİR.
func (s *MemoryStore) RedeliverAll(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.conv(conversationID)
	if len(conv.messages) == 0 {
		return
	}
	page := models.MessagePage{Messages: append([]models.Message(nil), conv.messages...)}
	s.fanoutLocked(conv, page)
}

// ─── MessageStore implementasyonu ───

// Subscribe, önce mevcut tail'i snapshot sayfası olarak, sonra canlı
// güncellemeleri tek tek yayınlar.
func (s *MemoryStore) Subscribe(ctx context.Context, conversationID, sinceCursor string) (<-chan models.MessagePage, error) {
	s.mu.Lock()
	conv := s.conv(conversationID)

	ch := make(chan models.MessagePage, 64)
	conv.subs[ch] = struct{}{}

	// İlk snapshot: sinceCursor'dan sonrası, yoksa son pageSize mesaj.
	snapshot := s.snapshotLocked(conv, sinceCursor)
	s.mu.Unlock()

	ch <- snapshot

	// ctx iptal edilince aboneliği kaldır ve channel'ı kapat.
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(conv.subs, ch)
		s.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

func (s *MemoryStore) Send(ctx context.Context, conversationID, clientMessageID, senderID string, req models.SendRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sendCount++
	if s.failSend != nil {
		return "", s.failSend
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	echo := clientMessageID
	if !s.echoIDs {
		echo = ""
	}
	msg := s.appendLocked(conversationID, echo, senderID, req)
	return msg.ID, nil
}

func (s *MemoryStore) FetchOlder(ctx context.Context, conversationID, beforeCursor string, limit int) (*models.MessagePage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conv(conversationID)
	end := len(conv.messages)
	if beforeCursor != "" {
		idx, ok := conv.byID[beforeCursor]
		if !ok {
			return nil, fmt.Errorf("%w: cursor %s", pkg.ErrNotFound, beforeCursor)
		}
		end = idx
	}
	if limit <= 0 {
		limit = s.pageSize
	}

	start := end - limit
	if start < 0 {
		start = 0
	}
	page := &models.MessagePage{
		Messages: append([]models.Message(nil), conv.messages[start:end]...),
		HasMore:  start > 0,
	}
	if len(page.Messages) > 0 {
		page.Cursor = page.Messages[0].ID
	}
	return page, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, conversationID, participantID string, messageIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conv(conversationID)
	var updated []models.Message
	for _, id := range messageIDs {
		idx, ok := conv.byID[id]
		if !ok {
			continue
		}
		// Kendi mesajını okumak read-receipt üretmez.
		if conv.messages[idx].SenderID == participantID {
			continue
		}
		if conv.messages[idx].State != models.StateRead {
			conv.messages[idx].State = models.StateRead
			updated = append(updated, conv.messages[idx])
		}
	}
	if len(updated) > 0 {
		s.fanoutLocked(conv, models.MessagePage{Messages: updated})
	}
	return nil
}

func (s *MemoryStore) ClearUnread(ctx context.Context, conversationID, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv(conversationID).unread[participantID] = 0
	return nil
}

// SetReaction, toggle semantiğiyle çalışır: kullanıcı aynı emojiyi
// ikinci kez gönderirse tepki kaldırılır.
func (s *MemoryStore) SetReaction(ctx context.Context, conversationID, messageID, participantID, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conv(conversationID)
	idx, ok := conv.byID[messageID]
	if !ok {
		return fmt.Errorf("%w: message %s", pkg.ErrNotFound, messageID)
	}

	msg := &conv.messages[idx]
	for gi := range msg.Reactions {
		g := &msg.Reactions[gi]
		if g.Emoji != emoji {
			continue
		}
		for ui, u := range g.Users {
			if u == participantID {
				// Toggle off
				g.Users = append(g.Users[:ui], g.Users[ui+1:]...)
				g.Count--
				if g.Count == 0 {
					msg.Reactions = append(msg.Reactions[:gi], msg.Reactions[gi+1:]...)
				}
				s.fanoutLocked(conv, models.MessagePage{Messages: []models.Message{*msg}})
				return nil
			}
		}
		g.Users = append(g.Users, participantID)
		g.Count++
		s.fanoutLocked(conv, models.MessagePage{Messages: []models.Message{*msg}})
		return nil
	}

	msg.Reactions = append(msg.Reactions, models.ReactionGroup{Emoji: emoji, Count: 1, Users: []string{participantID}})
	s.fanoutLocked(conv, models.MessagePage{Messages: []models.Message{*msg}})
	return nil
}

// Delete, mesajı tombstone'a çevirir ve stream'e düşürür.
// Fiziksel silme yok — append-only store'larda silme böyle modellenir.
func (s *MemoryStore) Delete(ctx context.Context, conversationID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conv(conversationID)
	idx, ok := conv.byID[messageID]
	if !ok {
		return fmt.Errorf("%w: message %s", pkg.ErrNotFound, messageID)
	}
	conv.messages[idx].Deleted = true
	s.fanoutLocked(conv, models.MessagePage{Messages: []models.Message{conv.messages[idx]}})
	return nil
}

// ─── Yardımcılar (mu tutularak çağrılır) ───

func (s *MemoryStore) conv(id string) *memConversation {
	conv, ok := s.convs[id]
	if !ok {
		conv = &memConversation{
			byID:   make(map[string]int),
			unread: make(map[string]int),
			subs:   make(map[chan models.MessagePage]struct{}),
		}
		s.convs[id] = conv
	}
	return conv
}

// appendLocked, server timestamp atayıp mesajı kaydeder ve yayınlar.
func (s *MemoryStore) appendLocked(conversationID, clientID, senderID string, req models.SendRequest) models.Message {
	conv := s.conv(conversationID)

	// Server timestamp monotonik artar — aynı anda gelen iki mesaj
	// asla eşit timestamp almaz.
	now := time.Now()
	if !now.After(s.lastTS) {
		now = s.lastTS.Add(time.Millisecond)
	}
	s.lastTS = now

	ts := now
	msg := models.Message{
		ID:             uuid.NewString(),
		ClientID:       clientID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        req.Content,
		Attachments:    req.Attachments,
		ReplyToID:      req.ReplyToID,
		CreatedAt:      now,
		ServerTS:       &ts,
		State:          models.StateDelivered,
	}

	conv.byID[msg.ID] = len(conv.messages)
	conv.messages = append(conv.messages, msg)

	for _, p := range conv.participants {
		if p != senderID {
			conv.unread[p]++
		}
	}

	s.fanoutLocked(conv, models.MessagePage{Messages: []models.Message{msg}})
	return msg
}

// snapshotLocked, subscribe anındaki başlangıç sayfasını üretir.
func (s *MemoryStore) snapshotLocked(conv *memConversation, sinceCursor string) models.MessagePage {
	start := 0
	if sinceCursor != "" {
		if idx, ok := conv.byID[sinceCursor]; ok {
			start = idx + 1
		}
	} else if len(conv.messages) > s.pageSize {
		start = len(conv.messages) - s.pageSize
	}

	page := models.MessagePage{
		Messages: append([]models.Message(nil), conv.messages[start:]...),
		HasMore:  start > 0,
	}
	if len(page.Messages) > 0 {
		page.Cursor = page.Messages[0].ID
	}
	return page
}

// fanoutLocked, sayfayı tüm abonelere non-blocking dağıtır.
// Buffer'ı dolu abone sayfayı kaçırır — safety-net reconcile toparlar.
func (s *MemoryStore) fanoutLocked(conv *memConversation, page models.MessagePage) {
	for ch := range conv.subs {
		select {
		case ch <- page:
		default:
		}
	}
}
