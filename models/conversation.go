package models

import "time"

// Conversation, sıralı bir mesaj dizisinin ve katılımcı metadata'sının
// container'ıdır.
//
// Unread invariant'ı: bir katılımcının unread sayacı SADECE o katılımcı
// adına yapılan açık bir "mark read" aksiyonuyla sıfırlanır. Client
// tarafında keyfi decrement YAPILMAZ — sayaç store'un otoritesindedir,
// engine sadece ClearUnread çağırır ve store'dan geleni gösterir.
type Conversation struct {
	ID             string          `json:"id"`
	ParticipantIDs []string        `json:"participant_ids"`
	IsGroup        bool            `json:"is_group"`
	Unread         map[string]int  `json:"unread,omitempty"`       // participantID → okunmamış sayısı
	LastMessage    *MessagePreview `json:"last_message,omitempty"` // Liste görünümü için özet
	Muted          map[string]bool `json:"muted,omitempty"`        // participantID → sessize alınmış mı
	Archived       map[string]bool `json:"archived,omitempty"`
	Pinned         map[string]bool `json:"pinned,omitempty"`
}

// MessagePreview, konuşma listesinde gösterilen son mesaj özeti.
type MessagePreview struct {
	MessageID string    `json:"message_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	SentAt    time.Time `json:"sent_at"`
}

// TypingSignal, kısa TTL'li ephemeral bir "yazıyor" sinyalidir.
//
// Durable data model'in parçası DEĞİLDİR — asla Message olarak saklanmaz.
// TTL içinde yenilenmeyen sinyal stale sayılır ve gösterilmez.
// Kaybolması hata değildir (advisory).
type TypingSignal struct {
	ConversationID string    `json:"conversation_id"`
	ParticipantID  string    `json:"participant_id"`
	IsTyping       bool      `json:"is_typing"`
	At             time.Time `json:"at"`
}
