package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/akinalp/chatsync/pkg"
)

// DeliveryState, bir mesajın teslimat yaşam döngüsündeki durumudur.
//
// Geçiş kuralları:
//   - Mesaj lokalde pending olarak doğar (optimistic UI).
//   - pending → sent/delivered/read geçişleri SADECE store'dan gelen
//     veriyle olur — send çağrısının kendisi mesajı "sent" yapamaz.
//   - pending → failed network hatasında olur.
//   - failed → pending geçişi YOKTUR: failed mesaj yeni bir ClientID ile
//     yeni bir mesaj olarak yeniden gönderilir (Retry).
type DeliveryState string

const (
	StatePending   DeliveryState = "pending"
	StateSent      DeliveryState = "sent"
	StateDelivered DeliveryState = "delivered"
	StateRead      DeliveryState = "read"
	StateFailed    DeliveryState = "failed"
)

// Message, bir konuşmadaki tek mesajı temsil eder.
//
// İki kimlik taşır:
//   - ClientID: Lokalde üretilen provisional kimlik (uuid). Store client
//     ID'yi echo ederse reconciliation birincil olarak bununla eşleşir.
//   - ID: Store'un atadığı kalıcı kimlik. Confirm edilene kadar boştur.
//
// Opsiyonel alanlar pointer'dır — "yok" ile "zero value" ayrımı için.
// Dinamik key'li map YOK: her alan açık tiple modellenir.
type Message struct {
	ID             string         `json:"id,omitempty"`        // Store'un atadığı kimlik — confirm öncesi boş
	ClientID       string         `json:"client_id,omitempty"` // Lokal provisional kimlik
	ConversationID string         `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	Content        string         `json:"content"`
	Attachments    []Attachment   `json:"attachments,omitempty"` // Sıralı — fingerprint bu sırayı kullanır
	Preview        *LinkPreview   `json:"preview,omitempty"`     // Link metadata — best-effort, sonradan eklenebilir
	ReplyToID      *string        `json:"reply_to_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`          // Client'ın gözlemlediği zaman (submit anı)
	ServerTS       *time.Time     `json:"server_ts,omitempty"` // Store'un atadığı zaman — confirm öncesi nil
	EditedAt       *time.Time     `json:"edited_at,omitempty"`
	State          DeliveryState  `json:"state"`
	Reactions      []ReactionGroup `json:"reactions,omitempty"`
	Deleted        bool           `json:"deleted,omitempty"` // Tombstone — merged view'dan düşürülür
}

// Confirmed, mesajın store tarafından onaylanıp onaylanmadığını döner.
func (m *Message) Confirmed() bool {
	return m.ID != "" && m.ServerTS != nil
}

// OrderKey, merged view sıralamasında kullanılacak zamanı döner.
//
// Confirm edilmiş mesajlar server zamanıyla, henüz confirm edilmemiş
// (pending/failed) mesajlar submit zamanıyla sıralanır. Böylece art arda
// gönderilen iki mesaj, ack'leri ters sırada gelse bile submit sırasında
// görünür; confirm edildiklerinde server zamanı devralır.
func (m *Message) OrderKey() time.Time {
	if m.ServerTS != nil {
		return *m.ServerTS
	}
	return m.CreatedAt
}

// Attachment, mesaja eklenmiş bir dosya/medya tanımlayıcısıdır.
// Engine içeriği taşımaz — upload dışarıda yapılır, burada sadece referans var.
type Attachment struct {
	ID       string  `json:"id"`
	Filename string  `json:"filename"`
	FileURL  string  `json:"file_url"`
	FileSize *int64  `json:"file_size,omitempty"` // Nullable — byte cinsinden
	MimeType *string `json:"mime_type,omitempty"` // Nullable — "image/png" vb.
}

// LinkPreview, mesaj içindeki ilk linkin metadata'sıdır.
// Enrichment best-effort'tur: fetch başarısız olursa Preview nil kalır,
// mesajın teslimatı ETKİLENMEZ.
type LinkPreview struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// ReactionGroup, bir mesajdaki aynı emojinin toplu görünümü.
//
// Örnek: 👍 3 [user1, user2, user3]
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// MessagePage, store'dan gelen sıralı bir mesaj batch'i.
//
// Subscribe stream'i de FetchOlder da sayfa döner — engine bir sayfada
// tek mesaj varsaymaz. HasMore pagination için: false gelince o session
// boyunca "daha eski yükle" kalıcı olarak kapanır.
type MessagePage struct {
	Messages []Message `json:"messages"`
	Cursor   string    `json:"cursor,omitempty"` // Bir sonraki FetchOlder için
	HasMore  bool      `json:"has_more"`
}

// SendRequest, yeni mesaj gönderme isteği.
type SendRequest struct {
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReplyToID   *string      `json:"reply_to_id,omitempty"`
}

// Validate, SendRequest'in geçerli olup olmadığını kontrol eder.
//
// Metin boş olabilir — ama o zaman en az bir attachment şarttır.
// Geçersiz girdi için pending entry OLUŞTURULMAZ: optimistic UI
// hiç gösterilmez, kullanıcı inline uyarı alır.
func (r *SendRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	contentLen := utf8.RuneCountInString(r.Content)
	if contentLen == 0 && len(r.Attachments) == 0 {
		return fmt.Errorf("%w: message content or attachment is required", pkg.ErrValidation)
	}
	if contentLen > 4000 {
		return fmt.Errorf("%w: message content must be at most 4000 characters", pkg.ErrValidation)
	}
	return nil
}
