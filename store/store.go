// Package store, engine'in dış dünya ile konuştuğu collaborator
// interface'lerini ve hazır adapter'larını barındırır.
//
// Engine üç dış kabiliyete ihtiyaç duyar:
//   - MessageStore: append-only, eventually-consistent uzak mesaj deposu.
//   - TypingChannel: best-effort ephemeral typing/presence yayını.
//   - Connectivity: ağ erişilebilirlik sinyali.
//
// Hepsi interface'tir — engine concrete adapter'lara değil bu
// interface'lere bağımlıdır. Testlerde MemoryStore + ManualConnectivity,
// production'da WSStore + RedisTyping kullanılır; host uygulama kendi
// adapter'ını da yazabilir.
package store

import (
	"context"

	"github.com/akinalp/chatsync/models"
)

// MessageStore, uzak mesaj deposunun engine'e görünen yüzüdür.
//
// Subscribe stream'i sayfa (batch) döner — engine bir sayfada tek mesaj
// varsaymaz. Aynı mantıksal mesaj birden fazla kez veya varış sırası
// bozuk gelebilir; dedup ve sıralama engine'in işidir, store'un değil.
//
// Send'e verilen clientMessageID store tarafından echo EDİLMELİDİR
// (dönen mesajlarda client_id alanı) — reconciliation'ın birincil eşleşme
// yolu budur. Echo etmeyen store'larda fingerprint fallback'i devreye girer.
type MessageStore interface {
	// Subscribe, konuşmanın canlı mesaj stream'ini başlatır.
	// sinceCursor boşsa mevcut tail'den başlar. Stream, ctx iptal
	// edilince kapanır. Aynı ctx ile tek subscription açılmalıdır —
	// at-most-one garantisi engine'dedir, adapter sadece ctx'e uyar.
	Subscribe(ctx context.Context, conversationID, sinceCursor string) (<-chan models.MessagePage, error)

	// Send, yeni bir mesajı store'a yazar ve server'ın atadığı kimliği döner.
	// Kalıcı redler pkg.ErrRejected ile sarılmalıdır; diğer tüm hatalar
	// transient sayılır ve retry edilebilir.
	Send(ctx context.Context, conversationID, clientMessageID, senderID string, req models.SendRequest) (string, error)

	// FetchOlder, beforeCursor'dan önceki bir sayfayı döner (pagination).
	FetchOlder(ctx context.Context, conversationID, beforeCursor string, limit int) (*models.MessagePage, error)

	// MarkRead, verilen mesajları görüntüleyen adına okundu işaretler.
	MarkRead(ctx context.Context, conversationID, participantID string, messageIDs []string) error

	// ClearUnread, katılımcının unread sayacını sıfırlar.
	// Konuşma açıldığı an çağrılır — mesaj bazlı read-receipt'ten bağımsızdır.
	ClearUnread(ctx context.Context, conversationID, participantID string) error

	// SetReaction, bir mesaja emoji tepkisi ekler/çıkarır (toggle).
	SetReaction(ctx context.Context, conversationID, messageID, participantID, emoji string) error

	// Delete, bir mesajı siler. Silme stream'e tombstone olarak düşer;
	// engine merged view'dan mesajı kaldırır.
	Delete(ctx context.Context, conversationID, messageID string) error
}

// TypingChannel, ephemeral typing sinyali yayın kanalıdır.
//
// Advisory'dir: sinyal kaybı hata DEĞİLDİR. SetTyping hataları
// loglanır, asla send/receive yolunu kesmez.
type TypingChannel interface {
	SetTyping(ctx context.Context, conversationID, participantID string, isTyping bool) error
	ObserveTyping(ctx context.Context, conversationID string) (<-chan models.TypingSignal, error)
}

// Connectivity, ağ erişilebilirlik sinyalinin kaynağıdır.
//
// Observe stream'i bağlantı durumu değiştikçe bool yayınlar; implementasyon
// abone olunduğunda mevcut durumu ilk değer olarak YAYINLAMALIDIR.
type Connectivity interface {
	Observe(ctx context.Context) <-chan bool
}
