// Package journal, pending mesajlar için opsiyonel durable kuyruk sağlar.
//
// Core garanti şudur: confirm edilmemiş mesajlar process ömrüyle sınırlıdır.
// Journal bu garantiyi genişleten bir extension point'tir — engine'e bir
// Journal verilirse, pending entry'ler submit anında diske yazılır ve
// confirm/kalıcı-red anında silinir. Process yeniden başladığında session
// açılışında Load ile geri yüklenir ve "failed" durumda kullanıcıya manuel
// retry olarak sunulur (otomatik bulk resend YAPILMAZ — sürpriz toplu
// gönderim istemiyoruz).
//
// Journal yazma hataları loglanır ama send yolunu ASLA kesmez:
// durability best-effort bir iyileştirmedir, teslimatın ön koşulu değil.
package journal

import (
	"context"
	"time"

	"github.com/akinalp/chatsync/models"
)

// Entry, journal'a yazılan tek bir pending mesaj kaydıdır.
type Entry struct {
	Message     models.Message
	Fingerprint string
	SubmittedAt time.Time
}

// Journal, pending mesaj kalıcılığı interface'i.
// Engine bu interface'e bağımlıdır; SQLite implementasyonu bu pakettedir,
// host uygulama kendi implementasyonunu da verebilir.
type Journal interface {
	// Append, yeni bir pending entry'yi kalıcılaştırır.
	// Aynı ClientID ile ikinci Append üzerine yazar (upsert).
	Append(ctx context.Context, entry Entry) error

	// Remove, confirm edilen veya kalıcı reddedilen entry'yi siler.
	Remove(ctx context.Context, clientID string) error

	// Load, bir konuşmanın bekleyen entry'lerini submit sırasında döner.
	Load(ctx context.Context, conversationID string) ([]Entry, error)

	Close() error
}
