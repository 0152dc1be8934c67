package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg/cache"
	"github.com/akinalp/chatsync/store"
)

// typingCoordinator, lokal typing durumunun debounce'lu yayınını ve uzak
// typing durumunun gösterim için türetilmesini yönetir.
//
// Lokal taraf: her tuş vuruşu Keystroke ile bildirilir. Yayın SADECE
// geçişlerde yapılır (false→true, true→false) — tuş vuruşu başına asla.
// Debounce süresi boyunca yeni vuruş gelmezse "yazmıyor" yayınlanır.
//
// Uzak taraf: TTL içinde yenilenmeyen sinyal stale'dir, ActiveTypers'ta
// görünmez. Sinyal kaybı hata değildir — her şey advisory.
//
// Yayın hataları loglanır ve yutulur: typing, send/receive yolunu asla kesmez.
type typingCoordinator struct {
	conversationID string
	selfID         string
	channel        store.TypingChannel
	debounce       time.Duration

	mu          sync.Mutex
	localTyping bool
	timer       *time.Timer

	remote *cache.TTLCache[string, models.TypingSignal]
}

func newTypingCoordinator(ctx context.Context, channel store.TypingChannel, conversationID, selfID string, debounce, ttl time.Duration) *typingCoordinator {
	t := &typingCoordinator{
		conversationID: conversationID,
		selfID:         selfID,
		channel:        channel,
		debounce:       debounce,
		remote:         cache.New[string, models.TypingSignal](ttl, ttl),
	}

	// Abonelik senkron kurulur: koordinatör döndüğü an konuşma açılışının
	// hemen ardından gelen sinyaller de yakalanır.
	signals, err := channel.ObserveTyping(ctx, conversationID)
	if err != nil {
		log.Printf("[typing] observe failed for %s: %v", conversationID, err)
		return t
	}
	go t.observe(signals)

	return t
}

// Keystroke, kullanıcının bir tuşa bastığını bildirir.
func (t *typingCoordinator) Keystroke() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.localTyping {
		t.localTyping = true
		go t.broadcast(true)
	}

	// Debounce timer'ını yeniden kur — son vuruştan debounce süresi sonra düşer.
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.debounce, t.clearLocal)
}

// clearLocal, debounce dolunca "yazmıyor" durumuna geçirir.
func (t *typingCoordinator) clearLocal() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.localTyping {
		t.localTyping = false
		go t.broadcast(false)
	}
}

// ActiveTypers, şu an yazan uzak katılımcıların ID'lerini döner.
// Stale sinyaller (TTL aşımı) otomatik düşer.
func (t *typingCoordinator) ActiveTypers() []string {
	items := t.remote.Items()
	out := make([]string, 0, len(items))
	for id := range items {
		out = append(out, id)
	}
	return out
}

// stop, koordinatörü kapatır: aktifse "yazmıyor" yayınlar, timer'ı ve
// cache'i durdurur. Session.Close tarafından çağrılır.
func (t *typingCoordinator) stop() {
	t.mu.Lock()
	wasTyping := t.localTyping
	t.localTyping = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	if wasTyping {
		t.broadcast(false)
	}
	t.remote.Close()
}

// broadcast, typing durumunu kanala yazar. Session ctx'i kapanmış olsa bile
// son "yazmıyor" sinyali gidebilsin diye kendi kısa timeout'lu ctx'ini kurar.
func (t *typingCoordinator) broadcast(isTyping bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := t.channel.SetTyping(ctx, t.conversationID, t.selfID, isTyping); err != nil {
		log.Printf("[typing] broadcast failed for %s: %v", t.conversationID, err)
	}
}

// observe, uzak typing stream'ini tüketir.
func (t *typingCoordinator) observe(signals <-chan models.TypingSignal) {
	for signal := range signals {
		if signal.ParticipantID == t.selfID {
			continue // kendi echo'muz
		}
		if signal.IsTyping {
			t.remote.Set(signal.ParticipantID, signal)
		} else {
			t.remote.Delete(signal.ParticipantID)
		}
	}
}
