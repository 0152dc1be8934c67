package engine

import (
	"time"

	"github.com/akinalp/chatsync/models"
)

// pendingEntry, server onayı bekleyen lokal bir mesajı sarar.
//
// Pending Buffer'ın malıdır: eşleşen confirmed mesaj görüldüğü an kaldırılır
// veya send hatasında failed'a çevrilir. Journal verilmemişse process
// ömrü dışında yaşamaz.
type pendingEntry struct {
	msg         models.Message
	fingerprint string
	submittedAt time.Time

	// connectivityFailed: Send, bağlantı yokluğu yüzünden başarısız oldu.
	// Reconnect'te otomatik retry adayı — diğer failed'lar manuel retry bekler.
	connectivityFailed bool
}

// pendingBuffer, confirm bekleyen mesajların submit sıralı tamponudur.
//
// Thread-safe DEĞİLDİR ve olması gerekmez: sahibi Session'ın run loop'udur,
// tüm erişim o tek goroutine üzerinden serialize edilir. Metodlar asla
// panic etmez — geçersiz durumlar çağıran tarafta önceden elenir.
type pendingBuffer struct {
	entries    []*pendingEntry
	byClientID map[string]*pendingEntry
}

func newPendingBuffer() *pendingBuffer {
	return &pendingBuffer{
		byClientID: make(map[string]*pendingEntry),
	}
}

// insert, entry'yi tamponun sonuna ekler (submit sırası korunur).
// Aynı ClientID ikinci kez eklenirse eski kayıt üzerine yazılır.
func (b *pendingBuffer) insert(entry *pendingEntry) {
	if _, exists := b.byClientID[entry.msg.ClientID]; exists {
		b.remove(entry.msg.ClientID)
	}
	b.entries = append(b.entries, entry)
	b.byClientID[entry.msg.ClientID] = entry
}

// remove, ClientID ile entry'yi kaldırır. Yoksa false döner.
func (b *pendingBuffer) remove(clientID string) bool {
	entry, ok := b.byClientID[clientID]
	if !ok {
		return false
	}
	delete(b.byClientID, clientID)
	for i, e := range b.entries {
		if e == entry {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			break
		}
	}
	return true
}

// get, ClientID ile entry döner.
func (b *pendingBuffer) get(clientID string) (*pendingEntry, bool) {
	entry, ok := b.byClientID[clientID]
	return entry, ok
}

// all, entry'leri submit sırasında döner. Dönen slice tamponun kendisidir —
// çağıran (run loop) mutate etmez, sadece okur.
func (b *pendingBuffer) all() []*pendingEntry {
	return b.entries
}

// len döner.
func (b *pendingBuffer) len() int {
	return len(b.entries)
}

// matchFingerprint, window içinde submit edilmiş ve verilen fingerprint'e
// sahip EN ESKİ entry'yi döner.
//
// Window dışına düşen entry'ler fingerprint ile eşleşmez — onlar için tek
// eşleşme yolu ClientID'dir. Bu, aynı kullanıcının dakikalar sonra bilerek
// gönderdiği aynı metnin eski bir pending ile birleştirilmesini önler.
func (b *pendingBuffer) matchFingerprint(fingerprint string, window time.Duration, now time.Time) (*pendingEntry, bool) {
	for _, entry := range b.entries {
		if entry.fingerprint != fingerprint {
			continue
		}
		if now.Sub(entry.submittedAt) > window {
			continue
		}
		return entry, true
	}
	return nil, false
}

// connectivityFailedEntries, reconnect'te otomatik retry adaylarını döner.
func (b *pendingBuffer) connectivityFailedEntries() []*pendingEntry {
	var out []*pendingEntry
	for _, entry := range b.entries {
		if entry.msg.State == models.StateFailed && entry.connectivityFailed {
			out = append(out, entry)
		}
	}
	return out
}

// hasInFlight, verilen fingerprint'li pending (failed olmayan) entry var mı
// diye bakar. Duplicate-submit guard'ın buffer tarafı: TTL cache süresi
// dolsa bile hâlâ in-flight olan birebir aynı içerik reddedilir.
func (b *pendingBuffer) hasInFlight(fingerprint string) bool {
	for _, entry := range b.entries {
		if entry.fingerprint == fingerprint && entry.msg.State == models.StatePending {
			return true
		}
	}
	return false
}
