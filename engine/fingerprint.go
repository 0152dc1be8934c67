// Package engine, chat senkronizasyon çekirdeğini barındırır:
// pending buffer, reconciliation, send/retry state machine, subscription
// lifecycle, pagination window, typing coordinator ve delivery gate.
//
// Concurrency modeli: konuşma başına TEK serialized run loop (Session).
// Pending buffer ve merged view'a SADECE bu loop dokunur; network send,
// preview fetch, typing ve connectivity stream'leri kendi goroutine'lerinde
// çalışır ama sonuçlarını loop'a command olarak geri bildirir. Böylece
// merged view asla yarım (torn) bir durumda gözlemlenmez.
package engine

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"github.com/akinalp/chatsync/models"
)

// Fingerprint, bir mesajın semantik içeriği üzerinden deterministik hash üretir.
//
// Girdi: gönderen + gövde metni + sıralı attachment ID'leri.
// Aynı üçlü her zaman aynı fingerprint'i verir — reconciliation, confirm
// window'u içinde pending entry'yi store'dan gelen kopyasıyla bununla eşler.
//
// Fingerprint mesajın ÖMÜR BOYU kimliği DEĞİLDİR: confirm sonrası otorite
// server ID'dir. Collision teoride mümkün ama blake2b-256 ile pratikte
// imkansız; asıl risk aynı kullanıcının aynı metni kasıtlı iki kez
// göndermesidir — o da fingerprint ile değil, eşleşmenin zaman window'uyla
// (ReconcileConfig.Window) çözülür.
//
// Alanlar NUL byte ile ayrılır — "ab"+"c" ile "a"+"bc" farklı hash üretsin.
func Fingerprint(senderID, content string, attachments []models.Attachment) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Keyless blake2b hata üretmez; imza gereği kontrol ediyoruz.
		panic(err)
	}

	h.Write([]byte(senderID))
	h.Write([]byte{0})
	h.Write([]byte(content))
	for _, a := range attachments {
		h.Write([]byte{0})
		h.Write([]byte(a.ID))
	}

	return hex.EncodeToString(h.Sum(nil))
}
