package engine

import (
	"sort"
	"time"

	"github.com/akinalp/chatsync/models"
)

// reconciler, remote stream ile pending buffer'ı tek bir sıralı,
// duplicate'siz merged view'da birleştirir.
//
// "Kullanıcı hangi mesajları görüyor" sorusunun tek doğru cevabı budur.
// Sahibi Session'ın run loop'udur; thread-safe değildir.
type reconciler struct {
	window time.Duration

	// confirmed: serverID → mesajın son bilinen hali.
	// Aynı mesajın tekrar teslimi üzerine yazar — idempotent.
	confirmed map[string]models.Message

	// lastEmitted: son yayınlanan merged view. Yapısal fark yoksa yeni
	// emit yapılmaz — gereksiz re-render ve reconciliation ortasındaki
	// mesajın "yanıp sönmesi" böyle önlenir.
	lastEmitted []models.Message
}

func newReconciler(window time.Duration) *reconciler {
	return &reconciler{
		window:    window,
		confirmed: make(map[string]models.Message),
	}
}

// applyPage, store'dan gelen bir sayfayı işler.
//
// Sayfadaki her mesaj için:
//  1. Tombstone ise confirmed'dan düşürülür (stale cache'te yaşasa bile
//     merged view'dan kalkar).
//  2. Confirmed map'e upsert edilir — duplicate teslim, edit, reaction ve
//     read-state güncellemeleri hep aynı yoldan akar.
//  3. Eşleşen pending entry emekliye ayrılır: birincil yol client ID echo'su,
//     fallback window içi fingerprint eşleşmesi.
//
// Dönen değerler: ilk kez görülen mesajlar (read-marking için) ve emekliye
// ayrılan pending ClientID'leri (journal temizliği için).
func (r *reconciler) applyPage(page models.MessagePage, buf *pendingBuffer, now time.Time) (added []models.Message, retired []string) {
	for _, msg := range page.Messages {
		if msg.Deleted {
			delete(r.confirmed, msg.ID)
			continue
		}

		_, seen := r.confirmed[msg.ID]
		r.confirmed[msg.ID] = msg
		if !seen {
			added = append(added, msg)
		}

		// Pending eşleştirme — önce identifier, sonra fingerprint.
		if msg.ClientID != "" {
			if buf.remove(msg.ClientID) {
				retired = append(retired, msg.ClientID)
				continue
			}
		}
		fp := Fingerprint(msg.SenderID, msg.Content, msg.Attachments)
		if entry, ok := buf.matchFingerprint(fp, r.window, now); ok {
			buf.remove(entry.msg.ClientID)
			retired = append(retired, entry.msg.ClientID)
		}
	}
	return added, retired
}

// dropConfirmed, remote silme dışı bir sebeple (ör. lokal Delete çağrısının
// optimistic etkisi) mesajı view'dan düşürmek için.
func (r *reconciler) dropConfirmed(messageID string) {
	delete(r.confirmed, messageID)
}

// attachPreview, geç tamamlanan bir preview fetch'ini confirm edilmiş
// kopyaya işler. Mesaj pending'ken başlayan enrichment, confirm yarışı
// kaybedilse bile kaybolmaz.
func (r *reconciler) attachPreview(clientID string, preview *models.LinkPreview) bool {
	for id, msg := range r.confirmed {
		if msg.ClientID == clientID {
			msg.Preview = preview
			r.confirmed[id] = msg
			return true
		}
	}
	return false
}

// merge, confirmed mesajlar + eşleşmemiş pending entry'lerden sıralı
// merged view üretir.
//
// Sıralama anahtarı OrderKey'dir: confirm edilmişlerde server timestamp,
// pending'lerde submit timestamp. Geç gelen bir confirmation, timestamp'i
// görüntülenen tarihçenin ortasına düşüyorsa oraya OTURUR — kuyruğa değil.
func (r *reconciler) merge(buf *pendingBuffer) []models.Message {
	out := make([]models.Message, 0, len(r.confirmed)+buf.len())
	for _, msg := range r.confirmed {
		out = append(out, msg)
	}
	for _, entry := range buf.all() {
		out = append(out, entry.msg)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := out[i].OrderKey(), out[j].OrderKey()
		if !ki.Equal(kj) {
			return ki.Before(kj)
		}
		// Eşit timestamp: confirmed önce, sonra kimlik sırası (deterministik).
		ci, cj := out[i].Confirmed(), out[j].Confirmed()
		if ci != cj {
			return ci
		}
		return identityKey(out[i]) < identityKey(out[j])
	})

	return out
}

// emitIfChanged, merged view'u üretir ve son yayınlanandan yapısal olarak
// farklıysa (true, view) döner. Fark yoksa emit edilmez.
func (r *reconciler) emitIfChanged(buf *pendingBuffer) ([]models.Message, bool) {
	view := r.merge(buf)
	if sameView(r.lastEmitted, view) {
		return nil, false
	}
	r.lastEmitted = view
	return view, true
}

// identityKey, diff ve tie-break için mesajın kimliğini döner:
// confirm edilmişse server ID, değilse provisional ClientID.
func identityKey(m models.Message) string {
	if m.ID != "" {
		return m.ID
	}
	return m.ClientID
}

// sameView, iki view'un yapısal eşitliğini kontrol eder:
// uzunluk, sıralı kimlikler, delivery state, içerik/edit, preview varlığı
// ve reaction dağılımı. Bunların hiçbiri değişmediyse re-render gereksizdir.
func sameView(a, b []models.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if identityKey(a[i]) != identityKey(b[i]) {
			return false
		}
		if a[i].State != b[i].State || a[i].Content != b[i].Content {
			return false
		}
		if !timePtrEqual(a[i].EditedAt, b[i].EditedAt) {
			return false
		}
		if (a[i].Preview == nil) != (b[i].Preview == nil) {
			return false
		}
		if !sameReactions(a[i].Reactions, b[i].Reactions) {
			return false
		}
	}
	return true
}

func sameReactions(a, b []models.ReactionGroup) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Emoji != b[i].Emoji || a[i].Count != b[i].Count {
			return false
		}
	}
	return true
}

func timePtrEqual(a, b *time.Time) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || a.Equal(*b)
}
