// Package pkg, projede paylaşılan utility'leri barındırır.
// Bu dosya domain-level error tanımlarını içerir.
//
// Go'da error'lar basit değerlerdir (string taşıyan struct'lar).
// errors.New() ile sabit error değişkenleri tanımlarız.
// Böylece error karşılaştırması string yerine referans ile yapılır:
//
//	if errors.Is(err, pkg.ErrValidation) { ... }
//
// UI katmanı bu error'ları kullanıcıya gösterilecek davranışlara map'ler:
// ErrValidation → inline uyarı, ErrRejected → kalıcı hata mesajı,
// ErrDuplicateSend → hiçbir şey (sessiz no-op).
package pkg

import "errors"

// Domain-level error'lar.
// Engine katmanı bunları döner, UI katmanı errors.Is ile yakalar.
var (
	// ErrValidation — boş içerik, çok uzun içerik vb.
	// Pending entry oluşturulmadan ÖNCE reddedilir; optimistic UI gösterilmez.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateSend — aynı içerik zaten gönderim aşamasında (double-tap koruması).
	// Hata değil, no-op sinyali: çağıran taraf isterse gözlemler, kullanıcıya göstermez.
	ErrDuplicateSend = errors.New("duplicate send in flight")

	// ErrRateLimited — gönderim hız limiti aşıldı.
	// Validation sınıfı: pending entry oluşturulmaz.
	ErrRateLimited = errors.New("rate limited")

	// ErrRejected — store tarafı kalıcı red (yetki yok, konuşma silinmiş).
	// Retry edilemez; pending entry failed bırakılmaz, tamamen kaldırılır.
	ErrRejected = errors.New("rejected by store")

	// ErrOffline — bağlantı yokken yapılan network denemesi.
	// Transient sınıfı: mesaj failed'a geçer, reconnect'te otomatik retry adayı olur.
	ErrOffline = errors.New("offline")

	// ErrBusy — aynı işlem zaten devam ediyor (ör. eşzamanlı LoadOlder).
	// İkinci çağrı kuyruklanmaz, reddedilir.
	ErrBusy = errors.New("operation already in progress")

	// ErrClosed — kapatılmış bir session/engine üzerinde işlem denemesi.
	ErrClosed = errors.New("closed")

	// ErrNotFound — bilinmeyen mesaj/pending entry referansı.
	ErrNotFound = errors.New("not found")

	// ErrUnsupported — store'un sağlamadığı opsiyonel bir yüzey istendi
	// (ör. conversation directory olmayan bir backend'de liste sorgusu).
	ErrUnsupported = errors.New("not supported by store")
)
