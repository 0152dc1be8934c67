package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
	"github.com/akinalp/chatsync/preview"
)

// Send, bir mesajı optimistic olarak view'a ekler ve store'a gönderir.
//
// Dönüş anında mesaj pending state ile merged view'dadır ve ClientID'si
// bellidir; asıl gönderim arka planda sürer. Sonuç iki yoldan gelir:
// başarıda stream confirm'i pending'i emekli eder, hatada Failures
// kanalına SendFailure düşer.
//
// Aynı içeriğin duplicate-submit penceresi içinde ikinci çağrısı
// ErrDuplicateSend döner ve yeni mesaj YARATMAZ.
func (s *Session) Send(req models.SendRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	if s.limiter != nil && !s.limiter.Allow(s.conversationID) {
		return "", pkg.ErrRateLimited
	}

	fp := Fingerprint(s.selfID, req.Content, req.Attachments)

	// Hızlı yol: TTL cache aynı fingerprint'i pencere içinde gördüyse
	// loop'a bile girmeden reddet (double-tap, double-enter).
	if _, dup := s.dupGuard.Get(fp); dup {
		return "", pkg.ErrDuplicateSend
	}

	clientID := uuid.New().String()
	now := time.Now()

	entry := &pendingEntry{
		msg: models.Message{
			ClientID:       clientID,
			ConversationID: s.conversationID,
			SenderID:       s.selfID,
			Content:        req.Content,
			Attachments:    req.Attachments,
			ReplyToID:      req.ReplyToID,
			CreatedAt:      now,
			State:          models.StatePending,
		},
		fingerprint: fp,
		submittedAt: now,
	}

	var dup bool
	err := s.postWait(func() {
		// Yavaş yol: cache expire olmuş ama aynı fingerprint hâlâ
		// pending uçuşta olabilir — buffer'a karşı da kontrol edilir.
		if s.buf.hasInFlight(fp) {
			dup = true
			return
		}
		s.buf.insert(entry)
		s.emit()
	})
	if err != nil {
		return "", err
	}
	if dup {
		return "", pkg.ErrDuplicateSend
	}

	s.dupGuard.Set(fp, struct{}{})
	s.journalAppend(entry)
	s.typing.clearLocal()

	if urlStr := preview.DetectURL(req.Content); urlStr != "" {
		go s.enrichPreview(clientID, urlStr)
	}

	go s.attempt(clientID, req)

	return clientID, nil
}

// Retry, failed durumdaki bir pending'i YENİ kimlikle yeniden dener.
// Eski ClientID view'dan düşer; retry edilen mesaj yeni bir gönderimdir,
// içerik fingerprint'i aynı kalır (geç gelen eski confirm yine eşleşsin diye).
func (s *Session) Retry(clientID string) (string, error) {
	newID := uuid.New().String()
	var retryErr error
	var fresh *pendingEntry
	var req models.SendRequest

	err := s.postWait(func() {
		old, ok := s.buf.get(clientID)
		if !ok {
			retryErr = fmt.Errorf("%w: no pending message %s", pkg.ErrNotFound, clientID)
			return
		}
		if old.msg.State != models.StateFailed {
			retryErr = fmt.Errorf("%w: message %s is not failed", pkg.ErrValidation, clientID)
			return
		}

		msg := old.msg
		msg.ClientID = newID
		msg.State = models.StatePending
		msg.CreatedAt = time.Now()

		fresh = &pendingEntry{
			msg:         msg,
			fingerprint: old.fingerprint,
			submittedAt: time.Now(),
		}
		s.buf.remove(clientID)
		s.buf.insert(fresh)
		s.emit()
		req = models.SendRequest{
			Content:     msg.Content,
			Attachments: msg.Attachments,
			ReplyToID:   msg.ReplyToID,
		}
	})
	if err != nil {
		return "", err
	}
	if retryErr != nil {
		return "", retryErr
	}

	s.journalRemove(clientID)
	s.journalAppend(fresh)

	go s.attempt(newID, req)

	return newID, nil
}

// Discard, failed bir pending'i denemeden kalıcı olarak düşürür
// (kullanıcının "vazgeç" aksiyonu).
func (s *Session) Discard(clientID string) error {
	var derr error
	err := s.postWait(func() {
		old, ok := s.buf.get(clientID)
		if !ok {
			derr = fmt.Errorf("%w: no pending message %s", pkg.ErrNotFound, clientID)
			return
		}
		if old.msg.State != models.StateFailed {
			derr = fmt.Errorf("%w: message %s is not failed", pkg.ErrValidation, clientID)
			return
		}
		s.buf.remove(clientID)
		s.emit()
	})
	if err != nil {
		return err
	}
	if derr != nil {
		return derr
	}
	s.journalRemove(clientID)
	return nil
}

// attempt, tek bir gönderim denemesidir (kendi goroutine'inde çalışır).
//
// Gate kapalıyken network'e hiç çıkılmaz: deneme anında connectivity-failed
// sayılır ve reconnect'te otomatik retry adayı olur. Gönderimin ctx'i
// session'a DEĞİL kendi timeout'una bağlıdır — Close in-flight send'i kesmez.
// Request loop'a geri sorulmaz, çağıran verir: Send dönmüşse deneme loop
// ölse bile yapılır, kabul edilmiş mesaj sessizce kaybolmaz.
func (s *Session) attempt(clientID string, req models.SendRequest) {
	// Hâlâ denemeye değer mi? (Discard yarışı.) Loop kapandıysa kontrol
	// atlanır ve gönderim yine de tamamlanır.
	var dropped bool
	if err := s.postWait(func() {
		entry, ok := s.buf.get(clientID)
		dropped = !ok || entry.msg.State != models.StatePending
	}); err == nil && dropped {
		return
	}

	if !s.gate.Connected() {
		s.markFailed(clientID, pkg.ErrOffline, true)
		return
	}

	sctx, scancel := context.WithTimeout(context.Background(), s.cfg.Send.Timeout)
	defer scancel()

	serverID, err := s.msgStore.Send(sctx, s.conversationID, clientID, s.selfID, req)
	if err != nil {
		if errors.Is(err, pkg.ErrRejected) {
			// Kalıcı red: retry anlamsız, mesaj view'dan kaldırılır.
			log.Printf("[sender] message rejected by store: %v", err)
			_ = s.postWait(func() {
				if s.buf.remove(clientID) {
					s.emit()
				}
			})
			s.journalRemove(clientID)
			s.notifyFailure(SendFailure{ClientID: clientID, Err: err, Retryable: false})
			return
		}
		// Geçici hata: failed işaretle, retry mümkün. Hata offline
		// kaynaklıysa reconnect'te otomatik retry adayı olur.
		connectivity := errors.Is(err, pkg.ErrOffline) || !s.gate.Connected()
		s.markFailed(clientID, err, connectivity)
		return
	}

	// Başarı: henüz stream confirm'i gelmemişse state sent'e çekilir.
	// Asıl emeklilik stream'den gelen echo ile olur; burada sadece UI'daki
	// "gönderiliyor" göstergesi kapanır. Store kabul ettiği an journal
	// kaydının işi bitmiştir — session bu arada kapanmış olsa bile
	// düşürülür ki sonraki açılışta hayalet failed entry doğmasın.
	_ = s.postWait(func() {
		if entry, ok := s.buf.get(clientID); ok && entry.msg.State == models.StatePending {
			entry.msg.State = models.StateSent
			if entry.msg.ID == "" {
				entry.msg.ID = serverID
			}
			s.emit()
		}
	})
	s.journalRemove(clientID)
}

// markFailed, pending bir entry'yi failed'a çeker ve kullanıcıya bildirir.
// Sadece pending'den geçiş yapar: stream confirm'i yarışı kazandıysa
// (entry yok ya da artık pending değil) geç kalan hata yutuluyor.
// Loop kapandıysa view güncellenemez ama hata yine de Failures'a düşer;
// journal kaydı zaten durur, sonraki açılışta failed olarak geri gelir.
func (s *Session) markFailed(clientID string, cause error, connectivity bool) {
	var applied bool
	err := s.postWait(func() {
		entry, ok := s.buf.get(clientID)
		if !ok || entry.msg.State != models.StatePending {
			return
		}
		applied = true
		entry.msg.State = models.StateFailed
		entry.connectivityFailed = connectivity
		s.emit()
	})
	if err == nil && !applied {
		return
	}
	s.notifyFailure(SendFailure{ClientID: clientID, Err: cause, Retryable: true})
}

// notifyFailure, Failures kanalına non-blocking yazar; kimse dinlemiyorsa
// en eski bildirim düşürülür.
func (s *Session) notifyFailure(f SendFailure) {
	for {
		select {
		case s.failures <- f:
			return
		default:
			select {
			case <-s.failures:
			default:
			}
		}
	}
}

// onReconnect, gate offline→online geçişinde çağrılır.
// Connectivity yüzünden düşen TEK mesaj varsa sessizce otomatik retry edilir;
// birden fazlaysa sıralama/niyet belirsizdir, manuel retry'a bırakılır.
// Otomatik retry de manuel retry gibi yeni bir gönderimdir: failed entry
// yerinde pending'e çevrilmez, yeni ClientID'li taze bir entry açılır
// (fingerprint aynı kalır, geç gelen eski confirm yine eşleşir).
func (s *Session) onReconnect() {
	newID := uuid.New().String()
	var oldID string
	var fresh *pendingEntry
	var req models.SendRequest
	err := s.postWait(func() {
		failed := s.buf.connectivityFailedEntries()
		if len(failed) != 1 {
			return
		}
		old := failed[0]
		oldID = old.msg.ClientID

		msg := old.msg
		msg.ClientID = newID
		msg.State = models.StatePending
		msg.CreatedAt = time.Now()

		fresh = &pendingEntry{
			msg:         msg,
			fingerprint: old.fingerprint,
			submittedAt: time.Now(),
		}
		s.buf.remove(oldID)
		s.buf.insert(fresh)
		s.emit()
		req = models.SendRequest{
			Content:     msg.Content,
			Attachments: msg.Attachments,
			ReplyToID:   msg.ReplyToID,
		}
	})
	if err != nil || oldID == "" {
		return
	}
	s.journalRemove(oldID)
	s.journalAppend(fresh)
	log.Printf("[sender] auto-retrying %s as %s after reconnect", oldID, newID)
	go s.attempt(newID, req)
}

// enrichPreview, mesajdaki ilk URL için link önizlemesi çeker ve pending
// entry'ye işler. Tamamen best-effort: hata sessizce yutuluyor, önizleme
// gelmeden mesaj gider.
func (s *Session) enrichPreview(clientID, urlStr string) {
	pctx, pcancel := context.WithTimeout(s.ctx, 8*time.Second)
	defer pcancel()

	result, err := s.fetcher.Fetch(pctx, urlStr)
	if err != nil || result == nil {
		return
	}
	lp := &models.LinkPreview{
		URL:         result.URL,
		Title:       result.Title,
		Description: result.Description,
		ImageURL:    result.ImageURL,
	}
	_ = s.postWait(func() {
		if entry, ok := s.buf.get(clientID); ok {
			entry.msg.Preview = lp
			s.emit()
			return
		}
		// Mesaj bu arada confirm olmuş olabilir — preview yine işlenir.
		if s.rec.attachPreview(clientID, lp) {
			s.emit()
		}
	})
}
