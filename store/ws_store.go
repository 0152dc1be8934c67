package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
)

// WebSocket bağlantı sabitleri
const (
	// writeWait: Bir mesajı yazmak için maksimum bekleme süresi.
	writeWait = 10 * time.Second

	// pongWait: Server'dan yaşam belirtisi için beklenen maksimum süre.
	// Heartbeat 30sn'de bir gider; 3 kaçırma = 90sn.
	pongWait = 90 * time.Second

	// heartbeatInterval: Client'ın "hâlâ bağlıyım" sinyali gönderme sıklığı.
	heartbeatInterval = 30 * time.Second

	// maxMessageSize: Server'dan gelebilecek maksimum frame boyutu (byte).
	// Sayfalar batch taşır — mesaj başına 4KB'lık server limitinin üstünde pay bırakılır.
	maxMessageSize = 1 << 20
)

// WSStore, gorilla/websocket üzerinde çalışan MessageStore implementasyonudur.
//
// Tek bir WS bağlantısı üzerinden iki akış taşınır:
//   - RPC: send / fetch_older / mark_read... istekleri nonce ile gönderilir,
//     server aynı nonce'lu "result" event'iyle yanıtlar.
//   - Stream: subscribe edilen konuşmaların "message_page" event'leri.
//
// Goroutine yapısı klasik ws client pattern'idir: tek readPump
// goroutine'i tüm inbound event'leri dağıtır; yazma writeMu ile serialize
// edilir (gorilla conn'a eşzamanlı yazma yasak).
type WSStore struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	nonce atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan wsResult                         // nonce → yanıt bekleyen RPC
	subs    map[string]map[chan models.MessagePage]struct{} // conversationID → abone seti
	closed  bool
	done    chan struct{}
}

// DialWS, verilen URL'e bağlanır ve readPump'ı başlatır.
// header, authentication taşımak içindir (ör. Authorization bearer token) —
// auth'un kendisi engine'in kapsamı dışında, host uygulama sağlar.
func DialWS(ctx context.Context, url string, header http.Header) (*WSStore, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial message store: %w", err)
	}

	s := &WSStore{
		conn:    conn,
		pending: make(map[int64]chan wsResult),
		subs:    make(map[string]map[chan models.MessagePage]struct{}),
		done:    make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go s.readPump()
	go s.heartbeatLoop()

	return s, nil
}

// readPump, server'dan gelen tüm event'leri okur ve dağıtır.
// Bağlantı kopunca tüm bekleyen RPC'ler ve stream'ler kapatılır —
// bekleyen Send çağrıları transient hata alır, engine retry affordance gösterir.
func (s *WSStore) readPump() {
	defer s.teardown()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[wsstore] unexpected close: %v", err)
			}
			return
		}

		var event wsEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			log.Printf("[wsstore] invalid event: %v", err)
			continue
		}

		switch event.Op {
		case opHeartbeatAck:
			if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
				return
			}

		case opResult:
			s.dispatchResult(event)

		case opMessagePage:
			s.dispatchPage(event)

		default:
			log.Printf("[wsstore] unknown op: %s", event.Op)
		}
	}
}

func (s *WSStore) dispatchResult(event wsEvent) {
	var res wsResult
	if err := json.Unmarshal(event.Data, &res); err != nil {
		log.Printf("[wsstore] invalid result payload: %v", err)
		return
	}
	// Zarf nonce'u payload'dakini ezer — ikisi de aynı olmalı ama
	// server sadece zarfa yazıyorsa payload'daki sıfırdır.
	if event.Nonce != 0 {
		res.Nonce = event.Nonce
	}

	s.mu.Lock()
	ch, ok := s.pending[res.Nonce]
	if ok {
		delete(s.pending, res.Nonce)
	}
	s.mu.Unlock()

	if !ok {
		// Geç kalmış yanıt — isteğin ctx'i çoktan iptal edilmiş. Düşür.
		return
	}
	ch <- res
}

func (s *WSStore) dispatchPage(event wsEvent) {
	var pe wsPageEvent
	if err := json.Unmarshal(event.Data, &pe); err != nil {
		log.Printf("[wsstore] invalid page payload: %v", err)
		return
	}

	// Aynı konuşmaya birden fazla session bakabilir — sayfa hepsine gider.
	// Yazma non-blocking olduğu için lock altında dağıtmak güvenlidir ve
	// dropSub'ın channel kapatmasıyla yarışmaz. Abonelik kapatılmışsa
	// (set boş) sayfa düşer: server henüz öğrenmemiştir.
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs[pe.ConversationID] {
		select {
		case ch <- pe.Page:
		default:
			// Tüketici yavaş — sayfa düşer, safety-net reconcile toparlar.
			log.Printf("[wsstore] dropping page for slow subscriber: %s", pe.ConversationID)
		}
	}
}

// heartbeatLoop, periyodik heartbeat gönderir.
func (s *WSStore) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.writeEvent(wsEvent{Op: opHeartbeat}); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// teardown, bağlantı koptuğunda tüm bekleyenleri serbest bırakır.
func (s *WSStore) teardown() {
	_ = s.conn.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)

	for nonce, ch := range s.pending {
		delete(s.pending, nonce)
		close(ch) // Bekleyen RPC'ler "connection lost" hatası üretir
	}
	for id, set := range s.subs {
		delete(s.subs, id)
		for ch := range set {
			close(ch)
		}
	}
}

// Close, bağlantıyı kapatır. Bekleyen RPC'ler transient hata alır.
func (s *WSStore) Close() error {
	err := s.conn.Close()
	s.teardown()
	return err
}

// ─── MessageStore implementasyonu ───

func (s *WSStore) Subscribe(ctx context.Context, conversationID, sinceCursor string) (<-chan models.MessagePage, error) {
	ch := make(chan models.MessagePage, 64)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, pkg.ErrClosed
	}
	set, ok := s.subs[conversationID]
	if !ok {
		set = make(map[chan models.MessagePage]struct{})
		s.subs[conversationID] = set
	}
	set[ch] = struct{}{}
	s.mu.Unlock()

	// Server'a abonelik isteğini RPC olarak gönder — ilk snapshot sayfası
	// stream'den gelir. Aynı konuşmanın ikinci abonesi için de gönderilir:
	// snapshot tekrar düşer, reconciliation idempotent olduğu için zararsız.
	if _, err := s.rpc(ctx, opSubscribe, wsSubscribeReq{ConversationID: conversationID, SinceCursor: sinceCursor}); err != nil {
		s.dropSub(conversationID, ch)
		return nil, err
	}

	// ctx iptalinde aboneliği kaldır. Unsubscribe best-effort'tur ve yalnızca
	// konuşmanın SON abonesi düşünce gönderilir: bağlantı kopmuşsa server
	// zaten aboneliği düşürmüştür.
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
			return // teardown stream'i kapattı
		}

		if s.dropSub(conversationID, ch) {
			if err := s.writeEvent(wsEvent{Op: opUnsubscribe, Data: mustJSON(wsSubscribeReq{ConversationID: conversationID})}); err != nil {
				log.Printf("[wsstore] unsubscribe failed: %v", err)
			}
		}
	}()

	return ch, nil
}

// dropSub, aboneyi setten çıkarır ve channel'ını kapatır.
// Konuşmanın son abonesi düştüyse true döner.
func (s *WSStore) dropSub(conversationID string, ch chan models.MessagePage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.subs[conversationID]
	if !ok {
		return false
	}
	if _, mine := set[ch]; !mine {
		return false
	}
	delete(set, ch)
	close(ch)
	if len(set) > 0 {
		return false
	}
	delete(s.subs, conversationID)
	return true
}

func (s *WSStore) Send(ctx context.Context, conversationID, clientMessageID, senderID string, req models.SendRequest) (string, error) {
	res, err := s.rpc(ctx, opSend, wsSendReq{
		ConversationID:  conversationID,
		ClientMessageID: clientMessageID,
		SenderID:        senderID,
		Request:         req,
	})
	if err != nil {
		return "", err
	}

	var out wsSendResult
	if err := json.Unmarshal(res, &out); err != nil {
		return "", fmt.Errorf("invalid send result: %w", err)
	}
	return out.MessageID, nil
}

func (s *WSStore) FetchOlder(ctx context.Context, conversationID, beforeCursor string, limit int) (*models.MessagePage, error) {
	res, err := s.rpc(ctx, opFetchOlder, wsFetchOlderReq{
		ConversationID: conversationID,
		BeforeCursor:   beforeCursor,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}

	var page models.MessagePage
	if err := json.Unmarshal(res, &page); err != nil {
		return nil, fmt.Errorf("invalid page result: %w", err)
	}
	return &page, nil
}

func (s *WSStore) MarkRead(ctx context.Context, conversationID, participantID string, messageIDs []string) error {
	_, err := s.rpc(ctx, opMarkRead, wsMarkReadReq{
		ConversationID: conversationID,
		ParticipantID:  participantID,
		MessageIDs:     messageIDs,
	})
	return err
}

func (s *WSStore) ClearUnread(ctx context.Context, conversationID, participantID string) error {
	_, err := s.rpc(ctx, opClearUnread, wsClearUnreadReq{
		ConversationID: conversationID,
		ParticipantID:  participantID,
	})
	return err
}

func (s *WSStore) SetReaction(ctx context.Context, conversationID, messageID, participantID, emoji string) error {
	_, err := s.rpc(ctx, opSetReaction, wsSetReactionReq{
		ConversationID: conversationID,
		MessageID:      messageID,
		ParticipantID:  participantID,
		Emoji:          emoji,
	})
	return err
}

func (s *WSStore) Delete(ctx context.Context, conversationID, messageID string) error {
	_, err := s.rpc(ctx, opDelete, wsDeleteReq{
		ConversationID: conversationID,
		MessageID:      messageID,
	})
	return err
}

// ─── RPC altyapısı ───

// rpc, bir isteği nonce ile gönderir ve eşleşen result'ı bekler.
func (s *WSStore) rpc(ctx context.Context, op string, payload any) (json.RawMessage, error) {
	nonce := s.nonce.Add(1)
	ch := make(chan wsResult, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, pkg.ErrClosed
	}
	s.pending[nonce] = ch
	s.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		s.dropPending(nonce)
		return nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	if err := s.writeEvent(wsEvent{Op: op, Data: data, Nonce: nonce}); err != nil {
		s.dropPending(nonce)
		return nil, fmt.Errorf("failed to write %s request: %w", op, err)
	}

	select {
	case res, ok := <-ch:
		if !ok {
			// teardown kapattı — bağlantı gitti.
			return nil, fmt.Errorf("connection lost awaiting %s result", op)
		}
		if res.Error != "" {
			if res.ErrorCode == "rejected" {
				return nil, fmt.Errorf("%w: %s", pkg.ErrRejected, res.Error)
			}
			return nil, fmt.Errorf("%s failed: %s", op, res.Error)
		}
		return res.Data, nil

	case <-ctx.Done():
		s.dropPending(nonce)
		return nil, ctx.Err()
	}
}

func (s *WSStore) dropPending(nonce int64) {
	s.mu.Lock()
	delete(s.pending, nonce)
	s.mu.Unlock()
}

// writeEvent, event'i JSON'layıp WS'e yazar (writeMu ile korunur).
func (s *WSStore) writeEvent(event wsEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err) // sadece kendi tiplerimiz marshal edilir, hata imkansız
	}
	return data
}
