// Package chatsync, eventually-consistent bir mesaj store'u üzerinde
// gerçek zamanlı konuşma senkronizasyonu sağlar: optimistic gönderim,
// otomatik reconcile, connectivity-aware retry, pagination ve typing.
//
// Kullanım:
//
//	eng, err := chatsync.New(chatsync.Options{Store: myStore})
//	eng.Start(ctx)
//	sess, err := eng.OpenConversation(ctx, conversationID, selfID)
//	for view := range sess.Updates() { render(view) }
package chatsync

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/akinalp/chatsync/config"
	"github.com/akinalp/chatsync/engine"
	"github.com/akinalp/chatsync/journal"
	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
	"github.com/akinalp/chatsync/pkg/ratelimit"
	"github.com/akinalp/chatsync/store"
)

// Options, Engine'in dışa bağımlılıklarını taşır. Sıfır değeri çalışır:
// in-memory store, in-process typing, hep-bağlı connectivity, journal yok.
type Options struct {
	Config       *config.Config
	Store        store.MessageStore
	Typing       store.TypingChannel
	Connectivity store.Connectivity
	Journal      journal.Journal
}

// Engine, uygulama başına tek kurulan senkronizasyon çekirdeğidir.
// Konuşma başına Session açar; gate ve rate limiter tüm session'larca paylaşılır.
type Engine struct {
	cfg      *config.Config
	msgStore store.MessageStore
	typing   store.TypingChannel
	conn     store.Connectivity
	jrnl     journal.Journal

	gate    *engine.DeliveryGate
	limiter *ratelimit.SendLimiter

	mu       sync.Mutex
	sessions map[*engine.Session]struct{}
	started  bool
	stopped  bool
	cancel   context.CancelFunc
}

// New, Engine'i kurar ama başlatmaz. Verilmeyen bağımlılıklar in-memory
// default'larla doldurulur.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	msgStore := opts.Store
	if msgStore == nil {
		msgStore = store.NewMemoryStore()
	}
	typing := opts.Typing
	if typing == nil {
		typing = store.NewMemoryTyping()
	}
	conn := opts.Connectivity
	if conn == nil {
		conn = store.NewManualConnectivity(true)
	}

	// Gate başlangıcı karamsardır: kaynağın ilk gözlemi Start'ta tüketilene
	// kadar online varsayılmaz — aradaki pencerede send offline kısa devresine
	// takılır ve kaynak online derse otomatik retry ile gider. Kaynak durumunu
	// senkron sorgulayabiliyorsak (ManualConnectivity) gerçek değer kullanılır.
	initial := false
	if mc, ok := conn.(*store.ManualConnectivity); ok {
		initial = mc.Connected()
	}

	return &Engine{
		cfg:      cfg,
		msgStore: msgStore,
		typing:   typing,
		conn:     conn,
		jrnl:     opts.Journal,
		gate:     engine.NewDeliveryGate(initial),
		limiter:  ratelimit.NewSendLimiter(cfg.Send.RateLimit, cfg.Send.RateWindow, cfg.Send.RateCooldown),
		sessions: make(map[*engine.Session]struct{}),
	}, nil
}

// Start, connectivity gözlemini başlatır. İkinci çağrı no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return pkg.ErrClosed
	}
	if e.started {
		return nil
	}
	e.started = true

	gctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	go e.gate.Run(gctx, e.conn)

	log.Println("[engine] started")
	return nil
}

// OpenConversation, konuşma için yeni bir Session açar.
//
// Aynı konuşmaya birden fazla Session açılabilir (liste önizlemesi + açık
// detay view gibi); her biri kendi buffer'ını tutar, hepsi aynı store'a
// yakınsar. Engine Stop edilmişse ErrClosed.
func (e *Engine) OpenConversation(ctx context.Context, conversationID, selfID string) (*engine.Session, error) {
	if conversationID == "" || selfID == "" {
		return nil, fmt.Errorf("%w: conversation id and self id are required", pkg.ErrValidation)
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil, pkg.ErrClosed
	}
	e.mu.Unlock()

	var sess *engine.Session
	sess, err := engine.OpenSession(ctx, engine.SessionConfig{
		ConversationID: conversationID,
		SelfID:         selfID,
		Config:         e.cfg,
		Store:          e.msgStore,
		Typing:         e.typing,
		Gate:           e.gate,
		Limiter:        e.limiter,
		Journal:        e.jrnl,
		OnClose: func() {
			e.mu.Lock()
			delete(e.sessions, sess)
			e.mu.Unlock()
		},
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		sess.Close()
		return nil, pkg.ErrClosed
	}
	e.sessions[sess] = struct{}{}
	e.mu.Unlock()

	return sess, nil
}

// directory, store'un opsiyonel ConversationDirectory yüzeyini keşfeder.
func (e *Engine) directory() (store.ConversationDirectory, error) {
	dir, ok := e.msgStore.(store.ConversationDirectory)
	if !ok {
		return nil, fmt.Errorf("%w: conversation directory", pkg.ErrUnsupported)
	}
	return dir, nil
}

// Conversations, katılımcının konuşma listesini döner (pinned üstte,
// sonra son aktiviteye göre). Store directory sağlamıyorsa ErrUnsupported.
func (e *Engine) Conversations(ctx context.Context, participantID string) ([]models.Conversation, error) {
	dir, err := e.directory()
	if err != nil {
		return nil, err
	}
	return dir.Conversations(ctx, participantID)
}

// Conversation, tek bir konuşmanın metadata'sını döner.
func (e *Engine) Conversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	dir, err := e.directory()
	if err != nil {
		return nil, err
	}
	return dir.Conversation(ctx, conversationID)
}

// SetMuted, konuşmayı katılımcı için sessize alır veya açar.
func (e *Engine) SetMuted(ctx context.Context, conversationID, participantID string, muted bool) error {
	dir, err := e.directory()
	if err != nil {
		return err
	}
	return dir.SetMuted(ctx, conversationID, participantID, muted)
}

// SetArchived, konuşmayı katılımcı için arşivler veya çıkarır.
func (e *Engine) SetArchived(ctx context.Context, conversationID, participantID string, archived bool) error {
	dir, err := e.directory()
	if err != nil {
		return err
	}
	return dir.SetArchived(ctx, conversationID, participantID, archived)
}

// SetPinned, konuşmayı katılımcının listesinde sabitler veya çözer.
func (e *Engine) SetPinned(ctx context.Context, conversationID, participantID string, pinned bool) error {
	dir, err := e.directory()
	if err != nil {
		return err
	}
	return dir.SetPinned(ctx, conversationID, participantID, pinned)
}

// Stop, açık tüm session'ları kapatır ve Engine'i kullanım dışı bırakır.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	open := make([]*engine.Session, 0, len(e.sessions))
	for sess := range e.sessions {
		open = append(open, sess)
	}
	cancel := e.cancel
	e.mu.Unlock()

	for _, sess := range open {
		if err := sess.Close(); err != nil {
			log.Printf("[engine] session close failed: %v", err)
		}
	}
	if cancel != nil {
		cancel()
	}
	e.limiter.Close()

	log.Println("[engine] stopped")
	return nil
}
