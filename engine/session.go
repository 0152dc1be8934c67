package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/akinalp/chatsync/config"
	"github.com/akinalp/chatsync/journal"
	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
	"github.com/akinalp/chatsync/pkg/cache"
	"github.com/akinalp/chatsync/pkg/ratelimit"
	"github.com/akinalp/chatsync/preview"
	"github.com/akinalp/chatsync/store"
)

// SessionConfig, bir Session açmak için gereken her şeyi taşır.
// Tüm bağımlılıklar dışarıdan verilir — global servis yok.
type SessionConfig struct {
	ConversationID string
	SelfID         string
	Config         *config.Config
	Store          store.MessageStore
	Typing         store.TypingChannel
	Gate           *DeliveryGate
	Limiter        *ratelimit.SendLimiter // nil olabilir — limit yok demektir
	Journal        journal.Journal        // nil olabilir — durability process ömrüyle sınırlı

	// OnClose, session kapandığında çağrılır (Engine'in kayıt temizliği için).
	OnClose func()
}

// SendFailure, başarısız bir gönderimin kullanıcıya gösterilecek sonucu.
// Retryable false ise (store kalıcı reddi) entry view'dan kaldırılmıştır —
// retry butonu değil, hata mesajı gösterilir.
type SendFailure struct {
	ClientID  string
	Err       error
	Retryable bool
}

// Session, açık bir konuşma view'ının senkronizasyon nesnesidir.
//
// Lifecycle tek parçadır: OpenSession subscribe eder ve run loop'u başlatır;
// Close her şeyi senkron söker. Subscribe/cancel iki ayrı boolean değil tek
// atomik nesnedir — "iptal edildi ama geç callback yine de geldi" race'i
// loop'un ctx'iyle birlikte ölmesiyle kapanır.
//
// Birden fazla Session aynı konuşmaya bağımsız bakabilir (liste önizlemesi +
// açık detay gibi); buffer paylaşmazlar, ikisi de aynı store'dan yakınsar.
type Session struct {
	conversationID string
	selfID         string
	cfg            *config.Config

	msgStore store.MessageStore
	gate     *DeliveryGate
	limiter  *ratelimit.SendLimiter
	jrnl     journal.Journal
	typing   *typingCoordinator
	fetcher  *preview.Fetcher

	ctx       context.Context
	cancel    context.CancelFunc
	gateUnsub func()

	commands chan func()
	loopDone chan struct{}

	updates  chan []models.Message
	failures chan SendFailure

	// dupGuard: fingerprint → in-flight işareti (duplicate-submit window).
	dupGuard *cache.TTLCache[string, struct{}]

	// ─── Aşağısı loop-owned state: SADECE run loop goroutine'i dokunur ───
	buf             *pendingBuffer
	rec             *reconciler
	initialPageDone bool
	oldestCursor    string
	hasMore         bool
	loadingOlder    bool
	reconciling     bool
	firstUnreadID   string
	firstUnreadSet  bool
	markedRead      map[string]struct{}
}

// OpenSession, konuşmaya abone olur, journal'daki bekleyenleri yükler ve
// run loop'u başlatır. Dönen Session kullanıma hazırdır; ilk merged view
// store'un snapshot sayfası işlenince Updates'ten gelir.
func OpenSession(parent context.Context, sc SessionConfig) (*Session, error) {
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		conversationID: sc.ConversationID,
		selfID:         sc.SelfID,
		cfg:            sc.Config,
		msgStore:       sc.Store,
		gate:           sc.Gate,
		limiter:        sc.Limiter,
		jrnl:           sc.Journal,
		fetcher:        preview.NewFetcher(),
		ctx:            ctx,
		cancel:         cancel,
		commands:       make(chan func(), 64),
		loopDone:       make(chan struct{}),
		updates:        make(chan []models.Message, 16),
		failures:       make(chan SendFailure, 16),
		dupGuard:       cache.New[string, struct{}](sc.Config.Send.DuplicateWindow, time.Minute),
		buf:            newPendingBuffer(),
		rec:            newReconciler(sc.Config.Reconcile.Window),
		hasMore:        true,
		markedRead:     make(map[string]struct{}),
	}

	// Stream aboneliği — lifecycle'ın çekirdeği. Başarısızsa session açılmaz.
	pages, err := sc.Store.Subscribe(ctx, sc.ConversationID, "")
	if err != nil {
		cancel()
		s.dupGuard.Close()
		return nil, fmt.Errorf("failed to subscribe conversation %s: %w", sc.ConversationID, err)
	}

	// Journal'daki bekleyenler: restart öncesinden kalan confirm edilmemiş
	// mesajlar. Failed olarak yüklenir — otomatik resend YOK, manuel retry var.
	if sc.Journal != nil {
		s.loadJournal()
	}

	s.typing = newTypingCoordinator(ctx, sc.Typing, sc.ConversationID, sc.SelfID, sc.Config.Typing.Debounce, sc.Config.Typing.TTL)

	s.gateUnsub = sc.Gate.SubscribeReconnect(s.onReconnect)

	go s.run(pages, sc.OnClose)

	// Unread sayacı konuşma açıldığı AN sıfırlanır — mesaj bazlı
	// read-receipt yayılımından bağımsız, onu beklemez.
	go func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		if err := sc.Store.ClearUnread(cctx, sc.ConversationID, sc.SelfID); err != nil {
			log.Printf("[session] clear unread failed for %s: %v", sc.ConversationID, err)
		}
	}()

	return s, nil
}

// run, session'ın serialized event loop'udur.
// Pending buffer ve reconciler'a yalnızca buradan dokunulur.
func (s *Session) run(pages <-chan models.MessagePage, onClose func()) {
	defer func() {
		close(s.loopDone)
		close(s.updates)
		if onClose != nil {
			onClose()
		}
	}()

	// Safety-net: stream'in kaçırdığı bir tutarsızlığı sınırlı frekansta
	// toparlar. Birincil güncelleme yolu DEĞİLDİR.
	safetyNet := time.NewTicker(s.cfg.Reconcile.SafetyNetInterval)
	defer safetyNet.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case page, ok := <-pages:
			if !ok {
				// Store stream'i kapattı (bağlantı koptu). Session açık
				// kalır: pending buffer korunur, command'lar işler.
				pages = nil
				log.Printf("[session] stream closed for %s", s.conversationID)
				continue
			}
			s.handlePage(page)

		case cmd := <-s.commands:
			cmd()

		case <-safetyNet.C:
			s.safetyReconcile()
		}
	}
}

// safetyReconcile, store'daki güncel tail sayfasını çekip reconcile eder.
// Stream fanout'u dolu buffer yüzünden sayfa düşürmüş olabilir; periyodik
// tur o açığı kapatır. Fetch loop'u bloklamaz, kendi goroutine'inde koşar;
// bir tur bitmeden yenisi başlamaz.
func (s *Session) safetyReconcile() {
	if s.reconciling {
		return
	}
	s.reconciling = true
	go func() {
		fctx, fcancel := context.WithTimeout(s.ctx, s.cfg.Send.Timeout)
		defer fcancel()
		page, err := s.msgStore.FetchOlder(fctx, s.conversationID, "", s.cfg.Store.PageSize)
		_ = s.postWait(func() {
			s.reconciling = false
			if err != nil || page == nil {
				return
			}
			added, retired := s.rec.applyPage(*page, s.buf, time.Now())
			for _, clientID := range retired {
				s.journalRemove(clientID)
			}
			s.markBatchRead(added)
			s.emit()
		})
	}()
}

// handlePage, stream'den gelen sayfayı reconcile eder (loop içinde).
func (s *Session) handlePage(page models.MessagePage) {
	added, retired := s.rec.applyPage(page, s.buf, time.Now())

	// Emekli olan pending'ler journal'dan da düşer.
	for _, clientID := range retired {
		s.journalRemove(clientID)
	}

	// İlk sayfa pagination penceresinin tabanını belirler.
	if !s.initialPageDone {
		s.initialPageDone = true
		s.hasMore = page.HasMore
		if page.Cursor != "" {
			s.oldestCursor = page.Cursor
		}
	}

	// First-unread sınırı view açılışında BİR KEZ hesaplanır: kendimden
	// gelmeyen, henüz okunmamış en eski mesaj. Scroll konumlandırması için;
	// sonraki açılışta yeniden hesaplanır, sürekli güncellenmez.
	if !s.firstUnreadSet {
		s.firstUnreadSet = true
		s.firstUnreadID = firstUnread(added, s.selfID)
	}

	s.markBatchRead(added)
	s.emit()
}

// firstUnread, batch içindeki kendinden-olmayan okunmamış en eski mesajı bulur.
func firstUnread(batch []models.Message, selfID string) string {
	var bestID string
	var bestTS time.Time
	for _, msg := range batch {
		if msg.SenderID == selfID || msg.State == models.StateRead {
			continue
		}
		ts := msg.OrderKey()
		if bestID == "" || ts.Before(bestTS) {
			bestID = msg.ID
			bestTS = ts
		}
	}
	return bestID
}

// markBatchRead, fetch edilen batch'teki kendinden-olmayan mesajları
// okundu işaretler (loop içinde toplar, network'ü goroutine'e bırakır).
func (s *Session) markBatchRead(batch []models.Message) {
	var ids []string
	for _, msg := range batch {
		if msg.SenderID == s.selfID || msg.State == models.StateRead {
			continue
		}
		if _, done := s.markedRead[msg.ID]; done {
			continue
		}
		s.markedRead[msg.ID] = struct{}{}
		ids = append(ids, msg.ID)
	}
	if len(ids) == 0 {
		return
	}

	go func() {
		mctx, mcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer mcancel()
		if err := s.msgStore.MarkRead(mctx, s.conversationID, s.selfID, ids); err != nil {
			log.Printf("[session] mark read failed for %s: %v", s.conversationID, err)
		}
	}()
}

// emit, merged view değiştiyse Updates kanalına yayınlar (loop içinde).
// Kanal doluysa en eski view düşürülür — UI her zaman en güncel hali alır.
func (s *Session) emit() {
	view, changed := s.rec.emitIfChanged(s.buf)
	if !changed {
		return
	}
	for {
		select {
		case s.updates <- view:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}

// ─── Command altyapısı ───

// post, fn'i run loop'una gönderir. Session kapalıysa ErrClosed.
func (s *Session) post(fn func()) error {
	select {
	case <-s.loopDone:
		return pkg.ErrClosed
	case s.commands <- fn:
		return nil
	}
}

// postWait, fn'i loop'ta çalıştırır ve bitmesini bekler.
func (s *Session) postWait(fn func()) error {
	done := make(chan struct{})
	if err := s.post(func() {
		fn()
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-s.loopDone:
		return pkg.ErrClosed
	}
}

// ─── Public API ───

// Updates, merged view emisyonlarının kanalıdır. Session kapanınca kapanır.
// Her emisyon tam listedir (diff değil) — UI doğrudan render eder.
func (s *Session) Updates() <-chan []models.Message {
	return s.updates
}

// Failures, send hatalarının kanalıdır. Kapanmaz; in-flight bir send
// session kapandıktan sonra bile sonucunu buraya düşürebilir.
func (s *Session) Failures() <-chan SendFailure {
	return s.failures
}

// FirstUnreadID, açılışta hesaplanan ilk okunmamış mesajın ID'sini döner
// (scroll-to-unread için). Okunmamış yoksa boş string.
func (s *Session) FirstUnreadID() (string, error) {
	var id string
	err := s.postWait(func() { id = s.firstUnreadID })
	return id, err
}

// HasMore, daha eski sayfa olup olmadığını döner. Store bir kez "yok"
// dediyse session boyunca false kalır — "load more" affordance'ı kalıcı gizlenir.
func (s *Session) HasMore() (bool, error) {
	var more bool
	err := s.postWait(func() { more = s.hasMore })
	return more, err
}

// LoadOlder, pencereyi bir sayfa geriye genişletir.
//
// Re-entrant DEĞİLDİR: bir çağrı sürerken ikincisi ErrBusy alır
// (kuyruklanmaz). Pencere tükendiyse sessiz no-op. Prepend tail'i bozmaz —
// canlı mesajlar aynı anda akmaya devam eder, sıralamayı reconciler kurar.
func (s *Session) LoadOlder(ctx context.Context) error {
	var (
		cursor    string
		busy      bool
		exhausted bool
	)
	if err := s.postWait(func() {
		switch {
		case s.loadingOlder:
			busy = true
		case s.initialPageDone && !s.hasMore:
			exhausted = true
		default:
			s.loadingOlder = true
			cursor = s.oldestCursor
		}
	}); err != nil {
		return err
	}
	if busy {
		return pkg.ErrBusy
	}
	if exhausted {
		return nil
	}

	// Fetch, hem çağıranın ctx'ine hem session lifecycle'ına bağlı:
	// view kapanırsa in-flight pagination da iptal edilir.
	fctx, fcancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, fcancel)
	page, err := s.msgStore.FetchOlder(fctx, s.conversationID, cursor, s.cfg.Store.PageSize)
	stop()
	fcancel()

	perr := s.postWait(func() {
		s.loadingOlder = false
		if err != nil {
			return
		}
		added, retired := s.rec.applyPage(*page, s.buf, time.Now())
		for _, clientID := range retired {
			s.journalRemove(clientID)
		}
		if page.Cursor != "" {
			s.oldestCursor = page.Cursor
		}
		s.hasMore = page.HasMore
		s.markBatchRead(added)
		s.emit()
	})
	if perr != nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("failed to load older messages: %w", err)
	}
	return nil
}

// Keystroke, kullanıcı mesaj kutusuna yazdıkça çağrılır (typing sinyali).
func (s *Session) Keystroke() {
	s.typing.Keystroke()
}

// ActiveTypers, şu an yazan uzak katılımcıları döner.
func (s *Session) ActiveTypers() []string {
	return s.typing.ActiveTypers()
}

// SetReaction, bir mesaja emoji tepkisi toggle'lar.
// Sonuç stream'den reconcile olarak döner — optimistic reaction yok.
func (s *Session) SetReaction(ctx context.Context, messageID, emoji string) error {
	return s.msgStore.SetReaction(ctx, s.conversationID, messageID, s.selfID, emoji)
}

// DeleteMessage, bir mesajı store'dan siler. Tombstone stream'den gelince
// merged view'dan düşer; ayrıca lokalde hemen düşürülür (optimistic).
func (s *Session) DeleteMessage(ctx context.Context, messageID string) error {
	if err := s.msgStore.Delete(ctx, s.conversationID, messageID); err != nil {
		return err
	}
	return s.postWait(func() {
		s.rec.dropConfirmed(messageID)
		s.emit()
	})
}

// Close, session'ı senkron kapatır: typing "yazmıyor" yayınlanır, abonelik
// ve in-flight pagination iptal edilir, loop'un çıkması BEKLENİR.
//
// In-flight send'ler iptal EDİLMEZ — başlamış gönderim sonucuna ulaşır;
// sonucu journal'a işlenir ve kullanıcı geri döndüğünde doğru reconcile olur.
// Birden fazla Close çağrısı güvenlidir.
func (s *Session) Close() error {
	select {
	case <-s.loopDone:
		return nil // zaten kapalı
	default:
	}

	s.gateUnsub()
	s.typing.stop()
	s.cancel()
	<-s.loopDone
	s.dupGuard.Close()
	return nil
}

// ─── Journal yardımcıları ───
// Journal best-effort'tur: hataları loglanır, send yolunu asla kesmez.

func (s *Session) loadJournal() {
	jctx, jcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer jcancel()

	entries, err := s.jrnl.Load(jctx, s.conversationID)
	if err != nil {
		log.Printf("[session] journal load failed for %s: %v", s.conversationID, err)
		return
	}
	for _, e := range entries {
		msg := e.Message
		// Önceki process'ten kalan her şey failed'dır: gönderilip
		// gönderilmediğini bilmiyoruz, otomatik resend sürprizi yerine
		// kullanıcıya manuel retry bırakılır. Gerçekten gitmişse stream
		// confirm'i pending'i zaten emekli eder.
		msg.State = models.StateFailed
		s.buf.insert(&pendingEntry{
			msg:         msg,
			fingerprint: e.Fingerprint,
			submittedAt: e.SubmittedAt,
		})
	}
}

func (s *Session) journalAppend(entry *pendingEntry) {
	if s.jrnl == nil {
		return
	}
	go func() {
		jctx, jcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer jcancel()
		if err := s.jrnl.Append(jctx, journal.Entry{
			Message:     entry.msg,
			Fingerprint: entry.fingerprint,
			SubmittedAt: entry.submittedAt,
		}); err != nil {
			log.Printf("[session] journal append failed: %v", err)
		}
	}()
}

func (s *Session) journalRemove(clientID string) {
	if s.jrnl == nil {
		return
	}
	go func() {
		jctx, jcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer jcancel()
		if err := s.jrnl.Remove(jctx, clientID); err != nil {
			log.Printf("[session] journal remove failed: %v", err)
		}
	}()
}
