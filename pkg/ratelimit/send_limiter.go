// Package ratelimit — Gönderim yolu için spam koruması.
//
// SendLimiter, konuşma başına window + cooldown tabanlı rate limiting yapar.
//
// Tasarım:
//   - Window içinde maxSends gönderim → izin verilir.
//   - Limit aşıldığında cooldown başlar → cooldown boyunca tüm gönderimler
//     reddedilir (ErrRateLimited sınıfı, pending entry oluşturulmaz).
//   - Cooldown bitince window sıfırlanır.
//
// Window kısa (5sn) ama ceza süresi uzun (15sn) — hızlı flood'u durdurur,
// normal yazışmaya dokunmaz.
package ratelimit

import (
	"sync"
	"time"
)

// bucket, bir konuşma için gönderim sayacı ve cooldown bilgisi tutar.
type bucket struct {
	count         int
	windowStart   time.Time
	cooldownUntil time.Time // zero value = cooldown yok
}

// SendLimiter, konuşma bazlı gönderim hız limiti.
//
//	limiter := ratelimit.NewSendLimiter(10, 5*time.Second, 15*time.Second)
//	if !limiter.Allow(conversationID) { return pkg.ErrRateLimited }
type SendLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	maxSends    int
	window      time.Duration
	cooldown    time.Duration
	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// NewSendLimiter, yeni limiter oluşturur ve arka plan temizleme
// goroutine'ini başlatır.
//
// maxSends <= 0 verilirse limiter her zaman izin verir (devre dışı).
func NewSendLimiter(maxSends int, window, cooldown time.Duration) *SendLimiter {
	rl := &SendLimiter{
		buckets:     make(map[string]*bucket),
		maxSends:    maxSends,
		window:      window,
		cooldown:    cooldown,
		stopCleanup: make(chan struct{}),
	}

	// Bucket'lar kısa ömürlüdür ama çok konuşmada bellek birikmesin.
	go rl.cleanupLoop()

	return rl
}

// Allow, verilen konuşmaya şu an gönderim yapılıp yapılamayacağını döner.
func (rl *SendLimiter) Allow(conversationID string) bool {
	if rl.maxSends <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[conversationID]
	if !ok {
		rl.buckets[conversationID] = &bucket{count: 1, windowStart: now}
		return true
	}

	// Cooldown modunda mı?
	if now.Before(b.cooldownUntil) {
		return false
	}

	// Window süresi dolduysa sayacı sıfırla.
	if now.Sub(b.windowStart) > rl.window {
		b.count = 1
		b.windowStart = now
		b.cooldownUntil = time.Time{}
		return true
	}

	b.count++
	if b.count > rl.maxSends {
		b.cooldownUntil = now.Add(rl.cooldown)
		return false
	}
	return true
}

// Close, temizleme goroutine'ini durdurur.
func (rl *SendLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.stopCleanup) })
}

// cleanupLoop, süresi geçmiş bucket'ları periyodik olarak siler.
func (rl *SendLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictStale()
		case <-rl.stopCleanup:
			return
		}
	}
}

// evictStale, window'u da cooldown'u da geçmiş bucket'ları temizler.
func (rl *SendLimiter) evictStale() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for id, b := range rl.buckets {
		if now.Sub(b.windowStart) > rl.window && now.After(b.cooldownUntil) {
			delete(rl.buckets, id)
		}
	}
}
