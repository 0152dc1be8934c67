package engine

import (
	"context"
	"log"
	"sync"

	"github.com/akinalp/chatsync/store"
)

// DeliveryGate, ağ erişilebilirliğini gözler ve gönderim yoluna iki şekilde
// etki eder:
//
//   - Offline'dayken send denemeleri network'e hiç çıkmadan failed'a
//     kısa devre edilir (optimistic UI korunur, istek askıda kalmaz).
//   - Offline→online geçişinde kayıtlı session'lara haber verir; session,
//     TAM OLARAK BİR adet connectivity-failed mesajı varsa onu bir kez
//     otomatik yeniden gönderir. Birden fazlaysa sürpriz toplu resend
//     yapılmaz — hepsi manuel retry olarak kullanıcıya bırakılır.
//
// Engine başına tek instance'tır, tüm session'lar paylaşır.
type DeliveryGate struct {
	mu          sync.Mutex
	connected   bool
	onReconnect map[int64]func()
	nextID      int64
}

// NewDeliveryGate, verilen başlangıç durumuyla gate oluşturur.
// Gerçek durum Run başlayınca Connectivity stream'inin ilk değeriyle güncellenir.
func NewDeliveryGate(initial bool) *DeliveryGate {
	return &DeliveryGate{
		connected:   initial,
		onReconnect: make(map[int64]func()),
	}
}

// Run, connectivity stream'ini tüketir. ctx iptal edilene kadar bloklar —
// Engine.Start bir goroutine'de çağırır.
func (g *DeliveryGate) Run(ctx context.Context, source store.Connectivity) {
	for connected := range source.Observe(ctx) {
		g.setConnected(connected)
	}
	log.Printf("[gate] connectivity stream closed")
}

// Connected, mevcut bağlantı durumunu döner.
func (g *DeliveryGate) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// SubscribeReconnect, offline→online geçişinde çağrılacak callback kaydeder
// ve kaydı kaldıran fonksiyonu döner. Callback'ler kendi goroutine'lerinde
// çalışır — session loop'una post ederken gate kilidini tutmayız.
func (g *DeliveryGate) SubscribeReconnect(cb func()) (unsubscribe func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextID
	g.nextID++
	g.onReconnect[id] = cb

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.onReconnect, id)
	}
}

func (g *DeliveryGate) setConnected(connected bool) {
	g.mu.Lock()
	wasOffline := !g.connected
	g.connected = connected

	var cbs []func()
	if connected && wasOffline {
		cbs = make([]func(), 0, len(g.onReconnect))
		for _, cb := range g.onReconnect {
			cbs = append(cbs, cb)
		}
	}
	g.mu.Unlock()

	if len(cbs) > 0 {
		log.Printf("[gate] back online, notifying %d session(s)", len(cbs))
		for _, cb := range cbs {
			go cb()
		}
	}
}
