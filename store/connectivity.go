package store

import (
	"context"
	"sync"
)

// ManualConnectivity, host uygulamanın (veya testlerin) elle beslediği
// bir Connectivity implementasyonudur.
//
// Platform bağımlı reachability API'leri (NWPathMonitor, netlink vb.)
// engine'in işi değildir — host uygulama kendi kaynağını dinler ve
// SetConnected ile buraya aktarır.
type ManualConnectivity struct {
	mu        sync.Mutex
	connected bool
	subs      map[chan bool]struct{}
}

// NewManualConnectivity, verilen başlangıç durumuyla oluşturur.
func NewManualConnectivity(connected bool) *ManualConnectivity {
	return &ManualConnectivity{
		connected: connected,
		subs:      make(map[chan bool]struct{}),
	}
}

// SetConnected, bağlantı durumunu değiştirir ve tüm abonelere yayınlar.
// Aynı değerin tekrarı yayınlanmaz — aboneler sadece geçiş görür.
func (c *ManualConnectivity) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected == connected {
		return
	}
	c.connected = connected
	for ch := range c.subs {
		select {
		case ch <- connected:
		default:
		}
	}
}

// Connected, mevcut durumu döner.
func (c *ManualConnectivity) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Observe, mevcut durumu ilk değer olarak yayınlayan bir stream döner.
func (c *ManualConnectivity) Observe(ctx context.Context) <-chan bool {
	c.mu.Lock()
	ch := make(chan bool, 8)
	ch <- c.connected
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.subs, ch)
		c.mu.Unlock()
		close(ch)
	}()

	return ch
}
