package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/chatsync/store"
)

// waitFor, koşul sağlanana kadar kısa aralıklarla bekler (async testler için).
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, msg)
}

func TestGateTracksConnectivity(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := store.NewManualConnectivity(true)
	gate := NewDeliveryGate(true)
	go gate.Run(ctx, conn)

	assert.True(t, gate.Connected())

	conn.SetConnected(false)
	waitFor(t, time.Second, func() bool { return !gate.Connected() }, "gate offline'a geçmedi")

	conn.SetConnected(true)
	waitFor(t, time.Second, func() bool { return gate.Connected() }, "gate online'a dönmedi")
}

func TestGateReconnectCallbackFiresOnTransitionOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := store.NewManualConnectivity(false)
	gate := NewDeliveryGate(false)
	go gate.Run(ctx, conn)

	fired := make(chan struct{}, 4)
	unsub := gate.SubscribeReconnect(func() { fired <- struct{}{} })
	defer unsub()

	// online→online tekrarı geçiş değildir.
	conn.SetConnected(true)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("reconnect callback tetiklenmedi")
	}

	conn.SetConnected(true)
	select {
	case <-fired:
		t.Fatal("geçiş olmadan callback tetiklendi")
	case <-time.After(50 * time.Millisecond):
	}

	// offline→online yeni bir geçiştir.
	conn.SetConnected(false)
	conn.SetConnected(true)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("ikinci reconnect callback tetiklenmedi")
	}
}

func TestGateUnsubscribe(t *testing.T) {
	gate := NewDeliveryGate(false)

	fired := make(chan struct{}, 1)
	unsub := gate.SubscribeReconnect(func() { fired <- struct{}{} })
	unsub()

	gate.setConnected(true)
	select {
	case <-fired:
		t.Fatal("unsubscribe sonrası callback tetiklendi")
	case <-time.After(50 * time.Millisecond):
	}
}
