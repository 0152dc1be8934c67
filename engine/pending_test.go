package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/chatsync/models"
)

func newEntry(clientID, fingerprint string, submittedAt time.Time) *pendingEntry {
	return &pendingEntry{
		msg: models.Message{
			ClientID: clientID,
			Content:  "test",
			State:    models.StatePending,
		},
		fingerprint: fingerprint,
		submittedAt: submittedAt,
	}
}

func TestPendingBufferInsertOrder(t *testing.T) {
	buf := newPendingBuffer()
	now := time.Now()

	buf.insert(newEntry("c1", "fp1", now))
	buf.insert(newEntry("c2", "fp2", now.Add(time.Second)))
	buf.insert(newEntry("c3", "fp3", now.Add(2*time.Second)))

	require.Equal(t, 3, buf.len())
	all := buf.all()
	assert.Equal(t, "c1", all[0].msg.ClientID)
	assert.Equal(t, "c2", all[1].msg.ClientID)
	assert.Equal(t, "c3", all[2].msg.ClientID)
}

func TestPendingBufferUpsert(t *testing.T) {
	buf := newPendingBuffer()
	now := time.Now()

	buf.insert(newEntry("c1", "fp1", now))
	replaced := newEntry("c1", "fp1-yeni", now)
	buf.insert(replaced)

	require.Equal(t, 1, buf.len())
	got, ok := buf.get("c1")
	require.True(t, ok)
	assert.Equal(t, "fp1-yeni", got.fingerprint)
}

func TestPendingBufferRemove(t *testing.T) {
	buf := newPendingBuffer()
	buf.insert(newEntry("c1", "fp1", time.Now()))

	assert.True(t, buf.remove("c1"))
	assert.False(t, buf.remove("c1"), "ikinci remove false dönmeli")
	assert.Equal(t, 0, buf.len())
}

func TestPendingBufferMatchFingerprintWindow(t *testing.T) {
	buf := newPendingBuffer()
	now := time.Now()

	// Pencere dışı: eşleşmemeli.
	buf.insert(newEntry("eski", "fp", now.Add(-time.Minute)))

	_, ok := buf.matchFingerprint("fp", 30*time.Second, now)
	assert.False(t, ok, "pencere dışı entry fingerprint ile eşleşmemeli")

	// Pencere içi: en eski uygun entry dönmeli.
	buf.insert(newEntry("yeni-1", "fp", now.Add(-10*time.Second)))
	buf.insert(newEntry("yeni-2", "fp", now.Add(-5*time.Second)))

	entry, ok := buf.matchFingerprint("fp", 30*time.Second, now)
	require.True(t, ok)
	assert.Equal(t, "yeni-1", entry.msg.ClientID)
}

func TestPendingBufferHasInFlight(t *testing.T) {
	buf := newPendingBuffer()
	now := time.Now()

	e := newEntry("c1", "fp", now)
	buf.insert(e)
	assert.True(t, buf.hasInFlight("fp"))
	assert.False(t, buf.hasInFlight("baska-fp"))

	// Failed entry in-flight sayılmaz — retry edilebilsin diye.
	e.msg.State = models.StateFailed
	assert.False(t, buf.hasInFlight("fp"))
}

func TestPendingBufferConnectivityFailed(t *testing.T) {
	buf := newPendingBuffer()
	now := time.Now()

	a := newEntry("c1", "fp1", now)
	a.msg.State = models.StateFailed
	a.connectivityFailed = true
	buf.insert(a)

	b := newEntry("c2", "fp2", now)
	b.msg.State = models.StateFailed // bağlantı dışı sebeple failed
	buf.insert(b)

	failed := buf.connectivityFailedEntries()
	require.Len(t, failed, 1)
	assert.Equal(t, "c1", failed[0].msg.ClientID)
}
