package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/chatsync/models"
)

func openTestJournal(t *testing.T) *SQLite {
	t.Helper()
	j, err := OpenSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func entry(clientID, conversationID, content string, at time.Time) Entry {
	return Entry{
		Message: models.Message{
			ClientID:       clientID,
			ConversationID: conversationID,
			SenderID:       "ben",
			Content:        content,
			CreatedAt:      at,
			State:          models.StatePending,
		},
		Fingerprint: "fp-" + clientID,
		SubmittedAt: at,
	}
}

func TestJournalAppendLoad(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	require.NoError(t, j.Append(ctx, entry("c1", "conv-1", "ilk", now)))
	require.NoError(t, j.Append(ctx, entry("c2", "conv-1", "ikinci", now.Add(time.Second))))
	require.NoError(t, j.Append(ctx, entry("c3", "conv-2", "başka konuşma", now)))

	entries, err := j.Load(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, entries, 2, "sadece istenen konuşmanın entry'leri dönmeli")

	// Submit sırası korunur.
	assert.Equal(t, "c1", entries[0].Message.ClientID)
	assert.Equal(t, "c2", entries[1].Message.ClientID)

	// Mesaj içeriği ve fingerprint round-trip eder.
	assert.Equal(t, "ilk", entries[0].Message.Content)
	assert.Equal(t, "fp-c1", entries[0].Fingerprint)
	assert.Equal(t, models.StatePending, entries[0].Message.State)
}

func TestJournalAppendUpserts(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, j.Append(ctx, entry("c1", "conv-1", "eski içerik", now)))

	updated := entry("c1", "conv-1", "güncel içerik", now)
	require.NoError(t, j.Append(ctx, updated))

	entries, err := j.Load(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, entries, 1, "aynı ClientID tek kayıt olmalı")
	assert.Equal(t, "güncel içerik", entries[0].Message.Content)
}

func TestJournalRemove(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, j.Append(ctx, entry("c1", "conv-1", "gidecek", now)))
	require.NoError(t, j.Remove(ctx, "c1"))

	entries, err := j.Load(ctx, "conv-1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Olmayan kaydı silmek hata değildir.
	assert.NoError(t, j.Remove(ctx, "yok-boyle-biri"))
}

func TestJournalSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()
	now := time.Now()

	j, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, entry("c1", "conv-1", "kalıcı", now)))
	require.NoError(t, j.Close())

	// Process restart simülasyonu: aynı dosya yeniden açılır.
	j2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer j2.Close()

	entries, err := j2.Load(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "kalıcı", entries[0].Message.Content)
}

func TestJournalLoadEmptyConversation(t *testing.T) {
	j := openTestJournal(t)

	entries, err := j.Load(context.Background(), "hiç-görülmemiş")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
