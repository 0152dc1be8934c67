package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/chatsync/pkg"
)

func TestDirectoryConversationSnapshot(t *testing.T) {
	s := NewMemoryStore()
	s.SeedConversation("conv-1", "ben", "ayse")
	s.InjectMessage("conv-1", "ayse", "ilk")
	last := s.InjectMessage("conv-1", "ayse", "son")

	conv, err := s.Conversation(context.Background(), "conv-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"ben", "ayse"}, conv.ParticipantIDs)
	assert.False(t, conv.IsGroup, "iki katılımcı grup değildir")
	assert.Equal(t, 2, conv.Unread["ben"])
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, last.ID, conv.LastMessage.MessageID)
	assert.Equal(t, "son", conv.LastMessage.Content)
}

func TestDirectoryLastMessageSkipsTombstones(t *testing.T) {
	s := NewMemoryStore()
	s.SeedConversation("conv-1", "ben", "ayse")
	first := s.InjectMessage("conv-1", "ayse", "kalan")
	deleted := s.InjectMessage("conv-1", "ayse", "silinen")
	require.NoError(t, s.Delete(context.Background(), "conv-1", deleted.ID))

	conv, err := s.Conversation(context.Background(), "conv-1")
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, first.ID, conv.LastMessage.MessageID, "özet tombstone'u atlamalı")
}

func TestDirectoryUnknownConversation(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Conversation(context.Background(), "yok")
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestDirectoryListOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.SeedConversation("eski", "ben", "ayse")
	s.InjectMessage("eski", "ayse", "eski aktivite")

	s.SeedConversation("yeni", "ben", "mehmet")
	s.InjectMessage("yeni", "mehmet", "yeni aktivite")

	s.SeedConversation("sabit", "ben", "zeynep")
	require.NoError(t, s.SetPinned(ctx, "sabit", "ben", true))

	// Katılımcısı olmadığım konuşma listede görünmez.
	s.SeedConversation("baskasinin", "ayse", "mehmet")

	convs, err := s.Conversations(ctx, "ben")
	require.NoError(t, err)
	require.Len(t, convs, 3)

	assert.Equal(t, "sabit", convs[0].ID, "pinned konuşma üstte")
	assert.Equal(t, "yeni", convs[1].ID, "sonrası son aktiviteye göre yeni→eski")
	assert.Equal(t, "eski", convs[2].ID)
}

func TestDirectoryFlagsRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.SeedConversation("conv-1", "ben", "ayse")

	require.NoError(t, s.SetMuted(ctx, "conv-1", "ben", true))
	require.NoError(t, s.SetArchived(ctx, "conv-1", "ben", true))

	conv, err := s.Conversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, conv.Muted["ben"])
	assert.True(t, conv.Archived["ben"])
	assert.False(t, conv.Muted["ayse"], "tercihler katılımcı bazlıdır")

	// Geri almak flag'i tamamen düşürür.
	require.NoError(t, s.SetMuted(ctx, "conv-1", "ben", false))
	conv, err = s.Conversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.NotContains(t, conv.Muted, "ben")

	assert.ErrorIs(t, s.SetPinned(ctx, "yok", "ben", true), pkg.ErrNotFound)
}
