package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akinalp/chatsync/models"
)

// typingChannelPrefix, konuşma başına pub/sub kanal adı öneki.
const typingChannelPrefix = "chatsync:typing:"

// RedisTyping, redis pub/sub üzerinde çalışan TypingChannel implementasyonudur.
//
// Typing sinyali için redis pub/sub biçilmiş kaftandır:
//   - Fire-and-forget: abone yoksa mesaj kaybolur — ephemeral sinyal için
//     tam olarak istenen davranış. Persistence yok, backlog yok.
//   - Aynı konuşmaya bakan tüm client process'leri aynı kanala abone olur.
//
// TTL/staleness takibi burada YAPILMAZ — o engine'in typing coordinator'ının
// işidir. Bu adapter sadece taşır.
type RedisTyping struct {
	client *redis.Client
}

// NewRedisTyping, verilen adrese bağlanan bir RedisTyping oluşturur.
func NewRedisTyping(addr string) *RedisTyping {
	return &RedisTyping{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// NewRedisTypingWithClient, var olan bir redis client'ı sarar.
// Host uygulama kendi bağlantı havuzunu paylaşmak isteyebilir.
func NewRedisTypingWithClient(client *redis.Client) *RedisTyping {
	return &RedisTyping{client: client}
}

// SetTyping, sinyali JSON olarak konuşmanın kanalına publish eder.
func (t *RedisTyping) SetTyping(ctx context.Context, conversationID, participantID string, isTyping bool) error {
	signal := models.TypingSignal{
		ConversationID: conversationID,
		ParticipantID:  participantID,
		IsTyping:       isTyping,
		At:             time.Now(),
	}
	payload, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("failed to marshal typing signal: %w", err)
	}
	return t.client.Publish(ctx, typingChannelPrefix+conversationID, payload).Err()
}

// ObserveTyping, konuşmanın typing kanalına abone olur ve gelen sinyalleri
// parse edip stream olarak döner. Parse edilemeyen payload loglanıp atlanır —
// bozuk bir sinyal stream'i durdurmaz.
func (t *RedisTyping) ObserveTyping(ctx context.Context, conversationID string) (<-chan models.TypingSignal, error) {
	sub := t.client.Subscribe(ctx, typingChannelPrefix+conversationID)

	// Aboneliğin kurulduğunu doğrula — kurulamazsa stream hiç başlamasın.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe typing channel: %w", err)
	}

	out := make(chan models.TypingSignal, 32)

	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var signal models.TypingSignal
				if err := json.Unmarshal([]byte(msg.Payload), &signal); err != nil {
					log.Printf("[typing] invalid signal payload on %s: %v", msg.Channel, err)
					continue
				}
				select {
				case out <- signal:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close, redis bağlantısını kapatır.
func (t *RedisTyping) Close() error {
	return t.client.Close()
}
