package store

import (
	"encoding/json"

	"github.com/akinalp/chatsync/models"
)

// wsEvent, WSStore'un server ile konuştuğu zarf formatıdır.
//
// Op (operation): Event türü — "send", "message_page" vb.
// Data: Event'e özgü payload.
// Nonce: Request/response eşleştirme numarası. Client her RPC isteğine
//
//	artan bir nonce verir; server aynı nonce ile "result" döner.
//	Stream event'lerinde (message_page) nonce yoktur.
//
// Seq: Server'ın her outbound event'e verdiği artan sayı.
//
//	Client eksik event tespit etmek için takip edebilir — engine'in
//	safety-net reconcile'ı zaten boşluğu toparlar.
type wsEvent struct {
	Op    string          `json:"op"`
	Data  json.RawMessage `json:"d,omitempty"`
	Nonce int64           `json:"nonce,omitempty"`
	Seq   int64           `json:"seq,omitempty"`
}

// Client → Server operasyonları
const (
	opHeartbeat   = "heartbeat"
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
	opSend        = "send"
	opFetchOlder  = "fetch_older"
	opMarkRead    = "mark_read"
	opClearUnread = "clear_unread"
	opSetReaction = "set_reaction"
	opDelete      = "delete"
)

// Server → Client operasyonları
const (
	opHeartbeatAck = "heartbeat_ack"
	opResult       = "result"       // RPC yanıtı — nonce ile eşleşir
	opMessagePage  = "message_page" // Subscribe stream sayfası
)

// ─── Request payload'ları ───

type wsSubscribeReq struct {
	ConversationID string `json:"conversation_id"`
	SinceCursor    string `json:"since_cursor,omitempty"`
}

type wsSendReq struct {
	ConversationID  string             `json:"conversation_id"`
	ClientMessageID string             `json:"client_message_id"`
	SenderID        string             `json:"sender_id"`
	Request         models.SendRequest `json:"request"`
}

type wsFetchOlderReq struct {
	ConversationID string `json:"conversation_id"`
	BeforeCursor   string `json:"before_cursor,omitempty"`
	Limit          int    `json:"limit"`
}

type wsMarkReadReq struct {
	ConversationID string   `json:"conversation_id"`
	ParticipantID  string   `json:"participant_id"`
	MessageIDs     []string `json:"message_ids"`
}

type wsClearUnreadReq struct {
	ConversationID string `json:"conversation_id"`
	ParticipantID  string `json:"participant_id"`
}

type wsSetReactionReq struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	ParticipantID  string `json:"participant_id"`
	Emoji          string `json:"emoji"`
}

type wsDeleteReq struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// ─── Response payload'ları ───

// wsResult, bir RPC isteğinin sonucu.
// ErrorCode "rejected" ise kalıcı red (pkg.ErrRejected'a map'lenir);
// diğer tüm hata kodları transient sayılır.
type wsResult struct {
	Nonce     int64           `json:"nonce"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
}

// wsPageEvent, message_page event'inin payload'ı.
type wsPageEvent struct {
	ConversationID string             `json:"conversation_id"`
	Page           models.MessagePage `json:"page"`
}

// wsSendResult, send RPC'sinin data alanı.
type wsSendResult struct {
	MessageID string `json:"message_id"`
}
