package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver — CGO gerekmez, her platformda çalışır

	"github.com/akinalp/chatsync/models"
)

// schema, journal tablosunu oluşturur.
// Mesaj gövdesi JSON olarak saklanır — journal bir kuyruk, sorgu motoru değil.
// Kolonlara çıkarılan alanlar sadece Load/Remove'un ihtiyaç duydukları.
const schema = `
CREATE TABLE IF NOT EXISTS pending_messages (
	client_id       TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	fingerprint     TEXT NOT NULL,
	submitted_at    INTEGER NOT NULL,
	payload         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_conversation
	ON pending_messages(conversation_id, submitted_at);
`

// SQLite, Journal'ın modernc.org/sqlite tabanlı implementasyonudur.
// *sql.DB Go'nun built-in connection pool'udur — thread-safe'dir,
// session loop'u ve sender goroutine'leri aynı anda güvenle kullanabilir.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite, verilen dosya yolunda journal açar ve şemayı kurar.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	// WAL: aynı anda okuma/yazma — loop emit ederken sender Append edebilir.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) Append(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry.Message)
	if err != nil {
		return fmt.Errorf("failed to marshal journal payload: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO pending_messages (client_id, conversation_id, fingerprint, submitted_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			submitted_at = excluded.submitted_at,
			payload = excluded.payload`,
		entry.Message.ClientID,
		entry.Message.ConversationID,
		entry.Fingerprint,
		entry.SubmittedAt.UnixMilli(),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

func (j *SQLite) Remove(ctx context.Context, clientID string) error {
	if _, err := j.db.ExecContext(ctx, `DELETE FROM pending_messages WHERE client_id = ?`, clientID); err != nil {
		return fmt.Errorf("failed to remove journal entry: %w", err)
	}
	return nil
}

func (j *SQLite) Load(ctx context.Context, conversationID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT fingerprint, submitted_at, payload
		FROM pending_messages
		WHERE conversation_id = ?
		ORDER BY submitted_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load journal entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			fingerprint string
			submittedAt int64
			payload     string
		)
		if err := rows.Scan(&fingerprint, &submittedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}

		var msg models.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			// Bozuk kayıt — mesajı kaybetmektense atla, diğerlerini yükle.
			continue
		}

		entries = append(entries, Entry{
			Message:     msg,
			Fingerprint: fingerprint,
			SubmittedAt: time.UnixMilli(submittedAt),
		})
	}
	return entries, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
