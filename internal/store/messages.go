package store

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Message is one relayed event as recorded by the Recorder. Rows outlive
// the in-memory relay, which keeps no history of its own.
type Message struct {
	bun.BaseModel `bun:"table:messages"`

	ID        int64     `bun:",pk,autoincrement"`
	Kind      string    `bun:",notnull"`
	Author    string    `bun:",notnull"`
	Payload   string    `bun:",notnull"`
	Origin    string    `bun:",nullzero"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// Messages is the relayed-event log repository.
type Messages struct {
	db *bun.DB
}

func NewMessages(db *bun.DB) *Messages {
	return &Messages{db: db}
}

func (m *Messages) Insert(ctx context.Context, msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if _, err := m.db.NewInsert().Model(msg).Exec(ctx); err != nil {
		return fmt.Errorf("store: insert message: %w", err)
	}
	return nil
}

// Recent returns up to limit messages, newest first.
func (m *Messages) Recent(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var msgs []Message
	err := m.db.NewSelect().Model(&msgs).
		Order("id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	return msgs, nil
}
