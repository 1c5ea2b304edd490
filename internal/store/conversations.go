package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nidhogg/xoxo/internal/conversation"
	"go.uber.org/zap"
)

// ObserveTurn persists a completed turn. It implements conversation.TurnObserver.
func (s *Store) ObserveTurn(ctx context.Context, turn *conversation.Turn) error {
	return s.SaveTurn(ctx, turn)
}

// SaveTurn upserts the conversation row and appends the turn's messages in
// one transaction.
func (s *Store) SaveTurn(ctx context.Context, turn *conversation.Turn) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (self_name, partner_id, partner_url, thread_id, message_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (self_name, partner_id)
		DO UPDATE SET partner_url = EXCLUDED.partner_url,
		              thread_id = EXCLUDED.thread_id,
		              message_count = EXCLUDED.message_count,
		              updated_at = EXCLUDED.updated_at`,
		turn.Self, turn.Partner.ID, turn.Partner.URL, turn.ThreadID, turn.MessageCount, turn.At,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	batch := &pgx.Batch{}
	batch.Queue(insertMessage, turn.Self, turn.Partner.ID, turn.Self, turn.Outgoing, turn.Position.String(), turn.At)
	if turn.Reply != "" {
		batch.Queue(insertMessage, turn.Self, turn.Partner.ID, turn.Partner.ID, turn.Reply, turn.Position.String(), turn.At)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("append messages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}
	return nil
}

const insertMessage = `
	INSERT INTO conversation_messages (self_name, partner_id, speaker, content, stage, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

// LoadStates rebuilds every partner state recorded for self, with history
// in insertion order.
func (s *Store) LoadStates(ctx context.Context, self string) ([]*conversation.PartnerState, error) {
	rows, err := s.db.Query(ctx, `
		SELECT partner_id, thread_id, message_count, updated_at
		FROM conversations
		WHERE self_name = $1
		ORDER BY partner_id`, self)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}

	var states []*conversation.PartnerState
	byPartner := make(map[string]*conversation.PartnerState)
	for rows.Next() {
		st := &conversation.PartnerState{}
		if err := rows.Scan(&st.PartnerID, &st.ThreadID, &st.MessageCount, &st.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		states = append(states, st)
		byPartner[st.PartnerID] = st
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	msgRows, err := s.db.Query(ctx, `
		SELECT partner_id, speaker, content, created_at
		FROM conversation_messages
		WHERE self_name = $1
		ORDER BY id ASC`, self)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var (
			partnerID string
			e         conversation.Entry
		)
		if err := msgRows.Scan(&partnerID, &e.Speaker, &e.Text, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if st, ok := byPartner[partnerID]; ok {
			st.History = append(st.History, e)
		}
	}
	if err := msgRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	s.logger.Info("conversation states loaded",
		zap.String("self", self), zap.Int("partners", len(states)))
	return states, nil
}

// ConversationSummary is one row of the conversations table.
type ConversationSummary struct {
	PartnerID    string    `json:"partner_id"`
	PartnerURL   string    `json:"partner_url"`
	MessageCount int       `json:"message_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListConversations returns summaries for self, most recent first.
func (s *Store) ListConversations(ctx context.Context, self string) ([]ConversationSummary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT partner_id, partner_url, message_count, updated_at
		FROM conversations
		WHERE self_name = $1
		ORDER BY updated_at DESC`, self)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[ConversationSummary])
}
