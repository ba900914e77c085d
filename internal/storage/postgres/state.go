package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"hackathon-bot/internal/state"
)

// StateStore keeps conversation state in registration_state. Rows older
// than ttl read as absent and are removed by Reap.
type StateStore struct {
	db  dbtx
	ttl time.Duration
}

var (
	_ state.Store  = (*StateStore)(nil)
	_ state.Reaper = (*StateStore)(nil)
)

func (s *StateStore) Get(ctx context.Context, tgID int64) (*state.State, error) {
	var (
		st   = state.State{TelegramID: tgID}
		data []byte
	)
	err := s.db.QueryRow(ctx, `SELECT current_step, data, updated_at FROM registration_state WHERE telegram_id = $1`, tgID).
		Scan(&st.Step, &data, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state: %w", err)
	}
	if s.ttl > 0 && time.Since(st.UpdatedAt) > s.ttl {
		return nil, nil
	}
	if st.Data, err = state.DecodePayload(data); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *StateStore) Put(ctx context.Context, st state.State) error {
	data, err := state.EncodePayload(st.Data)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO registration_state (telegram_id, current_step, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (telegram_id) DO UPDATE SET
			current_step = EXCLUDED.current_step,
			data = EXCLUDED.data,
			updated_at = now()`,
		st.TelegramID, st.Step, string(data))
	if err != nil {
		return fmt.Errorf("failed to put state: %w", err)
	}
	return nil
}

func (s *StateStore) Delete(ctx context.Context, tgID int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM registration_state WHERE telegram_id = $1`, tgID); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

func (s *StateStore) Reap(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM registration_state WHERE updated_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to reap states: %w", err)
	}
	return tag.RowsAffected(), nil
}
