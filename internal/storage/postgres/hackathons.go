package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"hackathon-bot/internal/models"
)

const hackathonColumns = `id, name, name_ru, name_en, description, description_ru, description_en,
	prize_pool, prize_pool_ru, prize_pool_en, starts_at, ends_at, registration_deadline,
	status, is_active, created_at`

func scanHackathon(s scanner) (models.Hackathon, error) {
	var h models.Hackathon
	err := s.Scan(&h.ID, &h.Name.Default, &h.Name.Ru, &h.Name.En,
		&h.Description.Default, &h.Description.Ru, &h.Description.En,
		&h.PrizePool.Default, &h.PrizePool.Ru, &h.PrizePool.En,
		&h.StartsAt, &h.EndsAt, &h.RegistrationDeadline, &h.Status, &h.IsActive, &h.CreatedAt)
	return h, err
}

func (q *queries) CreateHackathon(ctx context.Context, h *models.Hackathon) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	_, err := q.db.Exec(ctx, `
		INSERT INTO hackathons (`+hackathonColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		h.ID, h.Name.Default, h.Name.Ru, h.Name.En,
		h.Description.Default, h.Description.Ru, h.Description.En,
		h.PrizePool.Default, h.PrizePool.Ru, h.PrizePool.En,
		h.StartsAt, h.EndsAt, h.RegistrationDeadline, string(h.Status), h.IsActive, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create hackathon: %w", mapErr(err))
	}
	return nil
}

func (q *queries) GetHackathon(ctx context.Context, id uuid.UUID) (*models.Hackathon, error) {
	h, err := scanHackathon(q.db.QueryRow(ctx, `SELECT `+hackathonColumns+` FROM hackathons WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hackathon: %w", err)
	}
	return &h, nil
}

func (q *queries) ListHackathons(ctx context.Context) ([]models.Hackathon, error) {
	rows, err := q.db.Query(ctx, `SELECT `+hackathonColumns+` FROM hackathons ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hackathons: %w", err)
	}
	return collect(rows, scanHackathon)
}

func (q *queries) UpdateHackathonStatus(ctx context.Context, id uuid.UUID, status models.HackathonStatus) error {
	return q.execOne(ctx, "update hackathon status",
		`UPDATE hackathons SET status = $1 WHERE id = $2`, string(status), id)
}

const stageColumns = `id, hackathon_id, number, name, name_ru, name_en, description, description_ru,
	description_en, task, task_ru, task_en, starts_at, deadline, is_active, created_at`

func scanStage(s scanner) (models.Stage, error) {
	var st models.Stage
	err := s.Scan(&st.ID, &st.HackathonID, &st.Number, &st.Name.Default, &st.Name.Ru, &st.Name.En,
		&st.Description.Default, &st.Description.Ru, &st.Description.En,
		&st.Task.Default, &st.Task.Ru, &st.Task.En,
		&st.StartsAt, &st.Deadline, &st.IsActive, &st.CreatedAt)
	return st, err
}

func (q *queries) CreateStage(ctx context.Context, s *models.Stage) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := q.db.Exec(ctx, `
		INSERT INTO stages (`+stageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		s.ID, s.HackathonID, s.Number, s.Name.Default, s.Name.Ru, s.Name.En,
		s.Description.Default, s.Description.Ru, s.Description.En,
		s.Task.Default, s.Task.Ru, s.Task.En,
		s.StartsAt, s.Deadline, s.IsActive, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create stage: %w", mapErr(err))
	}
	return nil
}

func (q *queries) GetStage(ctx context.Context, id uuid.UUID) (*models.Stage, error) {
	st, err := scanStage(q.db.QueryRow(ctx, `SELECT `+stageColumns+` FROM stages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stage: %w", err)
	}
	return &st, nil
}

func (q *queries) ListStages(ctx context.Context, hackathonID uuid.UUID) ([]models.Stage, error) {
	rows, err := q.db.Query(ctx, `SELECT `+stageColumns+` FROM stages WHERE hackathon_id = $1 ORDER BY number`, hackathonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	return collect(rows, scanStage)
}

func (q *queries) DeactivateStages(ctx context.Context, hackathonID uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `UPDATE stages SET is_active = FALSE WHERE hackathon_id = $1 AND is_active`, hackathonID); err != nil {
		return fmt.Errorf("failed to deactivate stages: %w", err)
	}
	return nil
}

func (q *queries) SetStageActive(ctx context.Context, id uuid.UUID, active bool) error {
	return q.execOne(ctx, "set stage active", `UPDATE stages SET is_active = $1 WHERE id = $2`, active, id)
}

func (q *queries) StagesDueBetween(ctx context.Context, from, to time.Time) ([]models.Stage, error) {
	rows, err := q.db.Query(ctx, `SELECT `+stageColumns+` FROM stages
		WHERE deadline > $1 AND deadline <= $2 ORDER BY deadline`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list due stages: %w", err)
	}
	return collect(rows, scanStage)
}
