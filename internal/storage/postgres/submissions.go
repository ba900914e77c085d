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

const submissionColumns = `id, team_id, stage_id, type, content, file_id, file_name, media_kind, submitted_by, submitted_at`

func scanSubmission(s scanner, extra ...any) (models.Submission, error) {
	var sub models.Submission
	dest := []any{&sub.ID, &sub.TeamID, &sub.StageID, &sub.Type, &sub.Content, &sub.FileID,
		&sub.FileName, &sub.MediaKind, &sub.SubmittedBy, &sub.SubmittedAt}
	err := s.Scan(append(dest, extra...)...)
	return sub, err
}

// UpsertSubmission relies on the (team_id, stage_id) unique constraint.
func (q *queries) UpsertSubmission(ctx context.Context, s *models.Submission) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = time.Now().UTC()
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (team_id, stage_id) DO UPDATE SET
			type = EXCLUDED.type,
			content = EXCLUDED.content,
			file_id = EXCLUDED.file_id,
			file_name = EXCLUDED.file_name,
			media_kind = EXCLUDED.media_kind,
			submitted_by = EXCLUDED.submitted_by,
			submitted_at = EXCLUDED.submitted_at
		RETURNING id`,
		s.ID, s.TeamID, s.StageID, string(s.Type), s.Content, s.FileID, s.FileName,
		string(s.MediaKind), s.SubmittedBy, s.SubmittedAt).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert submission: %w", mapErr(err))
	}
	return nil
}

func (q *queries) GetSubmission(ctx context.Context, teamID, stageID uuid.UUID) (*models.Submission, error) {
	sub, err := scanSubmission(q.db.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions
		WHERE team_id = $1 AND stage_id = $2`, teamID, stageID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &sub, nil
}

func (q *queries) ListStageSubmissions(ctx context.Context, stageID uuid.UUID) ([]models.Submission, error) {
	rows, err := q.db.Query(ctx, `SELECT `+submissionColumns+` FROM submissions
		WHERE stage_id = $1 ORDER BY submitted_at DESC`, stageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage submissions: %w", err)
	}
	return collect(rows, func(s scanner) (models.Submission, error) { return scanSubmission(s) })
}

func (q *queries) ListSubmissions(ctx context.Context) ([]models.SubmissionRecord, error) {
	rows, err := q.db.Query(ctx, `SELECT `+prefixed("s", submissionColumns)+`,
			t.name, t.code, st.number, st.name, h.name
		FROM submissions s
		JOIN teams t ON t.id = s.team_id
		JOIN stages st ON st.id = s.stage_id
		JOIN hackathons h ON h.id = st.hackathon_id
		ORDER BY s.submitted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return collect(rows, func(s scanner) (models.SubmissionRecord, error) {
		var rec models.SubmissionRecord
		sub, err := scanSubmission(s, &rec.TeamName, &rec.TeamCode, &rec.StageNumber, &rec.StageName, &rec.HackathonName)
		rec.Submission = sub
		return rec, err
	})
}
