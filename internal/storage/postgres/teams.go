package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"hackathon-bot/internal/models"
	"hackathon-bot/internal/storage"
)

const teamColumns = `id, hackathon_id, name, code, owner_id, field, portfolio_link, is_active, created_at`

func scanTeam(s scanner) (models.Team, error) {
	var t models.Team
	err := s.Scan(&t.ID, &t.HackathonID, &t.Name, &t.Code, &t.OwnerID, &t.Field, &t.PortfolioLink, &t.IsActive, &t.CreatedAt)
	return t, err
}

func (q *queries) CreateTeam(ctx context.Context, t *models.Team) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := q.db.Exec(ctx, `INSERT INTO teams (`+teamColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.HackathonID, t.Name, t.Code, t.OwnerID, t.Field, t.PortfolioLink, t.IsActive, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", mapErr(err))
	}
	return nil
}

func (q *queries) getTeam(ctx context.Context, sql string, args ...any) (*models.Team, error) {
	t, err := scanTeam(q.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &t, nil
}

func (q *queries) GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	return q.getTeam(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id)
}

func (q *queries) GetActiveTeamByCode(ctx context.Context, code string) (*models.Team, error) {
	return q.getTeam(ctx, `SELECT `+teamColumns+` FROM teams WHERE code = $1 AND is_active`, code)
}

func (q *queries) ActiveCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM teams WHERE code = $1 AND is_active)`, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check team code: %w", err)
	}
	return exists, nil
}

func (q *queries) LockTeam(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := q.db.QueryRow(ctx, `SELECT id FROM teams WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock team: %w", err)
	}
	return nil
}

func (q *queries) SetTeamActive(ctx context.Context, id uuid.UUID, active bool) error {
	return q.execOne(ctx, "set team active", `UPDATE teams SET is_active = $1 WHERE id = $2`, active, id)
}

func (q *queries) UserTeamInHackathon(ctx context.Context, userID, hackathonID uuid.UUID) (*models.Team, error) {
	return q.getTeam(ctx, `SELECT `+prefixed("t", teamColumns)+` FROM teams t
		JOIN memberships m ON m.team_id = t.id
		WHERE m.user_id = $1 AND t.hackathon_id = $2 AND t.is_active
		LIMIT 1`, userID, hackathonID)
}

func (q *queries) ListUserTeams(ctx context.Context, userID uuid.UUID) ([]models.UserTeam, error) {
	rows, err := q.db.Query(ctx, `SELECT `+prefixed("t", teamColumns)+`, h.name, m.role, m.is_lead
		FROM memberships m
		JOIN teams t ON t.id = m.team_id
		JOIN hackathons h ON h.id = t.hackathon_id
		WHERE m.user_id = $1 AND t.is_active
		ORDER BY m.joined_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user teams: %w", err)
	}
	return collect(rows, func(s scanner) (models.UserTeam, error) {
		var ut models.UserTeam
		t := &ut.Team
		err := s.Scan(&t.ID, &t.HackathonID, &t.Name, &t.Code, &t.OwnerID, &t.Field, &t.PortfolioLink,
			&t.IsActive, &t.CreatedAt, &ut.HackathonName, &ut.Role, &ut.IsLead)
		return ut, err
	})
}

func (q *queries) ListTeams(ctx context.Context) ([]models.TeamRecord, error) {
	rows, err := q.db.Query(ctx, `SELECT `+prefixed("t", teamColumns)+`, h.name, u.telegram_id,
			(SELECT count(*) FROM memberships m WHERE m.team_id = t.id)
		FROM teams t
		JOIN hackathons h ON h.id = t.hackathon_id
		JOIN users u ON u.id = t.owner_id
		ORDER BY t.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return collect(rows, func(s scanner) (models.TeamRecord, error) {
		var tr models.TeamRecord
		t := &tr.Team
		err := s.Scan(&t.ID, &t.HackathonID, &t.Name, &t.Code, &t.OwnerID, &t.Field, &t.PortfolioLink,
			&t.IsActive, &t.CreatedAt, &tr.HackathonName, &tr.OwnerTGID, &tr.MemberCount)
		return tr, err
	})
}

func (q *queries) AddMember(ctx context.Context, m *models.Membership) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	_, err := q.db.Exec(ctx, `
		INSERT INTO memberships (id, team_id, user_id, role, is_lead, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.TeamID, m.UserID, string(m.Role), m.IsLead, m.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", mapErr(err))
	}
	return nil
}

func (q *queries) CountMembers(ctx context.Context, teamID uuid.UUID) (int, error) {
	var n int
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM memberships WHERE team_id = $1`, teamID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return n, nil
}

func (q *queries) GetMembership(ctx context.Context, teamID, userID uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	err := q.db.QueryRow(ctx, `SELECT id, team_id, user_id, role, is_lead, joined_at
		FROM memberships WHERE team_id = $1 AND user_id = $2`, teamID, userID).
		Scan(&m.ID, &m.TeamID, &m.UserID, &m.Role, &m.IsLead, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

func (q *queries) DeleteMembership(ctx context.Context, teamID, userID uuid.UUID) error {
	return q.execOne(ctx, "delete membership",
		`DELETE FROM memberships WHERE team_id = $1 AND user_id = $2`, teamID, userID)
}

const memberSelect = `SELECT m.id, m.team_id, m.user_id, m.role, m.is_lead, m.joined_at,
	u.telegram_id, u.first_name, u.last_name, u.username, u.phone`

func scanMember(s scanner, extra ...any) (models.Member, error) {
	var m models.Member
	dest := []any{&m.ID, &m.TeamID, &m.UserID, &m.Role, &m.IsLead, &m.JoinedAt,
		&m.TelegramID, &m.FirstName, &m.LastName, &m.Username, &m.Phone}
	err := s.Scan(append(dest, extra...)...)
	return m, err
}

func (q *queries) ListMembers(ctx context.Context, teamID uuid.UUID) ([]models.Member, error) {
	rows, err := q.db.Query(ctx, memberSelect+`
		FROM memberships m JOIN users u ON u.id = m.user_id
		WHERE m.team_id = $1
		ORDER BY m.is_lead DESC, m.joined_at`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return collect(rows, func(s scanner) (models.Member, error) { return scanMember(s) })
}

func (q *queries) ListAllMembers(ctx context.Context) ([]models.MemberRecord, error) {
	rows, err := q.db.Query(ctx, memberSelect+`, t.name, t.code
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		JOIN teams t ON t.id = m.team_id
		ORDER BY t.name, m.is_lead DESC, m.joined_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return collect(rows, func(s scanner) (models.MemberRecord, error) {
		var rec models.MemberRecord
		m, err := scanMember(s, &rec.TeamName, &rec.TeamCode)
		rec.Member = m
		return rec, err
	})
}
