package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"hackathon-bot/internal/models"
	"hackathon-bot/internal/storage"
)

const userColumns = `id, telegram_id, username, first_name, last_name, birth_date, gender, location,
	phone, email, pinfl, language, consent_given, consent_given_at, consent_version,
	registration_ok, is_admin, is_active, created_at, updated_at`

func scanUser(s scanner) (models.User, error) {
	var u models.User
	err := s.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.BirthDate,
		&u.Gender, &u.Location, &u.Phone, &u.Email, &u.PINFL, &u.Language, &u.ConsentGiven,
		&u.ConsentGivenAt, &u.ConsentVersion, &u.RegistrationOK, &u.IsAdmin, &u.IsActive,
		&u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (q *queries) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	_, err := q.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		u.ID, u.TelegramID, u.Username, u.FirstName, u.LastName, u.BirthDate, string(u.Gender),
		u.Location, u.Phone, u.Email, u.PINFL, string(u.Language), u.ConsentGiven, u.ConsentGivenAt,
		u.ConsentVersion, u.RegistrationOK, u.IsAdmin, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapErr(err))
	}
	return nil
}

func (q *queries) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (q *queries) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return q.getUser(ctx, "id = $1", id)
}

func (q *queries) GetUserByTelegramID(ctx context.Context, tgID int64) (*models.User, error) {
	return q.getUser(ctx, "telegram_id = $1", tgID)
}

// UpdateUser writes only the fields present in upd.
func (q *queries) UpdateUser(ctx context.Context, id uuid.UUID, upd models.UserUpdate) error {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Username != nil {
		set("username", *upd.Username)
	}
	if upd.FirstName != nil {
		set("first_name", *upd.FirstName)
	}
	if upd.LastName != nil {
		set("last_name", *upd.LastName)
	}
	if upd.BirthDate != nil {
		set("birth_date", *upd.BirthDate)
	}
	if upd.Gender != nil {
		set("gender", string(*upd.Gender))
	}
	if upd.Location != nil {
		set("location", *upd.Location)
	}
	if upd.Phone != nil {
		set("phone", *upd.Phone)
	}
	if upd.Email != nil {
		set("email", *upd.Email)
	}
	if upd.PINFL != nil {
		set("pinfl", *upd.PINFL)
	}
	if upd.Language != nil {
		set("language", string(*upd.Language))
	}
	if upd.RegistrationOK != nil {
		set("registration_ok", *upd.RegistrationOK)
	}
	if upd.IsAdmin != nil {
		set("is_admin", *upd.IsAdmin)
	}
	if upd.IsActive != nil {
		set("is_active", *upd.IsActive)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)
	sql := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	return q.execOne(ctx, "update user", sql, args...)
}

func (q *queries) SetConsent(ctx context.Context, id uuid.UUID, given bool, version string, at time.Time) error {
	return q.execOne(ctx, "set consent", `
		UPDATE users SET consent_given = $1, consent_version = $2,
			consent_given_at = CASE WHEN $1 THEN $3::timestamptz END, updated_at = now()
		WHERE id = $4`, given, version, at, id)
}

func (q *queries) listUsers(ctx context.Context, sql string, args ...any) ([]models.User, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return collect(rows, scanUser)
}

func (q *queries) ListUsers(ctx context.Context) ([]models.User, error) {
	return q.listUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
}

func (q *queries) ListConsentedUsers(ctx context.Context) ([]models.User, error) {
	return q.listUsers(ctx, `SELECT `+userColumns+` FROM users
		WHERE is_active AND consent_given ORDER BY created_at`)
}

func (q *queries) HackathonParticipants(ctx context.Context, hackathonID uuid.UUID) ([]models.User, error) {
	return q.listUsers(ctx, `SELECT `+prefixed("u", userColumns)+` FROM users u
		WHERE u.is_active AND EXISTS (
			SELECT 1 FROM memberships m JOIN teams t ON t.id = m.team_id
			WHERE m.user_id = u.id AND t.is_active AND t.hackathon_id = $1)
		ORDER BY u.created_at`, hackathonID)
}

// LogAction writes an audit row. Inside a transaction it runs in a
// savepoint, so a failed insert leaves the enclosing transaction usable.
func (q *queries) LogAction(ctx context.Context, e storage.AuditEntry) error {
	if tx, ok := q.db.(pgx.Tx); ok {
		return pgx.BeginFunc(ctx, tx, func(sp pgx.Tx) error {
			return (&queries{db: sp}).insertAudit(ctx, e)
		})
	}
	return q.insertAudit(ctx, e)
}

func (q *queries) insertAudit(ctx context.Context, e storage.AuditEntry) error {
	_, err := q.db.Exec(ctx, `INSERT INTO audit_log (user_id, action, details) VALUES ($1, $2, $3)`,
		e.UserID, e.Action, e.Details)
	if err != nil {
		return fmt.Errorf("failed to log action: %w", err)
	}
	return nil
}

func (q *queries) Stats(ctx context.Context) (models.Stats, error) {
	var st models.Stats
	err := q.db.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM users WHERE is_active),
			(SELECT count(*) FROM users WHERE is_active AND consent_given),
			(SELECT count(*) FROM teams WHERE is_active),
			(SELECT count(*) FROM hackathons WHERE is_active AND status IN ('OPEN_TO_REGISTRATION', 'ACTIVE')),
			(SELECT count(*) FROM submissions)`).
		Scan(&st.TotalUsers, &st.ConsentedUsers, &st.ActiveTeams, &st.ActiveHackathons, &st.Submissions)
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	return st, nil
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
