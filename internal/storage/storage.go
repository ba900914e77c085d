// Package storage declares the store-access capability injected into the
// services. Implementations live in storage/postgres and storage/memory.
//
// Lookups return (nil, nil) when the row does not exist; callers decide
// whether absence is an error.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"hackathon-bot/internal/models"
)

var (
	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("storage: duplicate key")
	// ErrNotFound is returned by updates and deletes that matched no row.
	ErrNotFound = errors.New("storage: no rows affected")
)

type AuditEntry struct {
	UserID    *uuid.UUID
	Action    string
	Details   map[string]any
	CreatedAt time.Time
}

type Repository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByTelegramID(ctx context.Context, tgID int64) (*models.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, upd models.UserUpdate) error
	SetConsent(ctx context.Context, id uuid.UUID, given bool, version string, at time.Time) error
	ListUsers(ctx context.Context) ([]models.User, error)
	ListConsentedUsers(ctx context.Context) ([]models.User, error)

	CreateHackathon(ctx context.Context, h *models.Hackathon) error
	GetHackathon(ctx context.Context, id uuid.UUID) (*models.Hackathon, error)
	ListHackathons(ctx context.Context) ([]models.Hackathon, error)
	UpdateHackathonStatus(ctx context.Context, id uuid.UUID, status models.HackathonStatus) error

	CreateStage(ctx context.Context, s *models.Stage) error
	GetStage(ctx context.Context, id uuid.UUID) (*models.Stage, error)
	ListStages(ctx context.Context, hackathonID uuid.UUID) ([]models.Stage, error)
	DeactivateStages(ctx context.Context, hackathonID uuid.UUID) error
	SetStageActive(ctx context.Context, id uuid.UUID, active bool) error
	// StagesDueBetween lists stages whose deadline falls in (from, to].
	StagesDueBetween(ctx context.Context, from, to time.Time) ([]models.Stage, error)

	CreateTeam(ctx context.Context, t *models.Team) error
	GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error)
	GetActiveTeamByCode(ctx context.Context, code string) (*models.Team, error)
	ActiveCodeExists(ctx context.Context, code string) (bool, error)
	// LockTeam serializes membership changes on one team inside a transaction.
	LockTeam(ctx context.Context, id uuid.UUID) error
	SetTeamActive(ctx context.Context, id uuid.UUID, active bool) error
	// UserTeamInHackathon returns the user's active team in the hackathon.
	UserTeamInHackathon(ctx context.Context, userID, hackathonID uuid.UUID) (*models.Team, error)
	ListUserTeams(ctx context.Context, userID uuid.UUID) ([]models.UserTeam, error)
	ListTeams(ctx context.Context) ([]models.TeamRecord, error)

	AddMember(ctx context.Context, m *models.Membership) error
	CountMembers(ctx context.Context, teamID uuid.UUID) (int, error)
	GetMembership(ctx context.Context, teamID, userID uuid.UUID) (*models.Membership, error)
	DeleteMembership(ctx context.Context, teamID, userID uuid.UUID) error
	ListMembers(ctx context.Context, teamID uuid.UUID) ([]models.Member, error)
	ListAllMembers(ctx context.Context) ([]models.MemberRecord, error)
	// HackathonParticipants returns active users with a membership in an
	// active team of the hackathon.
	HackathonParticipants(ctx context.Context, hackathonID uuid.UUID) ([]models.User, error)

	// UpsertSubmission inserts or replaces the row keyed by (team, stage) and
	// sets s.ID to the stored row id.
	UpsertSubmission(ctx context.Context, s *models.Submission) error
	GetSubmission(ctx context.Context, teamID, stageID uuid.UUID) (*models.Submission, error)
	ListStageSubmissions(ctx context.Context, stageID uuid.UUID) ([]models.Submission, error)
	ListSubmissions(ctx context.Context) ([]models.SubmissionRecord, error)

	LogAction(ctx context.Context, e AuditEntry) error
	Stats(ctx context.Context) (models.Stats, error)
}

// Store is a Repository that can also run a function atomically.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(Repository) error) error
}
