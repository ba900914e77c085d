package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackathon-bot/internal/models"
	"hackathon-bot/internal/storage"
)

var nextTGID int64 = 1000

func seedTeam(t *testing.T, s *Store, code string) (*models.User, *models.Team) {
	t.Helper()
	ctx := context.Background()
	nextTGID++
	u := &models.User{TelegramID: nextTGID, FirstName: "Ali", IsActive: true}
	require.NoError(t, s.CreateUser(ctx, u))
	h := &models.Hackathon{Name: models.Localized{Default: "H1"}, Status: models.StatusOpen, IsActive: true}
	require.NoError(t, s.CreateHackathon(ctx, h))
	team := &models.Team{HackathonID: h.ID, Name: "T1", Code: code, OwnerID: u.ID, IsActive: true}
	require.NoError(t, s.CreateTeam(ctx, team))
	return u, team
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, team := seedTeam(t, s, "111111")

	boom := errors.New("boom")
	err := s.InTx(ctx, func(r storage.Repository) error {
		require.NoError(t, r.AddMember(ctx, &models.Membership{TeamID: team.ID, UserID: u.ID, IsLead: true}))
		require.NoError(t, r.SetTeamActive(ctx, team.ID, false))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := s.CountMembers(ctx, team.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	got, err := s.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestInTxCommits(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, team := seedTeam(t, s, "222222")

	require.NoError(t, s.InTx(ctx, func(r storage.Repository) error {
		return r.AddMember(ctx, &models.Membership{TeamID: team.ID, UserID: u.ID, IsLead: true})
	}))
	members, err := s.ListMembers(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "Ali", members[0].FirstName)
}

func TestActiveCodeUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, team := seedTeam(t, s, "333333")

	dup := &models.Team{HackathonID: team.HackathonID, Name: "T2", Code: "333333", OwnerID: u.ID, IsActive: true}
	assert.ErrorIs(t, s.CreateTeam(ctx, dup), storage.ErrDuplicate)

	// Codes of inactive teams may be reused.
	require.NoError(t, s.SetTeamActive(ctx, team.ID, false))
	require.NoError(t, s.CreateTeam(ctx, dup))
	exists, err := s.ActiveCodeExists(ctx, "333333")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUpsertSubmissionKeepsOneRow(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, team := seedTeam(t, s, "444444")
	stage := &models.Stage{HackathonID: team.HackathonID, Number: 1, Deadline: time.Now().Add(time.Hour)}
	require.NoError(t, s.CreateStage(ctx, stage))

	first := &models.Submission{TeamID: team.ID, StageID: stage.ID, Type: models.SubmissionLink, Content: "https://a.uz", SubmittedBy: u.ID}
	require.NoError(t, s.UpsertSubmission(ctx, first))
	second := &models.Submission{TeamID: team.ID, StageID: stage.ID, Type: models.SubmissionLink, Content: "https://b.uz", SubmittedBy: u.ID}
	require.NoError(t, s.UpsertSubmission(ctx, second))

	assert.Equal(t, first.ID, second.ID)
	rows, err := s.ListStageSubmissions(ctx, stage.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "https://b.uz", rows[0].Content)
}

func TestListSubmissionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, a := seedTeam(t, s, "555555")
	_, b := seedTeam(t, s, "666666")
	stage := &models.Stage{HackathonID: a.HackathonID, Number: 1, Name: models.Localized{Default: "MVP"}}
	require.NoError(t, s.CreateStage(ctx, stage))

	for _, team := range []*models.Team{a, b} {
		require.NoError(t, s.UpsertSubmission(ctx, &models.Submission{TeamID: team.ID, StageID: stage.ID, Content: team.Name + "-" + team.Code}))
	}
	// Resubmitting moves the team to the front.
	require.NoError(t, s.UpsertSubmission(ctx, &models.Submission{TeamID: a.ID, StageID: stage.ID, Content: "again"}))

	rows, err := s.ListSubmissions(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "again", rows[0].Content)
	assert.Equal(t, "MVP", rows[0].StageName)
	assert.Equal(t, b.ID, rows[1].TeamID)
}

func TestStagesDueBetween(t *testing.T) {
	ctx := context.Background()
	s := New()
	h := &models.Hackathon{Name: models.Localized{Default: "H"}}
	require.NoError(t, s.CreateHackathon(ctx, h))
	now := time.Now()
	for i, d := range []time.Duration{-time.Hour, 2 * time.Hour, 48 * time.Hour} {
		require.NoError(t, s.CreateStage(ctx, &models.Stage{HackathonID: h.ID, Number: i + 1, Deadline: now.Add(d)}))
	}
	due, err := s.StagesDueBetween(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 2, due[0].Number)
}

func TestMissingRows(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, err := s.GetUserByTelegramID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, u)
	assert.ErrorIs(t, s.UpdateUser(ctx, uuid.New(), models.UserUpdate{}), storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteMembership(ctx, uuid.New(), uuid.New()), storage.ErrNotFound)
}
