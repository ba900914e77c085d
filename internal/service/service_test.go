package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"hackathon-bot/internal/logger"
	"hackathon-bot/internal/models"
	"hackathon-bot/internal/storage/memory"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx        context.Context
	store      *memory.Store
	users      *Users
	hackathons *Hackathons
	teams      *Teams
	subs       *Submissions
	nextTGID   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	log := logger.Nop()
	clock := func() time.Time { return fixedNow }
	return &fixture{
		ctx:        context.Background(),
		store:      store,
		users:      NewUsers(store, log, map[int64]bool{1: true}, "1.0", clock),
		hackathons: NewHackathons(store, log),
		teams:      NewTeams(store, log, countingCodes()),
		subs:       NewSubmissions(store, log),
		nextTGID:   100,
	}
}

func (f *fixture) user(t *testing.T) *models.User {
	t.Helper()
	f.nextTGID++
	u, created, err := f.users.Ensure(f.ctx, Profile{TelegramID: f.nextTGID, FirstName: "U"})
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, f.users.SetConsent(f.ctx, u, true))
	return u
}

func (f *fixture) hackathon(t *testing.T, name string) *models.Hackathon {
	t.Helper()
	h, err := f.hackathons.Create(f.ctx, NewHackathon{Name: models.Localized{Default: name}})
	require.NoError(t, err)
	return h
}

func (f *fixture) stage(t *testing.T, h *models.Hackathon, number int, deadline time.Time) *models.Stage {
	t.Helper()
	st, err := f.hackathons.CreateStage(f.ctx, NewStage{HackathonID: h.ID, Number: number, Deadline: deadline})
	require.NoError(t, err)
	return st
}

func (f *fixture) team(t *testing.T, h *models.Hackathon, owner *models.User, name string) *models.Team {
	t.Helper()
	team, err := f.teams.Create(f.ctx, NewTeam{HackathonID: h.ID, OwnerID: owner.ID, Name: name, Role: models.RoleBackend})
	require.NoError(t, err)
	return team
}

func sequenceCodes(codes ...string) CodeGenerator {
	i := 0
	return func() (string, error) {
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
}

// countingCodes yields 100001, 100002, ... so fixtures never collide with
// the codes tests use for lookups that must miss.
func countingCodes() CodeGenerator {
	n := 100000
	return func() (string, error) {
		n++
		return fmt.Sprintf("%06d", n), nil
	}
}

func idSet(ms []models.Member) map[uuid.UUID]bool {
	out := map[uuid.UUID]bool{}
	for _, m := range ms {
		out[m.UserID] = true
	}
	return out
}
