package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/models"
)

func TestEnsureCreatesOnce(t *testing.T) {
	f := newFixture(t)
	p := Profile{TelegramID: 555, Username: "ali", FirstName: "Ali", Language: models.LangRu}

	u, created, err := f.users.Ensure(f.ctx, p)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.LangRu, u.Language)
	assert.False(t, u.ConsentGiven)

	p.Username = "ali_v"
	again, created, err := f.users.Ensure(f.ctx, p)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "ali_v", again.Username)
}

func TestConsentDecisions(t *testing.T) {
	f := newFixture(t)
	u, _, err := f.users.Ensure(f.ctx, Profile{TelegramID: 10})
	require.NoError(t, err)
	assert.Error(t, RequireConsent(u))

	require.NoError(t, f.users.SetConsent(f.ctx, u, true))
	assert.NoError(t, RequireConsent(u))
	stored, err := f.users.ByTelegramID(f.ctx, 10)
	require.NoError(t, err)
	assert.True(t, stored.ConsentGiven)
	assert.Equal(t, "1.0", stored.ConsentVersion)
	require.NotNil(t, stored.ConsentGivenAt)
	assert.Equal(t, fixedNow, *stored.ConsentGivenAt)

	require.NoError(t, f.users.SetConsent(f.ctx, u, false))
	stored, err = f.users.ByTelegramID(f.ctx, 10)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Nil(t, stored.ConsentGivenAt)
	assert.Equal(t, apperr.CodeConsentRequired, apperr.CodeOf(RequireConsent(stored)))

	var actions []string
	for _, e := range f.store.AuditLog() {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{ActionConsent, ActionConsent}, actions)
}

func TestAdminManagement(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.users.Ensure(f.ctx, Profile{TelegramID: 1})
	require.NoError(t, err)
	_, _, err = f.users.Ensure(f.ctx, Profile{TelegramID: 2})
	require.NoError(t, err)

	assert.True(t, f.users.IsAdmin(f.ctx, 1), "configured admin")
	assert.Equal(t, apperr.CodeAdminOnly, apperr.CodeOf(f.users.RequireAdmin(f.ctx, 2)))
	assert.Equal(t, apperr.CodeAdminOnly, apperr.CodeOf(f.users.SetAdmin(f.ctx, 2, 1, false)))

	require.NoError(t, f.users.SetAdmin(f.ctx, 1, 2, true))
	assert.True(t, f.users.IsAdmin(f.ctx, 2))
	require.NoError(t, f.users.SetAdmin(f.ctx, 2, 2, false))
	assert.False(t, f.users.IsAdmin(f.ctx, 2))

	assert.Equal(t, apperr.CodeUserNotFound, apperr.CodeOf(f.users.SetAdmin(f.ctx, 1, 999, true)))
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	h := f.hackathon(t, "H1")
	f.team(t, h, f.user(t), "T1")
	_, _, err := f.users.Ensure(f.ctx, Profile{TelegramID: 9000})
	require.NoError(t, err)

	st, err := f.users.Stats(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{TotalUsers: 2, ConsentedUsers: 1, ActiveTeams: 1, ActiveHackathons: 1}, st)
}
