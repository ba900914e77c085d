package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/logger"
	"hackathon-bot/internal/models"
	"hackathon-bot/internal/storage"
)

func TestCreateTeamAddsLead(t *testing.T) {
	f := newFixture(t)
	h := f.hackathon(t, "H1")
	owner := f.user(t)

	team := f.team(t, h, owner, "T1")
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), team.Code)
	assert.True(t, team.IsActive)

	members, err := f.teams.Members(f.ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.True(t, members[0].IsLead)
	assert.Equal(t, owner.ID, members[0].UserID)
	assert.Equal(t, models.RoleBackend, members[0].Role)
}

func TestCreateTeamOwnerNotFound(t *testing.T) {
	f := newFixture(t)
	h := f.hackathon(t, "H1")
	_, err := f.teams.Create(f.ctx, NewTeam{HackathonID: h.ID, OwnerID: uuid.New(), Name: "Ghost"})
	assert.Equal(t, apperr.CodeUserNotFound, apperr.CodeOf(err))
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCreateTeamRetriesOnCodeCollision(t *testing.T) {
	f := newFixture(t)
	h := f.hackathon(t, "H1")
	f.teams.codes = sequenceCodes("111111")
	first := f.team(t, h, f.user(t), "A")
	assert.Equal(t, "111111", first.Code)

	f.teams.codes = sequenceCodes("111111", "111111", "222222")
	second := f.team(t, h, f.user(t), "B")
	assert.Equal(t, "222222", second.Code)
}

func TestCreateTeamCodeExhausted(t *testing.T) {
	f := newFixture(t)
	h := f.hackathon(t, "H1")
	f.teams = NewTeams(f.store, logger.Nop(), sequenceCodes("123456"))
	f.team(t, h, f.user(t), "A")

	_, err := f.teams.Create(f.ctx, NewTeam{HackathonID: h.ID, OwnerID: f.user(t).ID, Name: "B"})
	assert.Equal(t, apperr.CodeCodeExhausted, apperr.CodeOf(err))
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestCreateTeamTwiceInSameHackathon(t *testing.T) {
	f := newFixture(t)
	h := f.hackathon(t, "H1")
	owner := f.user(t)
	f.team(t, h, owner, "A")

	_, err := f.teams.Create(f.ctx, NewTeam{HackathonID: h.ID, OwnerID: owner.ID, Name: "B"})
	assert.Equal(t, apperr.CodeAlreadyRegistered, apperr.CodeOf(err))
}

func TestJoinTeamCapacity(t *testing.T) {
	f := newFixture(t)
	h := f.hackathon(t, "H1")
	team := f.team(t, h, f.user(t), "T1")

	for i := 2; i <= models.MaxTeamSize; i++ {
		joined, err := f.teams.Join(f.ctx, team.Code, f.user(t).ID, models.RoleFrontend)
		require.NoError(t, err, "member %d", i)
		assert.Equal(t, team.ID, joined.ID)
	}

	_, err := f.teams.Join(f.ctx, team.Code, f.user(t).ID, models.RoleFrontend)
	assert.Equal(t, apperr.CodeTeamFull, apperr.CodeOf(err))
	assert.True(t, apperr.Is(err, apperr.KindCapacity))

	n, err := f.store.CountMembers(f.ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MaxTeamSize, n)
}

func TestJoinTeamAlreadyRegistered(t *testing.T) {
	f := newFixture(t)
	h1 := f.hackathon(t, "H1")
	h2 := f.hackathon(t, "H2")
	a := f.team(t, h1, f.user(t), "A")
	b := f.team(t, h1, f.user(t), "B")
	c := f.team(t, h2, f.user(t), "C")
	u := f.user(t)

	_, err := f.teams.Join(f.ctx, a.Code, u.ID, models.RoleDesigner)
	require.NoError(t, err)

	_, err = f.teams.Join(f.ctx, b.Code, u.ID, models.RoleDesigner)
	assert.Equal(t, apperr.CodeAlreadyRegistered, apperr.CodeOf(err))
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.teams.Join(f.ctx, c.Code, u.ID, models.RoleDesigner)
	assert.NoError(t, err)
}

func TestJoinTeamNotFound(t *testing.T) {
	f := newFixture(t)
	h := f.hackathon(t, "H1")
	lead := f.user(t)
	team := f.team(t, h, lead, "T1")

	_, err := f.teams.Join(f.ctx, "000000", f.user(t).ID, models.RoleBackend)
	assert.Equal(t, apperr.CodeTeamNotFound, apperr.CodeOf(err))

	_, err = f.teams.Leave(f.ctx, team.ID, lead.ID)
	require.NoError(t, err)
	_, err = f.teams.Join(f.ctx, team.Code, f.user(t).ID, models.RoleBackend)
	assert.Equal(t, apperr.CodeTeamNotFound, apperr.CodeOf(err), "inactive teams cannot be joined")
}

func TestLeaveTeamByLeadDeactivatesAndKeepsRows(t *testing.T) {
	f := newFixture(t)
	h := f.hackathon(t, "H1")
	lead := f.user(t)
	team := f.team(t, h, lead, "T1")
	member := f.user(t)
	_, err := f.teams.Join(f.ctx, team.Code, member.ID, models.RoleFrontend)
	require.NoError(t, err)

	res, err := f.teams.Leave(f.ctx, team.ID, lead.ID)
	require.NoError(t, err)
	assert.True(t, res.Deactivated)

	got, err := f.teams.Get(f.ctx, team.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	members, err := f.teams.Members(f.ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]bool{lead.ID: true, member.ID: true}, idSet(members))
}

func TestLeaveTeamByMemberRemovesOnlyThatRow(t *testing.T) {
	f := newFixture(t)
	h := f.hackathon(t, "H1")
	lead := f.user(t)
	team := f.team(t, h, lead, "T1")
	stay, leave := f.user(t), f.user(t)
	for _, u := range []*models.User{stay, leave} {
		_, err := f.teams.Join(f.ctx, team.Code, u.ID, models.RoleDesigner)
		require.NoError(t, err)
	}

	res, err := f.teams.Leave(f.ctx, team.ID, leave.ID)
	require.NoError(t, err)
	assert.False(t, res.Deactivated)

	got, err := f.teams.Get(f.ctx, team.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	members, err := f.teams.Members(f.ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]bool{lead.ID: true, stay.ID: true}, idSet(members))

	_, err = f.teams.Leave(f.ctx, team.ID, leave.ID)
	assert.Equal(t, apperr.CodeNotMember, apperr.CodeOf(err))
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	h := f.hackathon(t, "H1")
	lead := f.user(t)
	team := f.team(t, h, lead, "T1")
	member := f.user(t)
	_, err := f.teams.Join(f.ctx, team.Code, member.ID, models.RoleFrontend)
	require.NoError(t, err)

	removed, err := f.teams.RemoveMember(f.ctx, team.ID, lead.ID)
	require.NoError(t, err)
	assert.False(t, removed, "lead cannot be removed")

	_, err = f.teams.RemoveMemberAs(f.ctx, member.ID, team.ID, lead.ID)
	assert.Equal(t, apperr.CodeNotTeamLead, apperr.CodeOf(err))

	removed, err = f.teams.RemoveMemberAs(f.ctx, lead.ID, team.ID, member.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.teams.RemoveMember(f.ctx, team.ID, member.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

// brokenAudit fails every audit write, inside transactions too.
type brokenAudit struct {
	storage.Store
}

type brokenAuditRepo struct {
	storage.Repository
}

func (brokenAudit) LogAction(context.Context, storage.AuditEntry) error {
	return errors.New("audit_log unavailable")
}

func (brokenAuditRepo) LogAction(context.Context, storage.AuditEntry) error {
	return errors.New("audit_log unavailable")
}

func (b brokenAudit) InTx(ctx context.Context, fn func(storage.Repository) error) error {
	return b.Store.InTx(ctx, func(r storage.Repository) error { return fn(brokenAuditRepo{r}) })
}

func TestTeamOperationsSurviveAuditFailure(t *testing.T) {
	f := newFixture(t)
	h := f.hackathon(t, "H1")
	lead, member := f.user(t), f.user(t)
	teams := NewTeams(brokenAudit{f.store}, logger.Nop(), countingCodes())

	team, err := teams.Create(f.ctx, NewTeam{HackathonID: h.ID, OwnerID: lead.ID, Name: "T1", Role: models.RoleBackend})
	require.NoError(t, err)
	_, err = teams.Join(f.ctx, team.Code, member.ID, models.RoleDesigner)
	require.NoError(t, err)

	members, err := f.store.ListMembers(f.ctx, team.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	res, err := teams.Leave(f.ctx, team.ID, member.ID)
	require.NoError(t, err)
	assert.False(t, res.Deactivated)
	for _, e := range f.store.AuditLog() {
		assert.NotContains(t, []string{ActionTeamCreated, ActionTeamJoined, ActionTeamLeft}, e.Action)
	}
}
