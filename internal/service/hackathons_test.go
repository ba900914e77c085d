package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/models"
)

func TestActivateLeavesExactlyOneActiveStage(t *testing.T) {
	f := newFixture(t)
	h := f.hackathon(t, "H1")
	other := f.hackathon(t, "H2")
	a := f.stage(t, h, 1, fixedNow.Add(24*time.Hour))
	b := f.stage(t, h, 2, fixedNow.Add(48*time.Hour))
	x := f.stage(t, other, 1, fixedNow.Add(24*time.Hour))

	for _, id := range []uuid.UUID{a.ID, x.ID, b.ID} {
		ok, err := f.hackathons.Activate(f.ctx, id, uuid.Nil)
		require.NoError(t, err)
		require.True(t, ok)
	}

	stages, err := f.hackathons.Stages(f.ctx, h.ID)
	require.NoError(t, err)
	var active []uuid.UUID
	for _, st := range stages {
		if st.IsActive {
			active = append(active, st.ID)
		}
	}
	assert.Equal(t, []uuid.UUID{b.ID}, active)

	current, err := f.hackathons.ActiveStage(f.ctx, other.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, x.ID, current.ID, "other hackathons are untouched")
}

func TestActivateUnknownStage(t *testing.T) {
	f := newFixture(t)
	ok, err := f.hackathons.Activate(f.ctx, uuid.New(), uuid.Nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetStatusForwardOnly(t *testing.T) {
	f := newFixture(t)
	h, err := f.hackathons.Create(f.ctx, NewHackathon{Name: models.Localized{Default: "H"}, Status: models.StatusDraft})
	require.NoError(t, err)

	h, err = f.hackathons.SetStatus(f.ctx, h.ID, models.StatusActive, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, h.Status)

	_, err = f.hackathons.SetStatus(f.ctx, h.ID, models.StatusOpen, uuid.Nil)
	assert.Equal(t, apperr.CodeInvalidStatus, apperr.CodeOf(err))
	_, err = f.hackathons.SetStatus(f.ctx, h.ID, models.StatusActive, uuid.Nil)
	assert.Error(t, err)

	_, err = f.hackathons.SetStatus(f.ctx, uuid.New(), models.StatusFinished, uuid.Nil)
	assert.Equal(t, apperr.CodeHackathonNotFound, apperr.CodeOf(err))
}

func TestVisibleHackathons(t *testing.T) {
	f := newFixture(t)
	open := f.hackathon(t, "Open")
	_, err := f.hackathons.Create(f.ctx, NewHackathon{Name: models.Localized{Default: "Draft"}, Status: models.StatusDraft})
	require.NoError(t, err)

	visible, err := f.hackathons.Visible(f.ctx)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, open.ID, visible[0].ID)
}

func TestCreateStageValidation(t *testing.T) {
	f := newFixture(t)
	h := f.hackathon(t, "H1")
	f.stage(t, h, 1, fixedNow.Add(time.Hour))

	_, err := f.hackathons.CreateStage(f.ctx, NewStage{HackathonID: h.ID, Number: 1, Deadline: fixedNow})
	assert.Equal(t, apperr.CodeInvalidNumber, apperr.CodeOf(err))
	_, err = f.hackathons.CreateStage(f.ctx, NewStage{HackathonID: uuid.New(), Number: 1, Deadline: fixedNow})
	assert.Equal(t, apperr.CodeHackathonNotFound, apperr.CodeOf(err))
	_, err = f.hackathons.CreateStage(f.ctx, NewStage{HackathonID: h.ID, Number: 0, Deadline: fixedNow})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
