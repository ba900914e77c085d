package i18n

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/models"
)

func TestMatch(t *testing.T) {
	cases := map[string]models.Language{
		"":      models.LangUz,
		"uz":    models.LangUz,
		"ru-RU": models.LangRu,
		"ru":    models.LangRu,
		"en-US": models.LangEn,
		"de":    models.LangUz,
	}
	for in, want := range cases {
		assert.Equal(t, want, Match(in), in)
	}
}

func TestCatalogsLoad(t *testing.T) {
	tr, err := New()
	require.NoError(t, err)

	for _, lang := range models.Languages {
		msgs, err := load(lang)
		require.NoError(t, err)
		assert.Len(t, msgs, len(tr.keys), string(lang))
	}
}

func TestT(t *testing.T) {
	tr, err := New()
	require.NoError(t, err)

	assert.Equal(t, "✅ You joined team T1!", tr.T(models.LangEn, "team.joined", "T1"))
	assert.Contains(t, tr.T(models.LangRu, "team.joined", "T1"), "T1")
	assert.NotEqual(t, tr.T(models.LangRu, "btn.menu"), tr.T(models.LangEn, "btn.menu"))
	assert.Equal(t, "no.such.key", tr.T(models.LangEn, "no.such.key"))
	assert.False(t, tr.Has("no.such.key"))
	assert.Equal(t, tr.T(models.LangUz, "btn.menu"), tr.T(models.Language("kk"), "btn.menu"))
}

func TestErrorMessages(t *testing.T) {
	tr, err := New()
	require.NoError(t, err)

	codes := []string{
		apperr.CodeInvalidDate, apperr.CodeInvalidDateTime, apperr.CodeInvalidPINFL, apperr.CodeInvalidURL,
		apperr.CodeInvalidEmail, apperr.CodeInvalidPhone, apperr.CodeInvalidChoice, apperr.CodeInvalidNumber,
		apperr.CodeInvalidStatus, apperr.CodeEmptyInput, apperr.CodeUnexpectedInput, apperr.CodeUserNotFound,
		apperr.CodeTeamNotFound, apperr.CodeStageNotFound, apperr.CodeHackathonNotFound, apperr.CodeSubmissionMissing,
		apperr.CodeNotMember, apperr.CodeTeamFull, apperr.CodeAlreadyRegistered, apperr.CodeCodeExhausted,
		apperr.CodeDeadlinePassed, apperr.CodeConsentRequired, apperr.CodeNotRegistered, apperr.CodeAdminOnly,
		apperr.CodeNotTeamLead, apperr.CodeInternal,
	}
	for _, c := range codes {
		assert.True(t, tr.Has("err."+c), c)
	}

	assert.Contains(t, tr.Error(models.LangEn, apperr.Validation(apperr.CodeInvalidPINFL, "bad")), "14")
	assert.Equal(t, tr.T(models.LangEn, "err.internal"), tr.Error(models.LangEn, errors.New("boom")))
}
