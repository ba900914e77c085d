package tgbot

import (
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/conversation"
	"hackathon-bot/internal/i18n"
	"hackathon-bot/internal/models"
	"hackathon-bot/internal/state"
)

func translator(t *testing.T) *i18n.Translator {
	t.Helper()
	tr, err := i18n.New()
	require.NoError(t, err)
	return tr
}

func TestShortIDFitsTwoPerCallback(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	data := callback(prefixUser, "rm", shortID(a), shortID(b))
	assert.LessOrEqual(t, len(data), maxCallbackData)

	action, args := splitCallback(data, prefixUser)
	assert.Equal(t, "rm", action)
	ids, err := parseIDs(args)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)

	_, err = parseShortID("not-an-id")
	assert.Error(t, err)
}

func TestChoiceKeyboard(t *testing.T) {
	tr := translator(t)
	kb := choiceKeyboard(tr, models.LangEn, []conversation.Choice{
		{Value: "male", Label: "choice.male"},
		{Value: "female", Label: "choice.female"},
		{Value: uuid.NewString(), Label: "Hack Night", Literal: true},
		{Value: strings.Repeat("x", 80), Label: "too long", Literal: true},
	})
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Len(t, kb.InlineKeyboard[0], 2)
	assert.Equal(t, "👨 Male", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "c:male", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "Hack Night", kb.InlineKeyboard[1][0].Text)
	assert.Len(t, kb.InlineKeyboard[1], 1)
}

func TestComposeStep(t *testing.T) {
	tr := translator(t)
	res := conversation.Result{
		Flow:    state.FlowRegistration,
		Step:    conversation.FieldPINFL,
		Prompt:  "reg.pinfl",
		Err:     apperr.Validation(apperr.CodeInvalidPINFL, "bad"),
		Choices: nil,
	}
	out := compose(tr, "hackbot", models.LangEn, res)
	assert.Equal(t, tr.T(models.LangEn, "err.invalid_pinfl")+"\n\n"+tr.T(models.LangEn, "reg.pinfl"), out.text)
	kb, ok := out.markup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	last := kb.InlineKeyboard[len(kb.InlineKeyboard)-1][0]
	assert.Equal(t, "u:cancel", *last.CallbackData)
}

func TestComposeContactStep(t *testing.T) {
	out := compose(translator(t), "", models.LangRu, conversation.Result{Prompt: "reg.phone", RequestContact: true})
	kb, ok := out.markup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.True(t, kb.Keyboard[0][0].RequestContact)
	assert.True(t, kb.OneTimeKeyboard)
}

func TestComposeTeamCreatedAddsInvite(t *testing.T) {
	tr := translator(t)
	res := conversation.Result{
		Flow:   state.FlowTeamCreate,
		Done:   true,
		Prompt: "team.created",
		Args:   []any{"T1", "123456"},
		Team:   &models.Team{Name: "T1", Code: "123456"},
	}
	out := compose(tr, "hackbot", models.LangEn, res)
	assert.Contains(t, out.text, "123456")
	assert.Contains(t, out.text, "https://t.me/hackbot?start=join_123456")
	_, ok := out.markup.(tgbotapi.InlineKeyboardMarkup)
	assert.True(t, ok)

	res.Err = errors.New("boom")
	assert.NotContains(t, compose(tr, "hackbot", models.LangEn, res).text, "t.me")
}

func TestComposeDiscarded(t *testing.T) {
	tr := translator(t)
	out := compose(tr, "", models.LangUz, conversation.Result{Discarded: state.FlowTeamJoin, Prompt: "reg.first_name"})
	assert.True(t, strings.HasPrefix(out.text, tr.T(models.LangUz, "flow.discarded")))
}

func TestShardFor(t *testing.T) {
	for _, id := range []int64{1, 42, 7_000_000_001, -5} {
		s := shardFor(id, 8)
		assert.GreaterOrEqual(t, s, 0)
		assert.Less(t, s, 8)
		assert.Equal(t, s, shardFor(id, 8))
	}
}

func TestInputFrom(t *testing.T) {
	in, ok := inputFrom(&tgbotapi.Message{Contact: &tgbotapi.Contact{PhoneNumber: "+998901234567"}})
	require.True(t, ok)
	assert.Equal(t, conversation.InputContact, in.Kind)

	in, ok = inputFrom(&tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "big"}}})
	require.True(t, ok)
	assert.Equal(t, conversation.InputFile, in.Kind)
	assert.Equal(t, "big", in.File.ID)
	assert.Equal(t, "image/jpeg", in.File.MIME)

	in, ok = inputFrom(&tgbotapi.Message{Document: &tgbotapi.Document{FileID: "d", FileName: "deck.pdf", MimeType: "application/pdf"}})
	require.True(t, ok)
	assert.Equal(t, "deck.pdf", in.File.Name)

	in, ok = inputFrom(&tgbotapi.Message{Voice: &tgbotapi.Voice{FileID: "v", MimeType: "audio/ogg"}})
	require.True(t, ok)
	assert.Equal(t, "voice.ogg", in.File.Name)

	_, ok = inputFrom(&tgbotapi.Message{Text: "   "})
	assert.False(t, ok)
}
