package tgbot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackathon-bot/internal/conversation"
	"hackathon-bot/internal/export"
	"hackathon-bot/internal/i18n"
	"hackathon-bot/internal/logger"
	"hackathon-bot/internal/models"
	"hackathon-bot/internal/service"
	"hackathon-bot/internal/state"
	"hackathon-bot/internal/storage/memory"
)

const adminTG int64 = 1

type fakeBot struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeBot) StopReceivingUpdates() {}

func (f *fakeBot) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	msg, ok := f.sent[len(f.sent)-1].(tgbotapi.MessageConfig)
	require.True(t, ok, "last sent is %T", f.sent[len(f.sent)-1])
	return msg
}

func (f *fakeBot) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

type fixture struct {
	ctx   context.Context
	app   *App
	bot   *fakeBot
	tr    *i18n.Translator
	users *service.Users
	hacks *service.Hackathons
	teams *service.Teams
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	log := logger.Nop()
	store := memory.New()
	bot := &fakeBot{}
	tr, err := i18n.New()
	require.NoError(t, err)

	f := &fixture{ctx: context.Background(), bot: bot, tr: tr}
	f.users = service.NewUsers(store, log, map[int64]bool{adminTG: true}, "1.0", clock)
	f.hacks = service.NewHackathons(store, log)
	f.teams = service.NewTeams(store, log, nil)
	subs := service.NewSubmissions(store, log)
	bc := service.NewBroadcaster(store, Sender{Bot: bot}, log, 0)
	engine := conversation.New(conversation.Deps{
		States:      state.NewMemoryStore(time.Hour).WithClock(clock),
		Users:       f.users,
		Hackathons:  f.hacks,
		Teams:       f.teams,
		Submissions: subs,
		Broadcaster: bc,
		Log:         log,
		Now:         clock,
	})
	f.app = New(Deps{
		Bot:          bot,
		BotName:      "hackbot",
		Translator:   tr,
		Users:        f.users,
		Hackathons:   f.hacks,
		Teams:        f.teams,
		Submissions:  subs,
		Broadcaster:  bc,
		Engine:       engine,
		Exports:      export.New(store, time.UTC),
		Log:          log,
		Now:          clock,
		BaseURL:      "https://bot.example.com",
		ExportSecret: "secret",
	})
	return f
}

func from(id int64, lang string) *tgbotapi.User {
	return &tgbotapi.User{ID: id, FirstName: "U", LanguageCode: lang}
}

func (f *fixture) text(t *testing.T, id int64, lang, text string) {
	t.Helper()
	m := &tgbotapi.Message{From: from(id, lang), Chat: &tgbotapi.Chat{ID: id}, Text: text}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	require.NoError(t, f.app.handleMessage(f.ctx, m))
}

func (f *fixture) press(t *testing.T, id int64, lang, data string) {
	t.Helper()
	require.NoError(t, f.app.handleCallback(f.ctx, &tgbotapi.CallbackQuery{ID: "q", From: from(id, lang), Data: data}))
}

// member creates a consented user with a finished profile.
func (f *fixture) member(t *testing.T, id int64, lang models.Language) *models.User {
	t.Helper()
	u, _, err := f.users.Ensure(f.ctx, service.Profile{TelegramID: id, FirstName: "U", Language: lang})
	require.NoError(t, err)
	require.NoError(t, f.users.SetConsent(f.ctx, u, true))
	require.NoError(t, f.users.CompleteRegistration(f.ctx, u))
	return u
}

func TestOnboarding(t *testing.T) {
	f := newFixture(t)

	f.text(t, 42, "en", "/start")
	msg := f.bot.last(t)
	assert.Equal(t, f.tr.T(models.LangEn, "lang.choose"), msg.Text)
	kb := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Equal(t, "u:lang:ru", *kb.InlineKeyboard[0][1].CallbackData)

	f.press(t, 42, "en", "u:lang:ru")
	assert.Equal(t, f.tr.T(models.LangRu, "consent.offer"), f.bot.last(t).Text)

	f.press(t, 42, "en", "u:consent:yes")
	assert.Contains(t, f.bot.texts(), f.tr.T(models.LangRu, "consent.accepted"))
	assert.Equal(t, f.tr.T(models.LangRu, "reg.first_name"), f.bot.last(t).Text)

	f.text(t, 42, "en", "Ali")
	assert.Equal(t, f.tr.T(models.LangRu, "reg.last_name"), f.bot.last(t).Text)

	f.text(t, 42, "en", "/cancel")
	assert.Equal(t, f.tr.T(models.LangRu, "flow.cancelled"), f.bot.last(t).Text)
}

func TestDeclinedConsentBlocksFlows(t *testing.T) {
	f := newFixture(t)
	f.text(t, 43, "", "/start")
	f.press(t, 43, "", "u:consent:no")
	assert.Equal(t, f.tr.T(models.LangUz, "consent.declined"), f.bot.last(t).Text)

	f.press(t, 43, "", "u:register")
	assert.Equal(t, f.tr.T(models.LangUz, "err.consent_required"), f.bot.last(t).Text)
}

func TestAdminCommandsRequireAdmin(t *testing.T) {
	f := newFixture(t)
	f.member(t, 7, models.LangEn)

	f.text(t, 7, "en", "/stats")
	assert.Equal(t, f.tr.T(models.LangEn, "err.admin_only"), f.bot.last(t).Text)

	f.press(t, 7, "en", "a:menu")
	assert.Equal(t, f.tr.T(models.LangEn, "err.admin_only"), f.bot.last(t).Text)
}

func TestAdminExports(t *testing.T) {
	f := newFixture(t)
	f.member(t, adminTG, models.LangEn)

	f.text(t, adminTG, "en", "/export teams")
	f.bot.mu.Lock()
	doc, ok := f.bot.sent[len(f.bot.sent)-1].(tgbotapi.DocumentConfig)
	f.bot.mu.Unlock()
	require.True(t, ok)
	assert.Contains(t, doc.Caption, "teams")

	f.text(t, adminTG, "en", "/export_link users")
	assert.Contains(t, f.bot.last(t).Text, "https://bot.example.com/export/users.csv?exp=")

	f.text(t, adminTG, "en", "/export_sheets")
	assert.Equal(t, f.tr.T(models.LangEn, "admin.sheets_disabled"), f.bot.last(t).Text)

	f.text(t, adminTG, "en", "/activate_stage nope")
	assert.Contains(t, f.bot.last(t).Text, "/activate_stage <stage_id>")
}

func TestCreateTeamAndJoinByDeepLink(t *testing.T) {
	f := newFixture(t)
	lead := f.member(t, 100, models.LangEn)
	f.member(t, 101, models.LangEn)
	h, err := f.hacks.Create(f.ctx, service.NewHackathon{Name: models.Localized{Default: "H1"}})
	require.NoError(t, err)

	f.press(t, 100, "en", callback(prefixUser, "tc", shortID(h.ID)))
	assert.Equal(t, f.tr.T(models.LangEn, "team.name"), f.bot.last(t).Text)
	f.text(t, 100, "en", "T1")
	f.press(t, 100, "en", "c:"+string(models.RoleBackend))
	f.text(t, 100, "en", "AI")
	f.press(t, 100, "en", "c:skip")
	assert.Contains(t, f.bot.last(t).Text, "https://t.me/hackbot?start=join_")

	mine, err := f.teams.ForUser(f.ctx, lead.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	f.text(t, 101, "en", "/start join_"+mine[0].Code)
	assert.Equal(t, f.tr.T(models.LangEn, "team.joined", "T1"), f.bot.last(t).Text)

	members, err := f.teams.Members(f.ctx, mine[0].ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	joiner := members[0]
	if joiner.IsLead {
		joiner = members[1]
	}

	f.press(t, 100, "en", callback(prefixUser, "team", shortID(mine[0].ID)))
	kb := f.bot.last(t).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	var datas []string
	for _, r := range kb.InlineKeyboard {
		for _, b := range r {
			datas = append(datas, *b.CallbackData)
		}
	}
	assert.Contains(t, datas, callback(prefixUser, "rm", shortID(mine[0].ID), shortID(joiner.UserID)))
}
