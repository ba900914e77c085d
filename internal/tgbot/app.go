// Package tgbot is the Telegram transport. It turns updates into
// conversation inputs and service calls, and renders the results.
package tgbot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/conversation"
	"hackathon-bot/internal/export"
	"hackathon-bot/internal/i18n"
	"hackathon-bot/internal/logger"
	"hackathon-bot/internal/models"
	"hackathon-bot/internal/service"
	"hackathon-bot/internal/state"
)

const joinPrefix = "join_"

// API is the part of tgbotapi.BotAPI the transport uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Connect authorizes the bot token.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	b, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	b.Debug = false
	return b, nil
}

// Sender delivers plain text messages. It satisfies service.Sender.
type Sender struct {
	Bot API
}

func (s Sender) SendText(_ context.Context, chatID int64, text string) error {
	_, err := s.Bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// Mirror publishes export tables to an external spreadsheet.
type Mirror interface {
	PublishAll(ctx context.Context, b export.Builder) (map[string]int, error)
	URL() string
}

type Deps struct {
	Bot         API
	BotName     string
	Translator  *i18n.Translator
	Users       *service.Users
	Hackathons  *service.Hackathons
	Teams       *service.Teams
	Submissions *service.Submissions
	Broadcaster *service.Broadcaster
	Engine      *conversation.Engine
	Exports     export.Builder
	// Sheets is nil when the spreadsheet mirror is not configured.
	Sheets       Mirror
	Log          *logger.Logger
	Location     *time.Location
	Now          service.Clock
	BaseURL      string
	ExportSecret string
	Workers      int
}

type App struct {
	bot     API
	botName string
	tr      *i18n.Translator
	users   *service.Users
	hacks   *service.Hackathons
	teams   *service.Teams
	subs    *service.Submissions
	bc      *service.Broadcaster
	engine  *conversation.Engine
	exports export.Builder
	sheets  Mirror
	log     *logger.Logger
	loc     *time.Location
	now     service.Clock

	baseURL      string
	exportSecret string
	workers      int
}

func New(d Deps) *App {
	if d.Workers <= 0 {
		d.Workers = 1
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	return &App{
		bot:          d.Bot,
		botName:      d.BotName,
		tr:           d.Translator,
		users:        d.Users,
		hacks:        d.Hackathons,
		teams:        d.Teams,
		subs:         d.Submissions,
		bc:           d.Broadcaster,
		engine:       d.Engine,
		exports:      d.Exports,
		sheets:       d.Sheets,
		log:          d.Log,
		loc:          d.Location,
		now:          d.Now,
		baseURL:      strings.TrimRight(d.BaseURL, "/"),
		exportSecret: d.ExportSecret,
		workers:      d.Workers,
	}
}

// Run polls for updates until ctx is done. Updates of one user always land
// on the same worker, so a user's steps run strictly in order while
// different users proceed in parallel.
func (a *App) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := a.bot.GetUpdatesChan(u)
	defer a.bot.StopReceivingUpdates()

	shards := make([]chan tgbotapi.Update, a.workers)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan tgbotapi.Update, 64)
		wg.Add(1)
		go func(ch <-chan tgbotapi.Update) {
			defer wg.Done()
			for upd := range ch {
				a.handleUpdate(ctx, upd)
			}
		}(shards[i])
	}
	defer func() {
		for _, ch := range shards {
			close(ch)
		}
		wg.Wait()
	}()

	a.log.Info("telegram polling started", zap.Int("workers", a.workers))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			id := senderID(upd)
			if id == 0 {
				continue
			}
			select {
			case shards[shardFor(id, len(shards))] <- upd:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func senderID(upd tgbotapi.Update) int64 {
	switch {
	case upd.Message != nil && upd.Message.From != nil:
		return upd.Message.From.ID
	case upd.CallbackQuery != nil && upd.CallbackQuery.From != nil:
		return upd.CallbackQuery.From.ID
	}
	return 0
}

func shardFor(id int64, n int) int {
	return int(uint64(id) % uint64(n))
}

func (a *App) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("update handler panicked", zap.Int("update_id", upd.UpdateID), zap.Any("panic", r))
		}
	}()
	var err error
	switch {
	case upd.Message != nil:
		err = a.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		err = a.handleCallback(ctx, upd.CallbackQuery)
	}
	if err != nil {
		a.log.ForUser(senderID(upd)).WithError(err).Error("handle update")
	}
}

// ensure loads or creates the sender's user record.
func (a *App) ensure(ctx context.Context, from *tgbotapi.User) (*models.User, bool, error) {
	return a.users.Ensure(ctx, service.Profile{
		TelegramID: from.ID,
		Username:   from.UserName,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
		Language:   i18n.Match(from.LanguageCode),
	})
}

// ---------- Message handling ----------

func (a *App) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	if m.From == nil || m.From.IsBot {
		return nil
	}
	u, created, err := a.ensure(ctx, m.From)
	if err != nil {
		return a.failWith(m.Chat.ID, i18n.Match(m.From.LanguageCode), err)
	}
	if m.IsCommand() {
		return a.handleCommand(ctx, u, created, m)
	}
	in, ok := inputFrom(m)
	if !ok {
		return nil
	}
	res, err := a.engine.Advance(ctx, u.TelegramID, in)
	return a.reply(ctx, u, res, err)
}

// inputFrom maps a message to a conversation input. Stickers, locations and
// the like are ignored.
func inputFrom(m *tgbotapi.Message) (conversation.Input, bool) {
	switch {
	case m.Contact != nil:
		return conversation.Contact(m.Contact.PhoneNumber), true
	case m.Document != nil:
		return conversation.Upload(conversation.File{ID: m.Document.FileID, Name: m.Document.FileName, MIME: m.Document.MimeType}), true
	case len(m.Photo) > 0:
		largest := m.Photo[len(m.Photo)-1]
		return conversation.Upload(conversation.File{ID: largest.FileID, Name: "photo.jpg", MIME: "image/jpeg"}), true
	case m.Video != nil:
		return conversation.Upload(conversation.File{ID: m.Video.FileID, Name: orDefault(m.Video.FileName, "video.mp4"), MIME: m.Video.MimeType}), true
	case m.Audio != nil:
		return conversation.Upload(conversation.File{ID: m.Audio.FileID, Name: orDefault(m.Audio.FileName, "audio.mp3"), MIME: m.Audio.MimeType}), true
	case m.Voice != nil:
		return conversation.Upload(conversation.File{ID: m.Voice.FileID, Name: "voice.ogg", MIME: m.Voice.MimeType}), true
	case strings.TrimSpace(m.Text) != "":
		return conversation.Text(m.Text), true
	}
	return conversation.Input{}, false
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func (a *App) handleCommand(ctx context.Context, u *models.User, created bool, m *tgbotapi.Message) error {
	args := strings.TrimSpace(m.CommandArguments())
	switch m.Command() {
	case "start":
		return a.start(ctx, u, created, args)
	case "menu":
		return a.showMenu(ctx, u)
	case "help":
		return a.showHelp(ctx, u)
	case "cancel":
		res, err := a.engine.Cancel(ctx, u.TelegramID)
		return a.reply(ctx, u, res, err)
	case "continue":
		res, err := a.engine.Resume(ctx, u.TelegramID)
		if err == nil && res.Idle {
			return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(u.Language, "flow.none"), markup: backKeyboard(a.tr, u.Language)})
		}
		return a.reply(ctx, u, res, err)
	case "profile":
		return a.showProfile(ctx, u)
	case "teams":
		return a.showTeams(ctx, u)
	case "hackathons":
		return a.showHackathons(ctx, u)
	case "language":
		return a.showLanguages(u)
	case "join":
		if args == "" {
			return a.begin(ctx, u, state.TeamJoin{})
		}
		return a.joinByCode(ctx, u, args)
	}
	if handler, ok := a.adminCommands()[m.Command()]; ok {
		if err := a.users.RequireAdmin(ctx, u.TelegramID); err != nil {
			return a.failWith(u.TelegramID, u.Language, err)
		}
		return handler(ctx, u, args)
	}
	return a.SendText(ctx, u.TelegramID, a.tr.T(u.Language, "cmd.unknown"))
}

// start handles /start with an optional join_<code> deep link.
func (a *App) start(ctx context.Context, u *models.User, created bool, args string) error {
	if !u.ConsentGiven {
		if created {
			return a.showLanguages(u)
		}
		return a.showConsent(u)
	}
	if !u.RegistrationOK {
		return a.begin(ctx, u, state.Registration{})
	}
	if code, ok := strings.CutPrefix(args, joinPrefix); ok && code != "" {
		return a.joinByCode(ctx, u, code)
	}
	return a.showMenu(ctx, u)
}

// joinByCode runs the join flow with the code and the default role filled in.
func (a *App) joinByCode(ctx context.Context, u *models.User, code string) error {
	res, err := a.engine.Begin(ctx, u.TelegramID, state.TeamJoin{})
	if err != nil || res.Done {
		return a.reply(ctx, u, res, err)
	}
	res, err = a.engine.Advance(ctx, u.TelegramID, conversation.Text(code))
	if err != nil || res.Done || res.Err != nil {
		return a.reply(ctx, u, res, err)
	}
	res, err = a.engine.Advance(ctx, u.TelegramID, conversation.Choose(string(models.RoleBackend)))
	return a.reply(ctx, u, res, err)
}

func (a *App) begin(ctx context.Context, u *models.User, p state.Payload) error {
	res, err := a.engine.Begin(ctx, u.TelegramID, p)
	return a.reply(ctx, u, res, err)
}

// reply renders an engine result. Internal errors become a generic apology.
func (a *App) reply(ctx context.Context, u *models.User, res conversation.Result, err error) error {
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			a.log.ForUser(u.TelegramID).ForFlow(string(res.Flow), res.Step).WithError(err).Error("conversation failed")
		}
		return a.failWith(u.TelegramID, u.Language, err)
	}
	if res.Idle && !res.Cancelled {
		return a.showMenu(ctx, u)
	}
	return a.sendOut(u.TelegramID, compose(a.tr, a.botName, u.Language, res))
}

// ---------- Callback handling ----------

func (a *App) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	// ack
	_, _ = a.bot.Request(tgbotapi.NewCallback(q.ID, ""))
	if q.From == nil {
		return nil
	}
	u, _, err := a.ensure(ctx, q.From)
	if err != nil {
		return a.failWith(q.From.ID, i18n.Match(q.From.LanguageCode), err)
	}
	data := q.Data
	switch {
	case strings.HasPrefix(data, prefixChoice):
		res, err := a.engine.Advance(ctx, u.TelegramID, conversation.Choose(strings.TrimPrefix(data, prefixChoice)))
		return a.reply(ctx, u, res, err)
	case strings.HasPrefix(data, prefixUser):
		action, args := splitCallback(data, prefixUser)
		return a.handleUserCallback(ctx, u, action, args)
	case strings.HasPrefix(data, prefixAdmin):
		if err := a.users.RequireAdmin(ctx, u.TelegramID); err != nil {
			return a.failWith(u.TelegramID, u.Language, err)
		}
		action, args := splitCallback(data, prefixAdmin)
		return a.handleAdminCallback(ctx, u, action, args)
	}
	return nil
}

// ---------- Sending ----------

// SendText sends a plain message.
func (a *App) SendText(_ context.Context, chatID int64, text string) error {
	_, err := a.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (a *App) sendOut(chatID int64, o outgoing) error {
	_, err := a.bot.Send(o.message(chatID))
	return err
}

// failWith tells the user what went wrong. Only internal errors are
// returned for logging; domain errors are fully handled by the message.
func (a *App) failWith(chatID int64, lang models.Language, err error) error {
	sendErr := a.sendOut(chatID, outgoing{text: a.tr.Error(lang, err), markup: backKeyboard(a.tr, lang)})
	if apperr.KindOf(err) == apperr.KindInternal {
		return err
	}
	return sendErr
}
