package tgbot

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/export"
	"hackathon-bot/internal/models"
	"hackathon-bot/internal/server"
	"hackathon-bot/internal/state"
	"hackathon-bot/internal/util"
)

const (
	exportLinkTTL      = 24 * time.Hour
	maxListedSubmitted = 50
)

type adminHandler func(ctx context.Context, u *models.User, args string) error

// adminCommands maps operator commands to handlers. The caller has already
// checked admin rights.
func (a *App) adminCommands() map[string]adminHandler {
	return map[string]adminHandler{
		"admin":            func(_ context.Context, u *models.User, _ string) error { return a.showAdminMenu(u) },
		"stats":            func(ctx context.Context, u *models.User, _ string) error { return a.showStats(ctx, u) },
		"hackathons_all":   func(ctx context.Context, u *models.User, _ string) error { return a.showAdminHackathons(ctx, u) },
		"broadcast":        func(ctx context.Context, u *models.User, _ string) error { return a.begin(ctx, u, state.AdminBroadcast{}) },
		"create_hackathon": func(ctx context.Context, u *models.User, _ string) error { return a.begin(ctx, u, state.AdminHackathon{}) },
		"create_stage":     a.cmdCreateStage,
		"activate_stage":   a.cmdActivateStage,
		"hackathon_status": a.cmdHackathonStatus,
		"notify_hackathon": a.cmdNotifyHackathon,
		"addadmin":         func(ctx context.Context, u *models.User, args string) error { return a.cmdSetAdmin(ctx, u, args, true) },
		"removeadmin":      func(ctx context.Context, u *models.User, args string) error { return a.cmdSetAdmin(ctx, u, args, false) },
		"export":           a.cmdExport,
		"export_link":      a.cmdExportLink,
		"export_sheets":    func(ctx context.Context, u *models.User, _ string) error { return a.exportSheets(ctx, u) },
		"submissions":      func(ctx context.Context, u *models.User, _ string) error { return a.showSubmissions(ctx, u) },
	}
}

func (a *App) handleAdminCallback(ctx context.Context, u *models.User, action string, args []string) error {
	switch action {
	case "menu":
		return a.showAdminMenu(u)
	case "stats":
		return a.showStats(ctx, u)
	case "hacks":
		return a.showAdminHackathons(ctx, u)
	case "create_h":
		return a.begin(ctx, u, state.AdminHackathon{})
	case "create_s":
		return a.begin(ctx, u, state.AdminStage{})
	case "broadcast":
		return a.begin(ctx, u, state.AdminBroadcast{})
	case "subs":
		return a.showSubmissions(ctx, u)
	case "sheets":
		return a.exportSheets(ctx, u)
	case "export":
		if len(args) == 0 {
			return a.showExportKinds(u)
		}
		return a.cmdExport(ctx, u, args[0])
	case "st":
		if len(args) == 2 {
			id, err := parseShortID(args[0])
			if err != nil {
				return nil
			}
			return a.setStatus(ctx, u, id, args[1])
		}
		return nil
	}

	ids, err := parseIDs(args)
	if err != nil || len(ids) == 0 {
		a.log.WithError(err).Warn("malformed admin callback")
		return nil
	}
	switch action {
	case "h":
		return a.showAdminHackathon(ctx, u, ids[0])
	case "act":
		return a.activate(ctx, u, ids[0])
	case "ns":
		return a.begin(ctx, u, state.AdminStage{HackathonID: ids[0]})
	case "nb":
		return a.begin(ctx, u, state.AdminBroadcast{HackathonID: ids[0]})
	}
	return nil
}

// ---------- Screens ----------

func (a *App) showAdminMenu(u *models.User) error {
	lang := u.Language
	rows := [][]tgbotapi.InlineKeyboardButton{
		row(
			button(a.tr.T(lang, "btn.a_create_h"), callback(prefixAdmin, "create_h")),
			button(a.tr.T(lang, "btn.a_create_s"), callback(prefixAdmin, "create_s")),
		),
		row(
			button(a.tr.T(lang, "btn.a_hackathons"), callback(prefixAdmin, "hacks")),
			button(a.tr.T(lang, "btn.a_stats"), callback(prefixAdmin, "stats")),
		),
		row(
			button(a.tr.T(lang, "btn.a_broadcast"), callback(prefixAdmin, "broadcast")),
			button(a.tr.T(lang, "btn.a_submissions"), callback(prefixAdmin, "subs")),
		),
		row(button(a.tr.T(lang, "btn.a_export"), callback(prefixAdmin, "export"))),
	}
	if a.sheets != nil {
		rows = append(rows, row(button(a.tr.T(lang, "btn.a_sheets"), callback(prefixAdmin, "sheets"))))
	}
	rows = append(rows, row(button(a.tr.T(lang, "btn.menu"), callback(prefixUser, "menu"))))
	return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(lang, "admin.menu"), markup: keyboard(rows...)})
}

func (a *App) showStats(ctx context.Context, u *models.User) error {
	st, err := a.users.Stats(ctx)
	if err != nil {
		return a.failWith(u.TelegramID, u.Language, err)
	}
	text := a.tr.T(u.Language, "admin.stats", st.TotalUsers, st.ConsentedUsers, st.ActiveTeams, st.ActiveHackathons, st.Submissions)
	return a.sendOut(u.TelegramID, outgoing{text: text, markup: adminBack(a, u.Language)})
}

func adminBack(a *App, lang models.Language) tgbotapi.InlineKeyboardMarkup {
	return keyboard(row(button(a.tr.T(lang, "btn.back"), callback(prefixAdmin, "menu"))))
}

func (a *App) showAdminHackathons(ctx context.Context, u *models.User) error {
	lang := u.Language
	hs, err := a.hacks.List(ctx)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}
	if len(hs) == 0 {
		return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(lang, "hack.none"), markup: adminBack(a, lang)})
	}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, h := range hs {
		rows = append(rows, row(button(fmt.Sprintf("%s [%s]", h.Name.Default, h.Status), callback(prefixAdmin, "h", shortID(h.ID)))))
	}
	rows = append(rows, row(button(a.tr.T(lang, "btn.back"), callback(prefixAdmin, "menu"))))
	return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(lang, "hack.list"), markup: keyboard(rows...)})
}

func (a *App) showAdminHackathon(ctx context.Context, u *models.User, id uuid.UUID) error {
	lang := u.Language
	h, err := a.hacks.Get(ctx, id)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}
	stages, err := a.hacks.Stages(ctx, id)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}

	lines := []string{
		fmt.Sprintf("🏆 %s [%s]", h.Name.Default, h.Status),
		"id: " + h.ID.String(),
		a.tr.T(lang, "hack.dates", util.FormatDate(h.StartsAt), util.FormatDate(h.EndsAt)),
	}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, st := range stages {
		mark := ""
		if st.IsActive {
			mark = " ✅"
		}
		lines = append(lines, fmt.Sprintf("%d. %s · %s%s\n   id: %s",
			st.Number, st.Name.Default, util.FormatDateTime(st.Deadline, a.loc), mark, st.ID))
		if !st.IsActive {
			rows = append(rows, row(button(a.tr.T(lang, "btn.a_activate", st.Number), callback(prefixAdmin, "act", shortID(st.ID)))))
		}
	}
	var next []tgbotapi.InlineKeyboardButton
	for _, to := range []models.HackathonStatus{models.StatusOpen, models.StatusActive, models.StatusFinished, models.StatusArchived} {
		if h.Status.CanTransition(to) {
			next = append(next, button("→ "+string(to), callback(prefixAdmin, "st", shortID(h.ID), string(to))))
		}
	}
	for i := 0; i < len(next); i += 2 {
		end := i + 2
		if end > len(next) {
			end = len(next)
		}
		rows = append(rows, row(next[i:end]...))
	}
	rows = append(rows,
		row(
			button(a.tr.T(lang, "btn.a_add_stage"), callback(prefixAdmin, "ns", shortID(h.ID))),
			button(a.tr.T(lang, "btn.a_notify"), callback(prefixAdmin, "nb", shortID(h.ID))),
		),
		row(button(a.tr.T(lang, "btn.back"), callback(prefixAdmin, "hacks"))),
	)
	return a.sendOut(u.TelegramID, outgoing{text: strings.Join(lines, "\n"), markup: keyboard(rows...)})
}

func (a *App) showExportKinds(u *models.User) error {
	lang := u.Language
	var buttons []tgbotapi.InlineKeyboardButton
	for _, k := range export.Kinds {
		buttons = append(buttons, button(string(k), callback(prefixAdmin, "export", string(k))))
	}
	kb := keyboard(row(buttons[:2]...), row(buttons[2:]...), row(button(a.tr.T(lang, "btn.back"), callback(prefixAdmin, "menu"))))
	return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(lang, "admin.export_pick"), markup: kb})
}

func (a *App) showSubmissions(ctx context.Context, u *models.User) error {
	lang := u.Language
	subs, err := a.subs.All(ctx)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}
	if len(subs) == 0 {
		return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(lang, "admin.no_submissions"), markup: adminBack(a, lang)})
	}
	if len(subs) > maxListedSubmitted {
		subs = subs[:maxListedSubmitted]
	}
	lines := []string{a.tr.T(lang, "admin.submissions", len(subs))}
	for _, s := range subs {
		content := s.Content
		if s.Type == models.SubmissionFile {
			content = "📎 " + s.FileName
		}
		lines = append(lines, fmt.Sprintf("%s · %s #%d · %s · %s",
			s.HackathonName, s.TeamName, s.StageNumber, content, util.FormatDateTime(s.SubmittedAt, a.loc)))
	}
	return a.sendOut(u.TelegramID, outgoing{text: strings.Join(lines, "\n"), markup: adminBack(a, lang)})
}

// ---------- Commands ----------

func (a *App) usage(u *models.User, cmd string) error {
	return a.SendText(context.Background(), u.TelegramID, a.tr.T(u.Language, "admin.usage", cmd))
}

func (a *App) cmdCreateStage(ctx context.Context, u *models.User, args string) error {
	if args == "" {
		return a.begin(ctx, u, state.AdminStage{})
	}
	id, err := uuid.Parse(args)
	if err != nil {
		return a.usage(u, "/create_stage [hackathon_id]")
	}
	return a.begin(ctx, u, state.AdminStage{HackathonID: id})
}

func (a *App) cmdActivateStage(ctx context.Context, u *models.User, args string) error {
	id, err := uuid.Parse(args)
	if err != nil {
		return a.usage(u, "/activate_stage <stage_id>")
	}
	return a.activate(ctx, u, id)
}

func (a *App) activate(ctx context.Context, u *models.User, stageID uuid.UUID) error {
	found, err := a.hacks.Activate(ctx, stageID, u.ID)
	if err != nil {
		return a.failWith(u.TelegramID, u.Language, err)
	}
	if !found {
		return a.failWith(u.TelegramID, u.Language, apperr.NotFound(apperr.CodeStageNotFound, "stage not found"))
	}
	st, err := a.hacks.Stage(ctx, stageID)
	if err != nil {
		return a.failWith(u.TelegramID, u.Language, err)
	}
	return a.sendOut(u.TelegramID, outgoing{
		text:   a.tr.T(u.Language, "admin.activated", st.Number, st.Name.Default),
		markup: keyboard(row(button(a.tr.T(u.Language, "btn.back"), callback(prefixAdmin, "h", shortID(st.HackathonID))))),
	})
}

func (a *App) cmdHackathonStatus(ctx context.Context, u *models.User, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return a.usage(u, "/hackathon_status <hackathon_id> <STATUS>")
	}
	id, err := uuid.Parse(fields[0])
	if err != nil {
		return a.usage(u, "/hackathon_status <hackathon_id> <STATUS>")
	}
	return a.setStatus(ctx, u, id, fields[1])
}

func (a *App) setStatus(ctx context.Context, u *models.User, id uuid.UUID, raw string) error {
	to, ok := models.ParseHackathonStatus(raw)
	if !ok {
		return a.failWith(u.TelegramID, u.Language, apperr.Validation(apperr.CodeInvalidStatus, "unknown status "+raw))
	}
	h, err := a.hacks.SetStatus(ctx, id, to, u.ID)
	if err != nil {
		return a.failWith(u.TelegramID, u.Language, err)
	}
	return a.sendOut(u.TelegramID, outgoing{
		text:   a.tr.T(u.Language, "admin.status_set", h.Name.Default, string(h.Status)),
		markup: keyboard(row(button(a.tr.T(u.Language, "btn.back"), callback(prefixAdmin, "h", shortID(h.ID))))),
	})
}

func (a *App) cmdNotifyHackathon(ctx context.Context, u *models.User, args string) error {
	rawID, text, _ := strings.Cut(args, " ")
	id, err := uuid.Parse(rawID)
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		return a.usage(u, "/notify_hackathon <hackathon_id> <text>")
	}
	rep, err := a.bc.ToHackathon(ctx, id, text, u.ID)
	if err != nil {
		return a.failWith(u.TelegramID, u.Language, err)
	}
	return a.SendText(ctx, u.TelegramID, a.tr.T(u.Language, "admin.b_done", rep.Sent, rep.Failed))
}

func (a *App) cmdSetAdmin(ctx context.Context, u *models.User, args string, grant bool) error {
	target, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		if grant {
			return a.usage(u, "/addadmin <telegram_id>")
		}
		return a.usage(u, "/removeadmin <telegram_id>")
	}
	if err := a.users.SetAdmin(ctx, u.TelegramID, target, grant); err != nil {
		return a.failWith(u.TelegramID, u.Language, err)
	}
	key := "admin.admin_added"
	if !grant {
		key = "admin.admin_removed"
	}
	return a.SendText(ctx, u.TelegramID, a.tr.T(u.Language, key, target))
}

func (a *App) cmdExport(ctx context.Context, u *models.User, args string) error {
	if args == "" {
		return a.showExportKinds(u)
	}
	kind, ok := export.ParseKind(args)
	if !ok {
		return a.usage(u, "/export <"+kindList()+">")
	}
	t, err := a.exports.Build(ctx, kind)
	if err != nil {
		return a.failWith(u.TelegramID, u.Language, err)
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, t); err != nil {
		return a.failWith(u.TelegramID, u.Language, apperr.Internal("write csv", err))
	}
	doc := tgbotapi.NewDocument(u.TelegramID, tgbotapi.FileBytes{Name: export.FileName(kind, a.now().In(a.loc)), Bytes: buf.Bytes()})
	doc.Caption = a.tr.T(u.Language, "admin.export_caption", string(kind), len(t.Rows))
	if _, err := a.bot.Send(doc); err != nil {
		return err
	}
	a.log.Info("export sent", zap.String("kind", string(kind)), zap.Int("rows", len(t.Rows)), zap.Int64("telegram_id", u.TelegramID))
	return nil
}

func (a *App) cmdExportLink(_ context.Context, u *models.User, args string) error {
	kind, ok := export.ParseKind(args)
	if !ok {
		return a.usage(u, "/export_link <"+kindList()+">")
	}
	link := server.ExportLink(a.baseURL, a.exportSecret, kind, a.now().Add(exportLinkTTL))
	return a.SendText(context.Background(), u.TelegramID, a.tr.T(u.Language, "admin.export_link", link))
}

func kindList() string {
	names := make([]string, 0, len(export.Kinds))
	for _, k := range export.Kinds {
		names = append(names, string(k))
	}
	return strings.Join(names, "|")
}

func (a *App) exportSheets(ctx context.Context, u *models.User) error {
	if a.sheets == nil {
		return a.SendText(ctx, u.TelegramID, a.tr.T(u.Language, "admin.sheets_disabled"))
	}
	counts, err := a.sheets.PublishAll(ctx, a.exports)
	if err != nil {
		a.log.Error("sheets mirror failed", zap.Error(err))
		return a.failWith(u.TelegramID, u.Language, apperr.Internal("publish sheets", err))
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := []string{a.tr.T(u.Language, "admin.sheets_done", a.sheets.URL())}
	for _, n := range names {
		lines = append(lines, fmt.Sprintf("%s: %d", n, counts[n]))
	}
	return a.SendText(ctx, u.TelegramID, strings.Join(lines, "\n"))
}
