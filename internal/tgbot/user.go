package tgbot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/conversation"
	"hackathon-bot/internal/models"
	"hackathon-bot/internal/state"
	"hackathon-bot/internal/util"
)

var editableFields = []string{
	conversation.FieldFirstName, conversation.FieldLastName, conversation.FieldBirthDate,
	conversation.FieldGender, conversation.FieldLocation, conversation.FieldPhone, conversation.FieldEmail,
}

func (a *App) handleUserCallback(ctx context.Context, u *models.User, action string, args []string) error {
	switch action {
	case "menu":
		return a.showMenu(ctx, u)
	case "help":
		return a.showHelp(ctx, u)
	case "cancel":
		res, err := a.engine.Cancel(ctx, u.TelegramID)
		return a.reply(ctx, u, res, err)
	case "lang":
		if len(args) == 1 {
			return a.setLanguage(ctx, u, models.ParseLanguage(args[0]))
		}
	case "langs":
		return a.showLanguages(u)
	case "consent":
		if len(args) == 1 {
			return a.decideConsent(ctx, u, args[0] == "yes")
		}
	case "register":
		return a.begin(ctx, u, state.Registration{})
	case "hacks":
		return a.showHackathons(ctx, u)
	case "teams":
		return a.showTeams(ctx, u)
	case "profile":
		return a.showProfile(ctx, u)
	case "settings":
		return a.showSettings(u)
	case "edit":
		if len(args) == 1 {
			return a.begin(ctx, u, state.EditProfile{Field: args[0]})
		}
	case "tj":
		if len(args) == 0 {
			return a.begin(ctx, u, state.TeamJoin{})
		}
	}

	// Everything below carries ids.
	ids, err := parseIDs(args)
	if err != nil || len(ids) == 0 {
		a.log.WithError(err).Warn("malformed callback")
		return nil
	}
	switch action {
	case "h":
		return a.showHackathon(ctx, u, ids[0])
	case "tc":
		return a.begin(ctx, u, state.TeamCreate{HackathonID: ids[0]})
	case "tj":
		return a.begin(ctx, u, state.TeamJoin{HackathonID: ids[0]})
	case "team":
		return a.showTeam(ctx, u, ids[0])
	case "stage":
		return a.showStage(ctx, u, ids[0])
	case "sub":
		return a.startSubmission(ctx, u, ids[0])
	case "leave":
		return a.confirmLeave(u, ids[0])
	case "leavey":
		return a.leave(ctx, u, ids[0])
	case "rm":
		if len(ids) == 2 {
			return a.removeMember(ctx, u, ids[0], ids[1])
		}
	}
	return nil
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(args))
	for _, s := range args {
		id, err := parseShortID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// ---------- Onboarding ----------

func (a *App) showLanguages(u *models.User) error {
	return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(u.Language, "lang.choose"), markup: languageKeyboard()})
}

func (a *App) setLanguage(ctx context.Context, u *models.User, lang models.Language) error {
	if err := a.users.SetLanguage(ctx, u, lang); err != nil {
		return a.failWith(u.TelegramID, u.Language, err)
	}
	u.Language = lang
	if !u.ConsentGiven {
		return a.showConsent(u)
	}
	if err := a.SendText(ctx, u.TelegramID, a.tr.T(lang, "lang.changed")); err != nil {
		return err
	}
	return a.showMenu(ctx, u)
}

func (a *App) showConsent(u *models.User) error {
	kb := keyboard(row(
		button(a.tr.T(u.Language, "btn.agree"), callback(prefixUser, "consent", "yes")),
		button(a.tr.T(u.Language, "btn.decline"), callback(prefixUser, "consent", "no")),
	))
	return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(u.Language, "consent.offer"), markup: kb})
}

func (a *App) decideConsent(ctx context.Context, u *models.User, agree bool) error {
	if err := a.users.SetConsent(ctx, u, agree); err != nil {
		return a.failWith(u.TelegramID, u.Language, err)
	}
	if !agree {
		return a.SendText(ctx, u.TelegramID, a.tr.T(u.Language, "consent.declined"))
	}
	if err := a.SendText(ctx, u.TelegramID, a.tr.T(u.Language, "consent.accepted")); err != nil {
		return err
	}
	if !u.RegistrationOK {
		return a.begin(ctx, u, state.Registration{})
	}
	return a.showMenu(ctx, u)
}

// ---------- Menus ----------

func (a *App) showMenu(ctx context.Context, u *models.User) error {
	lang := u.Language
	if !u.ConsentGiven {
		return a.showConsent(u)
	}
	if !u.RegistrationOK {
		kb := keyboard(row(button(a.tr.T(lang, "btn.register"), callback(prefixUser, "register"))))
		return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(lang, "menu.unregistered"), markup: kb})
	}
	admin := a.users.IsAdmin(ctx, u.TelegramID)
	return a.sendOut(u.TelegramID, outgoing{
		text:   a.tr.T(lang, "menu.title", u.FirstName),
		markup: menuKeyboard(a.tr, lang, admin),
	})
}

func (a *App) showHelp(ctx context.Context, u *models.User) error {
	text := a.tr.T(u.Language, "help.user")
	if a.users.IsAdmin(ctx, u.TelegramID) {
		text += "\n\n" + a.tr.T(u.Language, "help.admin")
	}
	return a.sendOut(u.TelegramID, outgoing{text: text, markup: backKeyboard(a.tr, u.Language)})
}

// ---------- Hackathons ----------

func (a *App) showHackathons(ctx context.Context, u *models.User) error {
	lang := u.Language
	hs, err := a.hacks.Visible(ctx)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}
	if len(hs) == 0 {
		return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(lang, "hack.none"), markup: backKeyboard(a.tr, lang)})
	}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, h := range hs {
		rows = append(rows, row(button("🏆 "+h.Name.In(lang), callback(prefixUser, "h", shortID(h.ID)))))
	}
	rows = append(rows, row(button(a.tr.T(lang, "btn.menu"), callback(prefixUser, "menu"))))
	return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(lang, "hack.list"), markup: keyboard(rows...)})
}

func (a *App) showHackathon(ctx context.Context, u *models.User, id uuid.UUID) error {
	lang := u.Language
	h, err := a.hacks.Get(ctx, id)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}
	if !h.IsActive || !h.Status.Visible() {
		return a.failWith(u.TelegramID, lang, apperr.NotFound(apperr.CodeHackathonNotFound, "hackathon not visible"))
	}
	st, err := a.hacks.ActiveStage(ctx, h.ID)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}
	team, err := a.teams.InHackathon(ctx, u.ID, h.ID)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}

	rows := [][]tgbotapi.InlineKeyboardButton{}
	if team != nil {
		rows = append(rows, row(button(a.tr.T(lang, "btn.my_team"), callback(prefixUser, "team", shortID(team.ID)))))
	} else {
		rows = append(rows, row(
			button(a.tr.T(lang, "btn.create_team"), callback(prefixUser, "tc", shortID(h.ID))),
			button(a.tr.T(lang, "btn.join_team"), callback(prefixUser, "tj", shortID(h.ID))),
		))
	}
	rows = append(rows, row(button(a.tr.T(lang, "btn.back"), callback(prefixUser, "hacks"))))
	return a.sendOut(u.TelegramID, outgoing{text: a.hackathonText(lang, h, st), markup: keyboard(rows...)})
}

func (a *App) hackathonText(lang models.Language, h *models.Hackathon, st *models.Stage) string {
	lines := []string{"🏆 " + h.Name.In(lang)}
	if d := h.Description.In(lang); d != "" {
		lines = append(lines, d)
	}
	if p := h.PrizePool.In(lang); p != "" {
		lines = append(lines, a.tr.T(lang, "hack.prize", p))
	}
	if h.StartsAt != nil || h.EndsAt != nil {
		lines = append(lines, a.tr.T(lang, "hack.dates", dash(util.FormatDate(h.StartsAt)), dash(util.FormatDate(h.EndsAt))))
	}
	if h.RegistrationDeadline != nil {
		lines = append(lines, a.tr.T(lang, "hack.reg_deadline", util.FormatDateTime(*h.RegistrationDeadline, a.loc)))
	}
	if st != nil {
		lines = append(lines, a.tr.T(lang, "hack.stage", st.Number, st.Name.In(lang), util.FormatDateTime(st.Deadline, a.loc)))
	}
	return strings.Join(lines, "\n")
}

// ---------- Teams ----------

func (a *App) showTeams(ctx context.Context, u *models.User) error {
	lang := u.Language
	ts, err := a.teams.ForUser(ctx, u.ID)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}
	if len(ts) == 0 {
		kb := keyboard(
			row(button(a.tr.T(lang, "btn.hackathons"), callback(prefixUser, "hacks"))),
			row(button(a.tr.T(lang, "btn.menu"), callback(prefixUser, "menu"))),
		)
		return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(lang, "team.none"), markup: kb})
	}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, t := range ts {
		label := fmt.Sprintf("👥 %s · %s", t.Name, t.HackathonName)
		if t.IsLead {
			label += " ⭐"
		}
		rows = append(rows, row(button(label, callback(prefixUser, "team", shortID(t.ID)))))
	}
	rows = append(rows, row(button(a.tr.T(lang, "btn.menu"), callback(prefixUser, "menu"))))
	return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(lang, "team.list"), markup: keyboard(rows...)})
}

func (a *App) showTeam(ctx context.Context, u *models.User, teamID uuid.UUID) error {
	lang := u.Language
	me, err := a.teams.Membership(ctx, teamID, u.ID)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}
	t, err := a.teams.Get(ctx, teamID)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}
	members, err := a.teams.Members(ctx, teamID)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}

	lines := []string{a.tr.T(lang, "team.detail", t.Name, t.Code, dash(t.Field))}
	if t.PortfolioLink != "" {
		lines = append(lines, t.PortfolioLink)
	}
	for _, m := range members {
		marker := "•"
		if m.IsLead {
			marker = "⭐"
		}
		lines = append(lines, fmt.Sprintf("%s %s (%s)", marker, m.FullName(), a.roleLabel(lang, m.Role)))
	}
	if !t.IsActive {
		lines = append(lines, a.tr.T(lang, "team.inactive"))
	} else if a.botName != "" {
		lines = append(lines, a.tr.T(lang, "team.invite", inviteLink(a.botName, t.Code)))
	}

	rows := [][]tgbotapi.InlineKeyboardButton{}
	if t.IsActive {
		rows = append(rows, row(button(a.tr.T(lang, "btn.stage"), callback(prefixUser, "stage", shortID(t.ID)))))
		if me.IsLead {
			for _, m := range members {
				if m.IsLead {
					continue
				}
				rows = append(rows, row(button(a.tr.T(lang, "btn.remove", m.FullName()),
					callback(prefixUser, "rm", shortID(t.ID), shortID(m.UserID)))))
			}
		}
		rows = append(rows, row(button(a.tr.T(lang, "btn.leave"), callback(prefixUser, "leave", shortID(t.ID)))))
	}
	rows = append(rows, row(button(a.tr.T(lang, "btn.back"), callback(prefixUser, "teams"))))
	return a.sendOut(u.TelegramID, outgoing{text: strings.Join(lines, "\n"), markup: keyboard(rows...)})
}

func (a *App) roleLabel(lang models.Language, r models.TeamRole) string {
	return a.tr.T(lang, "role."+strings.ToLower(string(r)))
}

func (a *App) confirmLeave(u *models.User, teamID uuid.UUID) error {
	lang := u.Language
	kb := keyboard(row(
		button(a.tr.T(lang, "btn.leave_yes"), callback(prefixUser, "leavey", shortID(teamID))),
		button(a.tr.T(lang, "btn.back"), callback(prefixUser, "team", shortID(teamID))),
	))
	return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(lang, "team.leave_confirm"), markup: kb})
}

func (a *App) leave(ctx context.Context, u *models.User, teamID uuid.UUID) error {
	lang := u.Language
	res, err := a.teams.Leave(ctx, teamID, u.ID)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}
	key := "team.left"
	if res.Deactivated {
		key = "team.left_deactivated"
	}
	return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(lang, key), markup: backKeyboard(a.tr, lang)})
}

func (a *App) removeMember(ctx context.Context, u *models.User, teamID, userID uuid.UUID) error {
	lang := u.Language
	removed, err := a.teams.RemoveMemberAs(ctx, u.ID, teamID, userID)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}
	if !removed {
		return a.failWith(u.TelegramID, lang, apperr.NotFound(apperr.CodeNotMember, "member already gone"))
	}
	if err := a.SendText(ctx, u.TelegramID, a.tr.T(lang, "team.member_removed")); err != nil {
		return err
	}
	return a.showTeam(ctx, u, teamID)
}

// ---------- Stages and submissions ----------

func (a *App) showStage(ctx context.Context, u *models.User, teamID uuid.UUID) error {
	lang := u.Language
	if _, err := a.teams.Membership(ctx, teamID, u.ID); err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}
	t, err := a.teams.Get(ctx, teamID)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}
	st, err := a.hacks.ActiveStage(ctx, t.HackathonID)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}
	back := row(button(a.tr.T(lang, "btn.back"), callback(prefixUser, "team", shortID(teamID))))
	if st == nil {
		return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(lang, "stage.none"), markup: keyboard(back)})
	}
	sub, err := a.subs.Get(ctx, teamID, st.ID)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}

	lines := []string{a.tr.T(lang, "stage.detail", st.Number, st.Name.In(lang), st.Task.In(lang), util.FormatDateTime(st.Deadline, a.loc))}
	switch {
	case sub == nil:
		lines = append(lines, a.tr.T(lang, "stage.not_submitted"))
	case sub.Type == models.SubmissionLink:
		lines = append(lines, a.tr.T(lang, "stage.submitted_link", sub.Content, util.FormatDateTime(sub.SubmittedAt, a.loc)))
	default:
		lines = append(lines, a.tr.T(lang, "stage.submitted_file", sub.FileName, util.FormatDateTime(sub.SubmittedAt, a.loc)))
	}

	rows := [][]tgbotapi.InlineKeyboardButton{}
	if st.Open(a.now()) && t.IsActive {
		rows = append(rows, row(button(a.tr.T(lang, "btn.submit"), callback(prefixUser, "sub", shortID(teamID)))))
	} else {
		lines = append(lines, a.tr.T(lang, "stage.closed"))
	}
	rows = append(rows, back)
	return a.sendOut(u.TelegramID, outgoing{text: strings.Join(lines, "\n\n"), markup: keyboard(rows...)})
}

func (a *App) startSubmission(ctx context.Context, u *models.User, teamID uuid.UUID) error {
	t, err := a.teams.Get(ctx, teamID)
	if err != nil {
		return a.failWith(u.TelegramID, u.Language, err)
	}
	st, err := a.hacks.ActiveStage(ctx, t.HackathonID)
	if err != nil {
		return a.failWith(u.TelegramID, u.Language, err)
	}
	if st == nil {
		return a.failWith(u.TelegramID, u.Language, apperr.NotFound(apperr.CodeStageNotFound, "no active stage"))
	}
	return a.begin(ctx, u, state.Submission{TeamID: teamID, StageID: st.ID})
}

// ---------- Profile ----------

func (a *App) showProfile(ctx context.Context, u *models.User) error {
	lang := u.Language
	fresh, err := a.users.ByTelegramID(ctx, u.TelegramID)
	if err != nil {
		return a.failWith(u.TelegramID, lang, err)
	}
	gender := ""
	if fresh.Gender != "" {
		gender = a.tr.T(lang, "choice."+string(fresh.Gender))
	}
	text := a.tr.T(lang, "profile.view",
		dash(fresh.FirstName), dash(fresh.LastName), dash(util.FormatDate(fresh.BirthDate)),
		dash(gender), dash(fresh.Location), dash(fresh.Phone), dash(fresh.Email), dash(fresh.PINFL),
		languageLabels[fresh.Language])
	kb := keyboard(
		row(button(a.tr.T(lang, "btn.settings"), callback(prefixUser, "settings"))),
		row(button(a.tr.T(lang, "btn.menu"), callback(prefixUser, "menu"))),
	)
	return a.sendOut(u.TelegramID, outgoing{text: text, markup: kb})
}

func (a *App) showSettings(u *models.User) error {
	lang := u.Language
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for i := 0; i < len(editableFields); i += 2 {
		r := []tgbotapi.InlineKeyboardButton{button(a.tr.T(lang, "field."+editableFields[i]), callback(prefixUser, "edit", editableFields[i]))}
		if i+1 < len(editableFields) {
			r = append(r, button(a.tr.T(lang, "field."+editableFields[i+1]), callback(prefixUser, "edit", editableFields[i+1])))
		}
		rows = append(rows, r)
	}
	rows = append(rows,
		row(button(a.tr.T(lang, "btn.language"), callback(prefixUser, "langs"))),
		row(button(a.tr.T(lang, "btn.menu"), callback(prefixUser, "menu"))),
	)
	return a.sendOut(u.TelegramID, outgoing{text: a.tr.T(lang, "settings.title"), markup: keyboard(rows...)})
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
