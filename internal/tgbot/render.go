package tgbot

import (
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"hackathon-bot/internal/conversation"
	"hackathon-bot/internal/i18n"
	"hackathon-bot/internal/models"
	"hackathon-bot/internal/service"
	"hackathon-bot/internal/state"
	"hackathon-bot/internal/util"
)

// outgoing is a rendered reply: text plus an optional keyboard.
type outgoing struct {
	text   string
	markup interface{}
}

// compose turns an engine result into the reply for the user.
func compose(tr *i18n.Translator, botName string, lang models.Language, res conversation.Result) outgoing {
	var parts []string
	if res.Discarded != "" {
		parts = append(parts, tr.T(lang, "flow.discarded"))
	}
	if res.Err != nil {
		parts = append(parts, tr.Error(lang, res.Err))
	}
	if res.Prompt != "" {
		parts = append(parts, tr.T(lang, res.Prompt, res.Args...))
	}
	if res.Done && res.Err == nil && res.Flow == state.FlowTeamCreate && res.Team != nil && botName != "" {
		parts = append(parts, tr.T(lang, "team.invite", inviteLink(botName, res.Team.Code)))
	}
	out := outgoing{text: strings.Join(parts, "\n\n")}

	switch {
	case res.Done || res.Cancelled || res.Idle:
		out.markup = backKeyboard(tr, lang)
	case res.RequestContact:
		out.markup = contactKeyboard(tr, lang)
	default:
		kb := choiceKeyboard(tr, lang, res.Choices)
		kb.InlineKeyboard = append(kb.InlineKeyboard, row(button(tr.T(lang, "btn.cancel"), callback(prefixUser, "cancel"))))
		out.markup = kb
	}
	return out
}

func inviteLink(botName, code string) string {
	return "https://t.me/" + botName + "?start=" + joinPrefix + code
}

func (o outgoing) message(chatID int64) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, o.text)
	if o.markup != nil {
		msg.ReplyMarkup = o.markup
	}
	msg.DisableWebPagePreview = true
	return msg
}

// ReminderText renders the deadline reminder in each participant's language.
func ReminderText(tr *i18n.Translator, loc *time.Location) service.ReminderText {
	return func(u models.User, h models.Hackathon, st models.Stage) string {
		lang := u.Language
		return tr.T(lang, "reminder.deadline", h.Name.In(lang), st.Number, st.Name.In(lang), util.FormatDateTime(st.Deadline, loc))
	}
}
