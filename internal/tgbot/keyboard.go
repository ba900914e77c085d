package tgbot

import (
	"encoding/base64"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"hackathon-bot/internal/conversation"
	"hackathon-bot/internal/i18n"
	"hackathon-bot/internal/models"
)

// Telegram rejects callback data longer than 64 bytes.
const maxCallbackData = 64

// Callback prefixes: u: user screens, a: admin screens, c: answers to the
// current conversation step.
const (
	prefixUser   = "u:"
	prefixAdmin  = "a:"
	prefixChoice = "c:"
)

// shortID packs a uuid into 22 url-safe characters so two ids fit in one
// callback.
func shortID(id uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func parseShortID(s string) (uuid.UUID, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode id %q: %w", s, err)
	}
	return uuid.FromBytes(b)
}

func callback(prefix string, parts ...string) string {
	data := prefix + strings.Join(parts, ":")
	if len(data) > maxCallbackData {
		data = data[:maxCallbackData]
	}
	return data
}

// splitCallback returns the action and its arguments, e.g. "u:rm:x:y" ->
// ("rm", ["x", "y"]).
func splitCallback(data, prefix string) (string, []string) {
	parts := strings.Split(strings.TrimPrefix(data, prefix), ":")
	return parts[0], parts[1:]
}

func button(label, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(label, data)
}

func row(buttons ...tgbotapi.InlineKeyboardButton) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(buttons...)
}

func keyboard(rows ...[]tgbotapi.InlineKeyboardButton) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// choiceKeyboard lays out step choices two per row. Values that would not
// fit into callback data are dropped.
func choiceKeyboard(tr *i18n.Translator, lang models.Language, choices []conversation.Choice) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var cur []tgbotapi.InlineKeyboardButton
	for _, c := range choices {
		if len(prefixChoice)+len(c.Value) > maxCallbackData {
			continue
		}
		label := c.Label
		if !c.Literal {
			label = tr.T(lang, c.Label)
		}
		cur = append(cur, button(label, prefixChoice+c.Value))
		if len(cur) == 2 {
			rows = append(rows, row(cur...))
			cur = nil
		}
	}
	if len(cur) > 0 {
		rows = append(rows, row(cur...))
	}
	return keyboard(rows...)
}

func contactKeyboard(tr *i18n.Translator, lang models.Language) tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButtonContact(tr.T(lang, "btn.share_contact")),
	))
	kb.OneTimeKeyboard = true
	kb.ResizeKeyboard = true
	return kb
}

func menuKeyboard(tr *i18n.Translator, lang models.Language, admin bool) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		row(button(tr.T(lang, "btn.hackathons"), callback(prefixUser, "hacks"))),
		row(
			button(tr.T(lang, "btn.my_teams"), callback(prefixUser, "teams")),
			button(tr.T(lang, "btn.join_code"), callback(prefixUser, "tj")),
		),
		row(
			button(tr.T(lang, "btn.profile"), callback(prefixUser, "profile")),
			button(tr.T(lang, "btn.settings"), callback(prefixUser, "settings")),
		),
		row(button(tr.T(lang, "btn.help"), callback(prefixUser, "help"))),
	}
	if admin {
		rows = append(rows, row(button(tr.T(lang, "btn.admin"), callback(prefixAdmin, "menu"))))
	}
	return keyboard(rows...)
}

func backKeyboard(tr *i18n.Translator, lang models.Language) tgbotapi.InlineKeyboardMarkup {
	return keyboard(row(button(tr.T(lang, "btn.menu"), callback(prefixUser, "menu"))))
}

var languageLabels = map[models.Language]string{
	models.LangUz: "🇺🇿 O'zbekcha",
	models.LangRu: "🇷🇺 Русский",
	models.LangEn: "🇬🇧 English",
}

func languageKeyboard() tgbotapi.InlineKeyboardMarkup {
	var buttons []tgbotapi.InlineKeyboardButton
	for _, l := range models.Languages {
		buttons = append(buttons, button(languageLabels[l], callback(prefixUser, "lang", string(l))))
	}
	return keyboard(row(buttons...))
}
