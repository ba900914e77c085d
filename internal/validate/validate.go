// Package validate holds the input rules applied by the conversation steps.
// Every failure is an apperr validation error carrying a code the transport
// can translate.
package validate

import (
	"net/mail"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/models"
)

const (
	DateLayout     = "02.01.2006"
	DateTimeLayout = "02.01.2006 15:04"
	minYear        = 1900
)

var (
	dateRe     = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)
	dateTimeRe = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4} \d{2}:\d{2}$`)
	phoneStrip = regexp.MustCompile(`[\s\-()]`)
)

// Date parses DD.MM.YYYY with the year bounded to [1900, now.Year()].
func Date(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !dateRe.MatchString(s) {
		return time.Time{}, apperr.Validation(apperr.CodeInvalidDate, "date must be DD.MM.YYYY")
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, apperr.Validation(apperr.CodeInvalidDate, "date does not exist")
	}
	if t.Year() < minYear || t.Year() > now.Year() {
		return time.Time{}, apperr.Validation(apperr.CodeInvalidDate, "year out of range")
	}
	return t, nil
}

// DateTime parses DD.MM.YYYY HH:MM in loc. Used for operator-entered deadlines,
// so the year is not bounded by the current date.
func DateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	if !dateTimeRe.MatchString(s) {
		return time.Time{}, apperr.Validation(apperr.CodeInvalidDateTime, "datetime must be DD.MM.YYYY HH:MM")
	}
	t, err := time.ParseInLocation(DateTimeLayout, s, loc)
	if err != nil || t.Year() < minYear {
		return time.Time{}, apperr.Validation(apperr.CodeInvalidDateTime, "datetime does not exist")
	}
	return t, nil
}

// Moment accepts DD.MM.YYYY HH:MM or a bare DD.MM.YYYY (midnight in loc).
// Unlike Date it allows future years.
func Moment(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	if dateRe.MatchString(s) {
		t, err := time.ParseInLocation(DateLayout, s, loc)
		if err != nil || t.Year() < minYear {
			return time.Time{}, apperr.Validation(apperr.CodeInvalidDateTime, "date does not exist")
		}
		return t, nil
	}
	return DateTime(s, loc)
}

// PINFL accepts exactly 14 ASCII digits. Surrounding spaces are rejected.
func PINFL(s string) (string, error) {
	if len(s) != 14 || !allDigits(s) {
		return "", apperr.Validation(apperr.CodeInvalidPINFL, "PINFL must be 14 digits")
	}
	return s, nil
}

// URL requires an http or https scheme and a non-empty host.
func URL(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t\n<>\"") {
		return "", apperr.Validation(apperr.CodeInvalidURL, "malformed url")
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", apperr.Validation(apperr.CodeInvalidURL, "malformed url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", apperr.Validation(apperr.CodeInvalidURL, "url scheme must be http or https")
	}
	if u.Hostname() == "" {
		return "", apperr.Validation(apperr.CodeInvalidURL, "url host is empty")
	}
	return s, nil
}

func Email(s string) (string, error) {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || !strings.Contains(s[strings.LastIndex(s, "@"):], ".") {
		return "", apperr.Validation(apperr.CodeInvalidEmail, "malformed email")
	}
	return strings.ToLower(s), nil
}

// Phone strips spaces, dashes and parentheses and expects at least nine
// digits with an optional leading plus.
func Phone(s string) (string, error) {
	clean := phoneStrip.ReplaceAllString(strings.TrimSpace(s), "")
	digits := strings.TrimPrefix(clean, "+")
	if len(digits) < 9 || len(digits) > 15 || !allDigits(digits) {
		return "", apperr.Validation(apperr.CodeInvalidPhone, "malformed phone number")
	}
	return clean, nil
}

// Name trims, collapses inner whitespace and capitalizes each word.
func Name(s string) (string, error) {
	words := strings.Fields(s)
	if len(words) == 0 {
		return "", apperr.Validation(apperr.CodeEmptyInput, "name is empty")
	}
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " "), nil
}

// Text rejects blank input and trims the rest.
func Text(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperr.Validation(apperr.CodeEmptyInput, "input is empty")
	}
	return s, nil
}

func Gender(s string) (models.Gender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m", "erkak", "мужской":
		return models.GenderMale, nil
	case "female", "f", "ayol", "женский":
		return models.GenderFemale, nil
	}
	return "", apperr.Validation(apperr.CodeInvalidChoice, "gender must be male or female")
}

func Role(s string) (models.TeamRole, error) {
	r, ok := models.ParseTeamRole(s)
	if !ok {
		return "", apperr.Validation(apperr.CodeInvalidChoice, "unknown team role")
	}
	return r, nil
}

// TeamCode expects the six digit join code.
func TeamCode(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != 6 || !allDigits(s) {
		return "", apperr.Validation(apperr.CodeInvalidNumber, "team code must be 6 digits")
	}
	return s, nil
}

var mediaByExt = map[string]models.MediaKind{}

func init() {
	for kind, exts := range map[models.MediaKind][]string{
		models.MediaImage:    {"jpg", "jpeg", "png", "gif", "webp", "bmp", "svg"},
		models.MediaVideo:    {"mp4", "avi", "mov", "mkv", "webm", "wmv"},
		models.MediaAudio:    {"mp3", "wav", "ogg", "oga", "flac", "aac", "m4a"},
		models.MediaDocument: {"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "txt", "rtf"},
	} {
		for _, e := range exts {
			mediaByExt[e] = kind
		}
	}
}

// MediaKind infers the category from the file extension, then from the
// declared mime type.
func MediaKind(fileName, mime string) models.MediaKind {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(fileName)), ".")
	if k, ok := mediaByExt[ext]; ok {
		return k
	}
	mime = strings.ToLower(mime)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.MediaImage
	case strings.HasPrefix(mime, "video/"):
		return models.MediaVideo
	case strings.HasPrefix(mime, "audio/"):
		return models.MediaAudio
	case mime == "application/pdf", strings.Contains(mime, "officedocument"), strings.HasPrefix(mime, "text/"):
		return models.MediaDocument
	}
	return models.MediaFile
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
