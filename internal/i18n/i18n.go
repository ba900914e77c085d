// Package i18n holds the uz/ru/en message catalogs and renders keys with
// x/text/message printers.
package i18n

import (
	"embed"
	"fmt"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/models"
)

//go:embed locales/*.yaml
var locales embed.FS

var tags = map[models.Language]language.Tag{
	models.LangUz: language.Uzbek,
	models.LangRu: language.Russian,
	models.LangEn: language.English,
}

var matcher = language.NewMatcher([]language.Tag{language.Uzbek, language.Russian, language.English})

// Match maps a client language code such as "ru-RU" to a supported
// language, falling back to Uzbek.
func Match(code string) models.Language {
	if code == "" {
		return models.LangUz
	}
	tag, _, conf := matcher.Match(language.Make(code))
	if conf == language.No {
		return models.LangUz
	}
	base, _ := tag.Base()
	switch base.String() {
	case "ru":
		return models.LangRu
	case "en":
		return models.LangEn
	}
	return models.LangUz
}

// Translator renders message keys for a user's language.
type Translator struct {
	printers map[models.Language]*message.Printer
	keys     map[string]struct{}
}

// New loads the embedded catalogs. Every locale must define the same keys.
func New() (*Translator, error) {
	b := catalog.NewBuilder(catalog.Fallback(language.Uzbek))
	var reference []string
	keys := map[string]struct{}{}
	for _, lang := range models.Languages {
		msgs, err := load(lang)
		if err != nil {
			return nil, err
		}
		names := sortedKeys(msgs)
		if reference == nil {
			reference = names
		} else if missing := diff(reference, msgs); len(missing) > 0 {
			return nil, fmt.Errorf("locale %s is missing %d keys, first %q", lang, len(missing), missing[0])
		}
		for _, k := range names {
			if err := b.SetString(tags[lang], k, msgs[k]); err != nil {
				return nil, fmt.Errorf("register %s/%s: %w", lang, k, err)
			}
			keys[k] = struct{}{}
		}
	}
	t := &Translator{printers: map[models.Language]*message.Printer{}, keys: keys}
	for lang, tag := range tags {
		t.printers[lang] = message.NewPrinter(tag, message.Catalog(b))
	}
	return t, nil
}

func load(lang models.Language) (map[string]string, error) {
	raw, err := locales.ReadFile("locales/" + string(lang) + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("read %s catalog: %w", lang, err)
	}
	msgs := map[string]string{}
	if err := yaml.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("parse %s catalog: %w", lang, err)
	}
	return msgs, nil
}

// T renders key in lang. Unknown keys come back verbatim.
func (t *Translator) T(lang models.Language, key string, args ...any) string {
	if _, ok := t.keys[key]; !ok {
		return key
	}
	p, ok := t.printers[lang]
	if !ok {
		p = t.printers[models.LangUz]
	}
	return p.Sprintf(key, args...)
}

// Has reports whether key is defined.
func (t *Translator) Has(key string) bool {
	_, ok := t.keys[key]
	return ok
}

// Error renders a user-facing message for err.
func (t *Translator) Error(lang models.Language, err error) string {
	key := "err." + apperr.CodeOf(err)
	if !t.Has(key) {
		key = "err." + apperr.CodeInternal
	}
	return t.T(lang, key)
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func diff(want []string, have map[string]string) []string {
	var missing []string
	for _, k := range want {
		if _, ok := have[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}
