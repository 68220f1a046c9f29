package middleware

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

const (
	languageKey  = "language"
	localizerKey = "localizer"
)

// Translator hält das Übersetzungs-Bundle
type Translator struct {
	bundle          *i18n.Bundle
	supported       []language.Tag
	matcher         language.Matcher
	defaultLanguage string
}

// NewTranslator lädt die eingebetteten Übersetzungen. Eine unbekannte
// Standardsprache fällt auf Englisch zurück.
func NewTranslator(defaultLanguage string) (*Translator, error) {
	defaultTag, err := language.Parse(defaultLanguage)
	if err != nil {
		log.Warnf("Unknown default language %q, falling back to en", defaultLanguage)
		defaultTag = language.English
	}

	bundle := i18n.NewBundle(defaultTag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/*.json")
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			return nil, fmt.Errorf("failed to load locale %s: %w", path.Base(file), err)
		}
	}

	base, _ := defaultTag.Base()
	supported := bundle.LanguageTags()
	return &Translator{
		bundle:          bundle,
		supported:       supported,
		matcher:         language.NewMatcher(supported),
		defaultLanguage: base.String(),
	}, nil
}

// Match wählt die passende Sprache aus Query-Parameter und Accept-Language
func (t *Translator) Match(query, acceptLanguage string) string {
	var desired []language.Tag
	if query != "" {
		if tag, err := language.Parse(query); err == nil {
			desired = append(desired, tag)
		}
	}
	if acceptLanguage != "" {
		if tags, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil {
			desired = append(desired, tags...)
		}
	}
	if len(desired) == 0 {
		return t.defaultLanguage
	}

	_, index, confidence := t.matcher.Match(desired...)
	if confidence == language.No {
		return t.defaultLanguage
	}
	base, _ := t.supported[index].Base()
	return base.String()
}

// Translate übersetzt id in lang. Fehlt die Übersetzung, wird id zurückgegeben.
func (t *Translator) Translate(lang, id string) string {
	return translate(i18n.NewLocalizer(t.bundle, lang, t.defaultLanguage), id)
}

func translate(localizer *i18n.Localizer, id string) string {
	msg, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: id})
	if err != nil {
		return id
	}
	return msg
}

// I18n erstellt eine Middleware für die Internationalisierung.
// Die Sprache kommt aus ?lang= oder dem Accept-Language-Header.
func I18n(translator *Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := translator.Match(c.Query("lang"), c.GetHeader("Accept-Language"))
		c.Set(languageKey, lang)
		c.Set(localizerKey, i18n.NewLocalizer(translator.bundle, lang, translator.defaultLanguage))
		c.Next()
	}
}

// T übersetzt id in die Sprache der Anfrage
func T(c *gin.Context, id string) string {
	if v, ok := c.Get(localizerKey); ok {
		if localizer, ok := v.(*i18n.Localizer); ok {
			return translate(localizer, id)
		}
	}
	return id
}

// Language liefert die für die Anfrage gewählte Sprache
func Language(c *gin.Context) string {
	return c.GetString(languageKey)
}
