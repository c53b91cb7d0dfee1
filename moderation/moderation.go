package moderation

import (
	"fmt"
	"log/slog"

	"github.com/abadojack/whatlanggo"
)

// Moderation censors message content with the dictionary of the default language
// and, when the content is reliably detected as another language, with that one too.
type Moderation struct {
	log             *slog.Logger
	defaultLanguage string
	byLanguage      map[string]Moderator
}

// Result is the outcome of a moderation pass.
type Result struct {
	Content       string
	CensoredWords []string
	Language      string
}

func NewModeration(data *CensoredData, censoredChar rune, defaultLanguage string, log *slog.Logger) (*Moderation, error) {
	if _, ok := data.ByLanguage[defaultLanguage]; !ok {
		return nil, fmt.Errorf("no censored list for default language %q", defaultLanguage)
	}
	m := &Moderation{log: log, defaultLanguage: defaultLanguage, byLanguage: make(map[string]Moderator)}
	for lang, words := range data.ByLanguage {
		moderator, err := NewModerator(words, censoredChar)
		if err != nil {
			return nil, fmt.Errorf("build %s moderator: %w", lang, err)
		}
		m.byLanguage[lang] = moderator
	}
	log.Info("Moderation ready", "languages", data.Languages, "words", len(data.Words), "default", defaultLanguage)
	return m, nil
}

func (m *Moderation) Sanitize(content string) Result {
	result := Result{Content: content, Language: m.defaultLanguage}
	if content == "" {
		return result
	}

	info := whatlanggo.Detect(content)
	if lang := info.Lang.Iso6391(); info.IsReliable() && lang != "" {
		result.Language = lang
	}

	languages := []string{m.defaultLanguage}
	if result.Language != m.defaultLanguage {
		languages = append(languages, result.Language)
	}
	for _, lang := range languages {
		moderator, ok := m.byLanguage[lang]
		if !ok {
			continue
		}
		var words []string
		result.Content, words = moderator.Censor(result.Content)
		result.CensoredWords = append(result.CensoredWords, words...)
	}
	if len(result.CensoredWords) > 0 {
		m.log.Debug("Message censored", "lang", result.Language, "words", len(result.CensoredWords))
	}
	return result
}
