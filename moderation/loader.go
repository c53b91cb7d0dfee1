package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"path"
	"strings"

	"chat-sync/errors"
)

//go:embed censored/*.txt
var censoredFS embed.FS

// CensoredData carries the result of the loading process including metadata for logging.
type CensoredData struct {
	Words      []string
	Languages  []string
	ByLanguage map[string][]string
}

// CensoredLoader is responsible for reading and parsing blacklisted words from embedded files.
type CensoredLoader struct {
	fs fs.FS
}

// NewCensoredLoader creates a loader over fsys, or over the embedded lists when fsys is nil.
func NewCensoredLoader(fsys fs.FS) *CensoredLoader {
	if fsys == nil {
		fsys = censoredFS
	}
	return &CensoredLoader{fs: fsys}
}

// LoadAll scans the given directory, identifying .txt files as language
// dictionaries ("fr.txt" -> "fr") and parsing their contents.
func (l *CensoredLoader) LoadAll(dir string) (*CensoredData, error) {
	entries, err := fs.ReadDir(l.fs, dir)
	if err != nil {
		return nil, err
	}

	data := &CensoredData{ByLanguage: make(map[string][]string)}
	uniqueWords := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		lang := strings.TrimSuffix(entry.Name(), ".txt")

		content, err := fs.ReadFile(l.fs, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		// Use a scanner to handle different line endings (\n vs \r\n) correctly
		scanner := bufio.NewScanner(bytes.NewReader(content))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			data.ByLanguage[lang] = append(data.ByLanguage[lang], line)
			if _, ok := uniqueWords[line]; !ok {
				uniqueWords[line] = struct{}{}
				data.Words = append(data.Words, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		if len(data.ByLanguage[lang]) > 0 {
			data.Languages = append(data.Languages, lang)
		}
	}

	if len(data.Words) == 0 {
		return nil, errors.ErrEmptyWords
	}
	return data, nil
}
