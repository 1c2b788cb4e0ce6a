package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"strings"

	"market-live/errors"
)

//go:embed wordlists/*
var wordlistFS embed.FS

// WordlistData carries the result of the loading process including metadata for logging.
type WordlistData struct {
	Words     []string
	Languages []string
}

// LoadWordlists scans the embedded wordlists directory, identifying .txt
// files as language dictionaries and parsing their contents into a unique
// list of words. The language tag comes from the filename ("fr.txt" -> "fr").
func LoadWordlists() (*WordlistData, error) {
	entries, err := fs.ReadDir(wordlistFS, "wordlists")
	if err != nil {
		return nil, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			return nil, errors.ErrOnlyFiles
		}

		lang := strings.TrimSuffix(entry.Name(), ".txt")
		languages = append(languages, lang)

		data, err := wordlistFS.ReadFile("wordlists/" + entry.Name())
		if err != nil {
			return nil, err
		}

		// A scanner handles both \n and \r\n line endings correctly.
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				uniqueWords[line] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(uniqueWords) == 0 {
		return nil, errors.ErrEmptyWords
	}

	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}

	return &WordlistData{Words: words, Languages: languages}, nil
}
