package runtime

import (
	"bufio"
	"bytes"
	"educonnect/errors"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// CensoredData carries the result of the loading process including metadata for logging.
type CensoredData struct {
	Words     []string
	Languages []string
}

// CensoredLoader reads blacklisted words, one dictionary file per language.
type CensoredLoader struct {
	fs fs.FS
}

func NewCensoredLoader(f fs.FS) *CensoredLoader {
	return &CensoredLoader{fs: f}
}

// LoadAll scans the given directory, identifying .txt files as language
// dictionaries, and merges them with extra words into a unique list.
func (l *CensoredLoader) LoadAll(dir string, extra ...string) (*CensoredData, error) {
	entries, err := fs.ReadDir(l.fs, dir)
	if err != nil {
		return nil, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})
	add := func(word string) {
		if word = strings.TrimSpace(word); word != "" {
			uniqueWords[word] = struct{}{}
		}
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}

		// "fr.txt" -> "fr"
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(l.fs, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		// ⚠️Don't use strings.Split, the scanner handles \n and \r\n
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			add(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}
	for _, word := range extra {
		add(word)
	}

	if len(uniqueWords) == 0 {
		return nil, errors.ErrEmptyWords
	}

	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}
	sort.Strings(words)

	return &CensoredData{
		Words:     words,
		Languages: languages,
	}, nil
}
