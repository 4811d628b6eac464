package moderation

import (
	"fmt"
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator masks blacklisted words in message contents.
// A Moderator built from an empty dictionary lets everything through.
type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
	log          *slog.Logger
}

type TextMapping struct {
	Normalized []rune
	OrigIdx    []int
}

// NewModerator initializes the Aho-Corasick automaton with a normalized version of the provided censored words list.
// Words made only of noise normalize to nothing and are ignored.
func NewModerator(censoredWords []string, censoredChar rune, log *slog.Logger) (Moderator, error) {
	patterns := make([][]rune, 0, len(censoredWords))
	for _, word := range censoredWords {
		if pattern := normalizeRunes([]rune(word)); len(pattern) > 0 {
			patterns = append(patterns, pattern)
		}
	}
	if len(patterns) == 0 {
		log.Warn("No censored word loaded, moderation is disabled")
		return Moderator{censoredChar: censoredChar, log: log}, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return Moderator{}, err
	}
	log.Debug(fmt.Sprintf("Moderator built with %d patterns", len(patterns)))
	return Moderator{matcher: m, censoredChar: censoredChar, log: log}, nil
}

// Censor identifies forbidden patterns and replaces the original characters while preserving spacing.
// It returns the censored content and the normalized words that were found, in order of appearance.
func (m Moderator) Censor(original string) (string, []string) {
	if m.matcher == nil {
		return original, nil
	}
	mapping := m.normalize(original)
	if len(mapping.Normalized) == 0 {
		return original, nil
	}

	spans := m.matcher.MultiPatternSearch(mapping.Normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	var words []string
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)

		if normStart < 0 || normEnd > len(mapping.OrigIdx) {
			continue
		}

		origStart := mapping.OrigIdx[normStart]
		origEnd := mapping.OrigIdx[normEnd-1] + 1
		for i := origStart; i < origEnd; i++ {
			origRunes[i] = m.censoredChar
		}
		words = append(words, string(span.Word))
	}

	return string(origRunes), words
}

// normalize transforms the input string into a searchable format and tracks original rune positions.
func (m Moderator) normalize(input string) TextMapping {
	origRunes := []rune(input)
	norm := make([]rune, 0, len(origRunes))
	origIdx := make([]int, 0, len(origRunes))

	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		norm = append(norm, unicode.ToLower(clean))
		origIdx = append(origIdx, i)
	}
	return TextMapping{Normalized: norm, OrigIdx: origIdx}
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune maps common Leet speak characters back to their standard alphabet counterparts.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

// isNoise identifies characters that should be ignored during the pattern matching phase.
func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
