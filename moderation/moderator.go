package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator masks blacklisted words inline on the message path. This is
// body plumbing only; moderation workflows (reports, review, outcomes)
// live outside this subsystem and come back as notifications.
type Moderator struct {
	matcher    *goahocorasick.Machine
	maskedChar rune
}

type TextMapping struct {
	Normalized []rune
	OrigIdx    []int
}

// NewModerator initializes the Aho-Corasick automaton with a normalized version of the provided word list.
func NewModerator(maskedWords []string, maskedChar rune) (Moderator, error) {
	patterns := make([][]rune, len(maskedWords))
	for i, word := range maskedWords {
		patterns[i] = normalizeRunes([]rune(word))
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{matcher: m, maskedChar: maskedChar}, nil
}

// Censor identifies forbidden patterns and replaces the original characters
// with the mask character while preserving spacing. It also returns the
// normalized forms that matched, for logging.
func (m *Moderator) Censor(original string) (string, []string) {
	mapping := m.normalize(original)
	if len(mapping.Normalized) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	spans := m.matcher.MultiPatternSearch(mapping.Normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	var found []string
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)

		if normStart < 0 || normEnd > len(mapping.OrigIdx) {
			continue
		}
		found = append(found, string(span.Word))

		origStart := mapping.OrigIdx[normStart]
		lastCharOrigIdx := mapping.OrigIdx[normEnd-1]
		origEnd := lastCharOrigIdx + 1

		for i := origStart; i < origEnd; i++ {
			origRunes[i] = m.maskedChar
		}
	}

	return string(origRunes), found
}

// normalize transforms the input string into a searchable format and tracks original rune positions.
func (m *Moderator) normalize(input string) TextMapping {
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

// simplifyRune maps common leet speak characters back to their standard alphabet counterparts.
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
