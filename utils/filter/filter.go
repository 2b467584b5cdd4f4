package filter

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"

	"animeshelf/models"
	"animeshelf/utils/similarity"
)

// MinTitleSimilarity is the minimum similarity score (0.0-1.0) a catalog
// title needs to be accepted as the match for a suggested title.
const MinTitleSimilarity = 0.6

// BestMatch picks the search result whose title is closest to expected. Titles
// written in Japanese script are also compared in romanized form. ok is false
// when no candidate reaches MinTitleSimilarity.
func BestMatch(expected string, results []models.SearchResult) (models.SearchResult, float64, bool) {
	candidates := normalizeCandidateTitles(expected, nil)
	if len(candidates) == 0 || len(results) == 0 {
		return models.SearchResult{}, 0, false
	}

	var (
		best      models.SearchResult
		bestScore float64
		found     bool
	)
	for _, result := range results {
		titles := normalizeCandidateTitles(result.Title, nil)
		for _, title := range titles {
			score, _ := bestTitleSimilarity(candidates, title)
			if !found || score > bestScore {
				best, bestScore, found = result, score, true
			}
		}
	}
	if !found || bestScore < MinTitleSimilarity {
		return models.SearchResult{}, bestScore, false
	}
	return best, bestScore, true
}

// ContainsTitle reports whether title matches any of titles after
// normalization.
func ContainsTitle(titles []string, title string) bool {
	want := similarity.Normalize(title)
	if want == "" {
		return false
	}
	for _, t := range titles {
		if similarity.Normalize(t) == want {
			return true
		}
	}
	return false
}

func normalizeCandidateTitles(primary string, alternates []string) []string {
	seen := make(map[string]struct{})
	var titles []string
	add := func(value string) {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return
		}
		lowered := strings.ToLower(trimmed)
		if _, exists := seen[lowered]; exists {
			return
		}
		seen[lowered] = struct{}{}
		titles = append(titles, trimmed)
	}
	addWithRomanization := func(value string) {
		add(value)
		if romanized := romanizeJapanese(value); romanized != "" {
			add(romanized)
		}
	}
	addWithRomanization(primary)
	for _, alt := range alternates {
		addWithRomanization(alt)
	}
	return titles
}

func romanizeJapanese(value string) string {
	if !containsJapaneseRune(value) {
		return ""
	}
	romanized := strings.TrimSpace(unidecode.Unidecode(value))
	if romanized == "" {
		return ""
	}
	return strings.Join(strings.Fields(romanized), " ")
}

func containsJapaneseRune(value string) bool {
	for _, r := range value {
		switch {
		case unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han):
			return true
		case r >= 0xFF66 && r <= 0xFF9D: // Half-width Katakana
			return true
		}
	}
	return false
}

func bestTitleSimilarity(candidates []string, title string) (float64, string) {
	var (
		bestScore     float64
		bestCandidate string
	)
	for _, candidate := range candidates {
		score := similarity.Similarity(candidate, title)
		if score > bestScore {
			bestScore = score
			bestCandidate = candidate
		}
	}
	return bestScore, bestCandidate
}
