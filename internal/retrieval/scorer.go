package retrieval

import "strings"

// Similarity acceptance threshold for the fuzzy fallback. Below this a source
// reports no match.
const scoreThreshold = 0.5

// tokenBonusStep is added per query token literally present in the record
// text, capped so the bonus never dominates the ratio.
const (
	tokenBonusStep = 0.1
	tokenBonusCap  = 0.3
)

// score combines a normalized edit-distance ratio between the cleaned query
// and the record text with a token-overlap bonus.
func score(query, recordText string) float64 {
	query = strings.ToLower(strings.TrimSpace(query))
	recordText = strings.ToLower(strings.TrimSpace(recordText))
	if query == "" || recordText == "" {
		return 0
	}

	ratio := similarityRatio([]rune(query), []rune(recordText))

	bonus := 0.0
	for _, token := range strings.Fields(query) {
		if len([]rune(token)) < 2 {
			continue
		}
		if strings.Contains(recordText, token) {
			bonus += tokenBonusStep
		}
	}
	if bonus > tokenBonusCap {
		bonus = tokenBonusCap
	}
	return ratio + bonus
}

// similarityRatio is 1 - levenshtein/maxLen over runes, so CJK text is
// measured per character rather than per byte.
func similarityRatio(a, b []rune) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for j := range previous {
		previous[j] = j
	}
	for i := 1; i <= len(a); i++ {
		current[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			current[j] = min3(
				previous[j]+1,
				current[j-1]+1,
				previous[j-1]+cost,
			)
		}
		previous, current = current, previous
	}
	return previous[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
