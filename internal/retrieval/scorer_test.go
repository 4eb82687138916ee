package retrieval

import "testing"

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"同じ文字列", "同じ文字列", 0},
		{"会議室", "会議質", 1},
	}
	for _, tc := range cases {
		if got := levenshtein([]rune(tc.a), []rune(tc.b)); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestScoreIdenticalStrings(t *testing.T) {
	if got := score("社内の備品管理について", "社内の備品管理について"); got <= scoreThreshold {
		t.Errorf("identical strings scored %.2f, want above threshold", got)
	}
}

func TestScoreUnrelatedStringsBelowThreshold(t *testing.T) {
	if got := score("昼ごはんどうしますか", "プリンタのトナー交換手順"); got > scoreThreshold {
		t.Errorf("unrelated strings scored %.2f, want at or below threshold", got)
	}
}

func TestScoreTokenBonusIsCapped(t *testing.T) {
	// Six shared tokens would earn 0.6 uncapped; the bonus alone must never
	// push an otherwise weak candidate past 1.0.
	query := "alpha beta gamma delta epsilon zeta"
	text := "alpha beta gamma delta epsilon zeta extra words to stretch the candidate much longer than the query"
	got := score(query, text)
	base := similarityRatio([]rune(query), []rune(text))
	if bonus := got - base; bonus > tokenBonusCap+1e-9 {
		t.Errorf("token bonus = %.2f, want capped at %.2f", bonus, tokenBonusCap)
	}
}

func TestScoreIgnoresSingleRuneTokens(t *testing.T) {
	withShort := score("a 会議", "会議")
	withoutShort := score("会議", "会議")
	if withShort > withoutShort {
		t.Errorf("single-rune token earned a bonus: %.2f > %.2f", withShort, withoutShort)
	}
}
