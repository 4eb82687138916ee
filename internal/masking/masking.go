// Package masking replaces personal data with opaque placeholder tokens
// before text leaves the process, and restores the originals in the reply.
package masking

import (
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// TokenMap maps a placeholder token back to the value it replaced.
type TokenMap map[string]string

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// Japanese phone formats: mobile 0X0-XXXX-XXXX, land line 0X-XXXX-XXXX,
	// and the undelimited 10-11 digit form.
	phonePattern = regexp.MustCompile(`0\d{1,3}[-ー]\d{2,4}[-ー]\d{3,4}|0\d{9,10}`)
	datePattern  = regexp.MustCompile(`\d{4}年\d{1,2}月\d{1,2}日|\d{4}[/-]\d{1,2}[/-]\d{1,2}`)
)

// sensitiveKeywords flag a message as touching personal data even when no
// concrete value appears in it. Mask also tokenizes the terms themselves, so
// the backend never sees which personal-data topic was asked about.
var sensitiveKeywords = []string{
	"誕生日",
	"生年月日",
	"住所",
	"血液型",
	"携帯",
	"電話番号",
	"メールアドレス",
	"年齢",
	"給料",
	"年収",
}

// Sensitive reports whether the text mentions a personal-data topic.
func Sensitive(text string) bool {
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// Masker rewrites personal values into placeholder tokens. Extra values
// registered via Protect are masked alongside the built-in patterns, so
// directory entries known to the caller never leak verbatim.
type Masker struct {
	patterns  []*regexp.Regexp
	protected []string
	seen      map[string]struct{}
}

func New() *Masker {
	return &Masker{
		patterns: []*regexp.Regexp{emailPattern, phonePattern, datePattern},
		seen:     map[string]struct{}{},
	}
}

// Protect registers literal values to mask in addition to the pattern scan.
// Blank and single-rune values are ignored; repeats are deduplicated so the
// list stays bounded when the same directory is registered every turn.
func (m *Masker) Protect(values ...string) {
	for _, value := range values {
		value = strings.TrimSpace(value)
		if len([]rune(value)) < 2 {
			continue
		}
		if _, dup := m.seen[value]; dup {
			continue
		}
		m.seen[value] = struct{}{}
		m.protected = append(m.protected, value)
	}
}

// Mask replaces every personal value in text with a fresh token and returns
// the rewritten text with the map needed to undo it. Repeated occurrences of
// the same value share one token. Protected values and sensitive keywords are
// replaced longest-first so a full name wins over its family-name substring.
func (m *Masker) Mask(text string) (string, TokenMap) {
	tokens := TokenMap{}
	assigned := map[string]string{} // value -> token

	replace := func(value string) string {
		if token, ok := assigned[value]; ok {
			return token
		}
		token := newToken()
		assigned[value] = token
		tokens[token] = value
		return token
	}

	for _, pattern := range m.patterns {
		text = pattern.ReplaceAllStringFunc(text, replace)
	}
	for _, value := range longestFirst(m.protected) {
		if !strings.Contains(text, value) {
			continue
		}
		text = strings.ReplaceAll(text, value, replace(value))
	}
	for _, keyword := range longestFirst(sensitiveKeywords) {
		if !strings.Contains(text, keyword) {
			continue
		}
		text = strings.ReplaceAll(text, keyword, replace(keyword))
	}
	return text, tokens
}

func longestFirst(values []string) []string {
	sorted := append([]string(nil), values...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len([]rune(sorted[i])) > len([]rune(sorted[j]))
	})
	return sorted
}

// Unmask restores the original values in a reply produced from masked input.
// Tokens the reply dropped are simply absent; tokens it echoed are replaced.
func Unmask(text string, tokens TokenMap) string {
	for token, value := range tokens {
		text = strings.ReplaceAll(text, token, value)
	}
	return text
}

func newToken() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "[[MASK_" + id[:8] + "]]"
}
