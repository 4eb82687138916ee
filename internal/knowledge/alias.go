package knowledge

import "strings"

// Honorific suffixes stripped when normalizing person references. The ASCII
// forms cover romanized usage in mixed-language chats.
var honorifics = []string{
	"さん", "さま", "様", "君", "くん", "ちゃん", "氏", "先生",
	"-san", "-sama", "-kun", "-chan", " san", " sama",
}

// StripHonorific removes a trailing honorific from a person reference.
func StripHonorific(name string) string {
	trimmed := strings.TrimSpace(name)
	for _, suffix := range honorifics {
		if cut, ok := strings.CutSuffix(trimmed, suffix); ok && cut != "" {
			return strings.TrimSpace(cut)
		}
	}
	return trimmed
}

// AliasSet derives the set of strings that refer to a person record: its
// canonical name, reading, call name, nickname, and honorific-stripped
// variants of each. Keys are lowercased for ASCII tolerance.
func AliasSet(record Record) map[string]struct{} {
	aliases := make(map[string]struct{})
	add := func(value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		aliases[strings.ToLower(value)] = struct{}{}
		if stripped := StripHonorific(value); stripped != value {
			aliases[strings.ToLower(stripped)] = struct{}{}
		}
	}
	add(record.Attr(AttrName))
	add(record.Attr(AttrKana))
	add(record.Attr(AttrCallName))
	add(record.Attr(AttrNickname))
	// Family-name-only references are common ("田中" for "田中 太郎").
	for _, full := range []string{record.Attr(AttrName), record.Attr(AttrKana)} {
		for _, sep := range []string{" ", "　"} {
			if family, _, found := strings.Cut(full, sep); found {
				add(family)
			}
		}
	}
	return aliases
}

// MatchesAlias reports whether the query text references any of the aliases,
// and returns the alias that hit.
func MatchesAlias(query string, aliases map[string]struct{}) (string, bool) {
	lowered := strings.ToLower(query)
	best := ""
	for alias := range aliases {
		if strings.Contains(lowered, alias) && len(alias) > len(best) {
			best = alias
		}
	}
	return best, best != ""
}
