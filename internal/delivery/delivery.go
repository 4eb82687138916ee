// Package delivery decides whether a candidate reply fits the primary
// channel or must be deferred to the alternate one. Limits are counted in
// runes so CJK text is measured per character.
package delivery

// DefaultLimit is the channel limit a reply must fit within to go out
// immediately. HardCap bounds any text that is sent regardless.
const (
	DefaultLimit = 80
	HardCap      = 100
)

// Decision is the outcome for one candidate reply. Exactly one of Immediate
// or Deferred applies.
type Decision struct {
	Immediate string // ready to send as-is
	Deferred  bool   // too long; FullText must be parked for escalation
	FullText  string
}

// Decide returns the candidate for immediate delivery when it fits the
// limit, and a deferred decision carrying the full text otherwise. A
// non-positive limit falls back to DefaultLimit.
func Decide(candidate string, limit int) Decision {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len([]rune(candidate)) <= limit {
		return Decision{Immediate: candidate}
	}
	return Decision{Deferred: true, FullText: candidate}
}

// Truncate cuts text to at most limit runes.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
