package dialogue

import (
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// GreetingWindow is how long a greeting category stays suppressed per user
// after it has been answered once.
const GreetingWindow = 3 * time.Hour

type greeting struct {
	category string
	keywords []string
	reply    string
}

// Ordered so the more specific match wins before a generic one.
var greetings = []greeting{
	{"morning", []string{"おはよう"}, "おはようございます！今日もよろしくお願いします。"},
	{"evening", []string{"こんばんは"}, "こんばんは！お疲れ様です。"},
	{"hello", []string{"こんにちは"}, "こんにちは！何かお手伝いできることはありますか？"},
	{"thanks", []string{"ありがとう", "ありがと"}, "どういたしまして！いつでもどうぞ。"},
	{"bye", []string{"お疲れ様", "おつかれ"}, "お疲れ様でした！ゆっくり休んでくださいね。"},
}

// Greeter answers simple greetings at most once per category per user within
// the window. A suppressed greeting returns ok=false so the turn can fall
// through to the rest of the pipeline.
type Greeter struct {
	seen   *cache.Cache
	window time.Duration
}

func NewGreeter() *Greeter {
	return &Greeter{
		seen:   cache.New(GreetingWindow, 10*time.Minute),
		window: GreetingWindow,
	}
}

// Greet returns the canned reply for a greeting utterance unless the same
// category was already answered for this user within the window.
func (g *Greeter) Greet(userID, text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	for _, candidate := range greetings {
		if !containsAny(trimmed, candidate.keywords) {
			continue
		}
		key := userID + "/" + candidate.category
		if _, throttled := g.seen.Get(key); throttled {
			return "", false
		}
		g.seen.Set(key, time.Now(), g.window)
		return candidate.reply, true
	}
	return "", false
}
