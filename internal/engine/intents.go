package engine

import "strings"

var latestMailKeywords = []string{
	"最新のメール",
	"新しいメール",
	"メールを確認",
	"メール来てる",
}

var emailIntentKeywords = []string{
	"メールを送って",
	"メールで送って",
	"メールして",
	"メール送信して",
}

var rememberKeywords = []string{
	"覚えておいて",
	"覚えて",
	"メモしておいて",
	"メモして",
}

var forgetKeywords = []string{
	"忘れて",
	"削除して",
	"消して",
}

// importantKeywords route a message into the experience log in addition to
// the conversation log.
var importantKeywords = []string{
	"重要",
	"緊急",
	"至急",
	"必ず",
}

func isLatestMailIntent(text string) bool {
	return containsAny(text, latestMailKeywords)
}

func isEmailIntent(text string) bool {
	return containsAny(text, emailIntentKeywords)
}

// rememberPayload strips the trigger phrase and surrounding punctuation so
// only the fact to keep is stored.
func rememberPayload(text string) (string, bool) {
	return stripTrigger(text, rememberKeywords)
}

func forgetPayload(text string) (string, bool) {
	return stripTrigger(text, forgetKeywords)
}

func stripTrigger(text string, triggers []string) (string, bool) {
	for _, trigger := range triggers {
		if !strings.Contains(text, trigger) {
			continue
		}
		cleaned := strings.ReplaceAll(text, trigger, "")
		cleaned = strings.Trim(cleaned, " 　。、！!？?を")
		return cleaned, true
	}
	return "", false
}

// emailBody removes the trigger phrase from an email request; when nothing
// is left the original utterance is used as the body.
func emailBody(text string) string {
	cleaned := text
	for _, trigger := range emailIntentKeywords {
		cleaned = strings.ReplaceAll(cleaned, trigger, "")
	}
	cleaned = strings.Trim(cleaned, " 　。、")
	if cleaned == "" {
		return text
	}
	return cleaned
}

func importantCategory(text string) (string, bool) {
	for _, keyword := range importantKeywords {
		if strings.Contains(text, keyword) {
			return keyword, true
		}
	}
	return "", false
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
