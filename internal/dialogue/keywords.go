package dialogue

import "strings"

// attendanceKeywords open the relay workflow; the matched keyword is stored
// as the attendance kind.
var attendanceKeywords = []string{
	"遅刻",
	"休み",
	"休暇",
	"出社",
	"在宅",
	"早退",
}

// topicChangeKeywords abort any open workflow and return the session to idle.
var topicChangeKeywords = []string{
	"やっぱり",
	"ちなみに",
	"ところで",
	"別件",
	"変更",
	"違う話",
}

var yesWords = []string{
	"はい",
	"うん",
	"ええ",
	"お願いします",
	"お願い",
	"yes",
	"ok",
	"了解",
}

var noWords = []string{
	"いいえ",
	"いえ",
	"いらない",
	"不要",
	"やめて",
	"やめる",
	"no",
	"キャンセル",
}

// doneWords close the recipient-accumulation loop and trigger the send.
var doneWords = []string{
	"以上",
	"いない",
	"いません",
	"送って",
	"送信",
}

func attendanceKind(text string) (string, bool) {
	for _, keyword := range attendanceKeywords {
		if strings.Contains(text, keyword) {
			return keyword, true
		}
	}
	return "", false
}

func isTopicChange(text string) bool {
	return containsAny(text, topicChangeKeywords)
}

func isYes(text string) bool {
	return matchesAnswer(text, yesWords)
}

func isNo(text string) bool {
	return matchesAnswer(text, noWords)
}

func isDone(text string) bool {
	return matchesAnswer(text, doneWords) || isYes(text)
}

// matchesAnswer compares loosely: a short utterance that contains the word
// counts, so "はい、お願いします" is a yes.
func matchesAnswer(text string, words []string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return false
	}
	for _, word := range words {
		if normalized == word || strings.Contains(normalized, word) {
			return true
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
