// Package retrieval routes a user query across the knowledge sources in
// priority order: exact attribute matching first, similarity scoring as the
// fallback, disclosure filtering for company records throughout.
package retrieval

import (
	"fmt"
	"strings"

	"github.com/hibari-ai/officebot/internal/knowledge"
)

// attributeKeywords maps query keywords onto canonical record attributes. A
// keyword may appear in either language; several synonyms resolve to the same
// field.
var attributeKeywords = map[string]string{
	"電話番号":   knowledge.AttrPhone,
	"電話":     knowledge.AttrPhone,
	"携帯番号":   knowledge.AttrPhone,
	"携帯":     knowledge.AttrPhone,
	"phone":  knowledge.AttrPhone,
	"mobile": knowledge.AttrPhone,
	"cell":   knowledge.AttrPhone,

	"メールアドレス": knowledge.AttrEmail,
	"メール":     knowledge.AttrEmail,
	"email":   knowledge.AttrEmail,
	"mail":    knowledge.AttrEmail,

	"誕生日":      knowledge.AttrBirthday,
	"生年月日":     knowledge.AttrBirthday,
	"birthday": knowledge.AttrBirthday,

	"住所":      knowledge.AttrAddress,
	"address": knowledge.AttrAddress,

	"部署":         knowledge.AttrDepartment,
	"department": knowledge.AttrDepartment,

	"役職":   knowledge.AttrRole,
	"役割":   knowledge.AttrRole,
	"role": knowledge.AttrRole,

	"入社年":    knowledge.AttrJoined,
	"入社":     knowledge.AttrJoined,
	"joined": knowledge.AttrJoined,

	"趣味":    knowledge.AttrHobby,
	"hobby": knowledge.AttrHobby,

	"ふりがな":    knowledge.AttrKana,
	"読み":      knowledge.AttrKana,
	"reading": knowledge.AttrKana,

	"会社名":     knowledge.AttrCompany,
	"company": knowledge.AttrCompany,

	"連絡先":     knowledge.AttrContact,
	"contact": knowledge.AttrContact,
}

// attributeLabels carries the display label for each attribute, Japanese and
// English. The English form is used when the matched entity name is ASCII.
var attributeLabels = map[string][2]string{
	knowledge.AttrPhone:      {"電話番号", "phone number"},
	knowledge.AttrEmail:      {"メールアドレス", "email address"},
	knowledge.AttrBirthday:   {"誕生日", "birthday"},
	knowledge.AttrAddress:    {"住所", "address"},
	knowledge.AttrDepartment: {"部署", "department"},
	knowledge.AttrRole:       {"役職", "role"},
	knowledge.AttrJoined:     {"入社年", "join year"},
	knowledge.AttrHobby:      {"趣味", "hobby"},
	knowledge.AttrKana:       {"ふりがな", "reading"},
	knowledge.AttrCompany:    {"会社名", "company name"},
	knowledge.AttrContact:    {"連絡先", "contact"},
}

// matchResult is the outcome of attribute matching within one source.
type matchResult struct {
	record    knowledge.Record
	attribute string
	entityHit bool // an entity matched even if no attribute did
}

// matchAttributes looks for a record whose alias appears in the query together
// with an attribute keyword the record can answer. When only the entity
// matches, entityHit is reported so the caller can prompt for specifics
// instead of dumping the record.
func matchAttributes(query string, records []knowledge.Record) (matchResult, bool) {
	normalized := normalizeQuery(query)
	result := matchResult{}
	for _, record := range records {
		aliases := knowledge.AliasSet(record)
		if _, ok := knowledge.MatchesAlias(normalized, aliases); !ok {
			continue
		}
		result.entityHit = true
		attribute, ok := findAttributeKeyword(normalized)
		if !ok {
			continue
		}
		if record.Attr(attribute) == "" {
			continue
		}
		result.record = record
		result.attribute = attribute
		return result, true
	}
	return result, false
}

// findAttributeKeyword scans the query for an attribute keyword, preferring
// the longest hit so "電話番号" wins over "電話".
func findAttributeKeyword(query string) (string, bool) {
	lowered := strings.ToLower(query)
	bestKeyword, bestAttr := "", ""
	for keyword, attr := range attributeKeywords {
		if strings.Contains(lowered, keyword) && len(keyword) > len(bestKeyword) {
			bestKeyword, bestAttr = keyword, attr
		}
	}
	return bestAttr, bestKeyword != ""
}

// normalizeQuery strips honorifics token by token so "田中さんの電話番号"
// matches the directory entry for 田中.
func normalizeQuery(query string) string {
	fields := strings.Fields(query)
	for i, field := range fields {
		fields[i] = knowledge.StripHonorific(field)
	}
	normalized := strings.Join(fields, " ")
	// Honorifics embedded mid-phrase (no whitespace in Japanese) are removed
	// outright.
	for _, honorific := range []string{"さん", "さま", "様"} {
		normalized = strings.ReplaceAll(normalized, honorific, "")
	}
	return normalized
}

// formatAnswer renders the single-attribute reply. English records get an
// English sentence, everything else the Japanese form.
func formatAnswer(record knowledge.Record, attribute string) string {
	labels := attributeLabels[attribute]
	entity := record.Name()
	value := record.Attr(attribute)
	if isASCII(entity) {
		return fmt.Sprintf("%s's %s is %s", entity, labels[1], value)
	}
	return fmt.Sprintf("%sの%sは%sです", entity, labels[0], value)
}

func isASCII(text string) bool {
	for _, r := range text {
		if r > 0x7f {
			return false
		}
	}
	return text != ""
}
