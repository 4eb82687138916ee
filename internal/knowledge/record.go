// Package knowledge normalizes rows from the tabular knowledge stores into a
// uniform attribute-bag representation and publishes them as immutable
// snapshots.
package knowledge

import "strings"

// Source identifies which tabular store a record came from. The declaration
// order is the router's consultation priority.
type Source string

const (
	SourceEmployees    Source = "employees"
	SourceCompany      Source = "company"
	SourcePartners     Source = "partners"
	SourceExperience   Source = "experience"
	SourceConversation Source = "conversation"
)

// SourcePriority lists the sources in router consultation order.
var SourcePriority = []Source{
	SourceEmployees,
	SourceCompany,
	SourcePartners,
	SourceExperience,
	SourceConversation,
}

// Record is one row of a knowledge store, keyed by attribute name. Scope and
// UseCount are only meaningful for SourceCompany records.
type Record struct {
	Source   Source
	Attrs    map[string]string
	Scope    string
	UseCount int
	// Row is the backing sheet row, used for use-count write-back.
	Row int
}

// Attr returns the trimmed attribute value, or "" when absent.
func (r Record) Attr(name string) string {
	return strings.TrimSpace(r.Attrs[name])
}

// Name returns the record's display name attribute.
func (r Record) Name() string {
	if v := r.Attr(AttrName); v != "" {
		return v
	}
	return r.Attr(AttrCallName)
}

// Text concatenates all attribute values for similarity scoring.
func (r Record) Text() string {
	parts := make([]string, 0, len(r.Attrs))
	for _, column := range allColumns {
		if v := strings.TrimSpace(r.Attrs[column]); v != "" {
			parts = append(parts, v)
		}
	}
	// Attributes outside the known schemas still participate.
	for name, v := range r.Attrs {
		if _, known := knownColumn[name]; !known && strings.TrimSpace(v) != "" {
			parts = append(parts, strings.TrimSpace(v))
		}
	}
	return strings.Join(parts, " ")
}

// Canonical attribute names. Workbook ingestion maps sheet columns onto these
// once; nothing downstream indexes into a raw row by position.
const (
	AttrName       = "name"
	AttrKana       = "kana"
	AttrCallName   = "callname"
	AttrNickname   = "nickname"
	AttrPhone      = "phone"
	AttrEmail      = "email"
	AttrBirthday   = "birthday"
	AttrAddress    = "address"
	AttrDepartment = "department"
	AttrRole       = "role"
	AttrJoined     = "joined"
	AttrHobby      = "hobby"
	AttrChatID     = "chat_id"
	AttrCompany    = "company"
	AttrContact    = "contact"
	AttrNote       = "note"
	AttrTopic      = "topic"
	AttrBody       = "body"
	AttrAuthor     = "author"
	AttrDate       = "date"
	AttrSpeaker    = "speaker"
	AttrMessage    = "message"
	AttrCategory   = "category"
)

var allColumns = []string{
	AttrName, AttrKana, AttrCallName, AttrNickname, AttrPhone, AttrEmail,
	AttrBirthday, AttrAddress, AttrDepartment, AttrRole, AttrJoined, AttrHobby,
	AttrChatID, AttrCompany, AttrContact, AttrNote, AttrTopic, AttrBody,
	AttrAuthor, AttrDate, AttrSpeaker, AttrMessage, AttrCategory,
}

var knownColumn = func() map[string]struct{} {
	m := make(map[string]struct{}, len(allColumns))
	for _, c := range allColumns {
		m[c] = struct{}{}
	}
	return m
}()
