package knowledge

import (
	"sync/atomic"
	"time"
)

// Snapshot is an immutable view of every knowledge source, built by the
// refresher and read lock-free by the retrieval pipeline. A snapshot is never
// mutated after publication.
type Snapshot struct {
	Records map[Source][]Record
	BuiltAt time.Time
}

// Source returns the records for one source; nil snapshots and missing
// sources yield an empty slice.
func (s *Snapshot) Source(source Source) []Record {
	if s == nil || s.Records == nil {
		return nil
	}
	return s.Records[source]
}

// Employees is shorthand for the person directory.
func (s *Snapshot) Employees() []Record {
	return s.Source(SourceEmployees)
}

// EmployeeByChatID looks up the person record registered under a chat
// platform user id.
func (s *Snapshot) EmployeeByChatID(chatID string) (Record, bool) {
	for _, record := range s.Employees() {
		if record.Attr(AttrChatID) == chatID {
			return record, true
		}
	}
	return Record{}, false
}

// Handle publishes snapshots atomically so readers never observe a
// half-updated collection.
type Handle struct {
	current atomic.Pointer[Snapshot]
}

// NewHandle returns a handle seeded with an empty snapshot.
func NewHandle() *Handle {
	h := &Handle{}
	h.current.Store(&Snapshot{Records: map[Source][]Record{}, BuiltAt: time.Now().UTC()})
	return h
}

// Load returns the currently published snapshot.
func (h *Handle) Load() *Snapshot {
	return h.current.Load()
}

// Publish replaces the current snapshot.
func (h *Handle) Publish(snapshot *Snapshot) {
	if snapshot == nil {
		return
	}
	if snapshot.BuiltAt.IsZero() {
		snapshot.BuiltAt = time.Now().UTC()
	}
	h.current.Store(snapshot)
}
