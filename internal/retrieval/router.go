package retrieval

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hibari-ai/officebot/internal/boterr"
	"github.com/hibari-ai/officebot/internal/knowledge"
)

// UseCounter records that a company-knowledge row answered a question. The
// write-back is best-effort; failures are logged, never surfaced.
type UseCounter interface {
	IncrementUseCount(source knowledge.Source, rowNumber int) error
}

// Outcome records how one source fared, kept even when a later source wins so
// diagnostics can tell "everything missed" from "a low-priority source hit".
type Outcome struct {
	Source  knowledge.Source
	Matched bool
	Reason  string
	Score   float64
}

// Answer is a resolved knowledge reply.
type Answer struct {
	Text      string
	Source    knowledge.Source
	Attribute string
	Record    knowledge.Record
	Ambiguous bool
	Trace     []Outcome
}

const morePrecisePrompt = "どの情報をお探しですか？もう少し具体的に教えてください。"

type Router struct {
	snapshots *knowledge.Handle
	counter   UseCounter
	logger    *slog.Logger
}

func NewRouter(snapshots *knowledge.Handle, counter UseCounter, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{snapshots: snapshots, counter: counter, logger: logger}
}

// Resolve consults each source in priority order and stops at the first
// accepted match. Company records are disclosure-filtered before they can
// match; a filtered record behaves exactly like a miss. When every source
// misses, boterr.ErrNoMatch is returned with the full trace attached.
func (r *Router) Resolve(ctx context.Context, query string, requester knowledge.Record) (Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{}, boterr.ErrNoMatch
	}
	snapshot := r.snapshots.Load()
	requesterAliases := knowledge.AliasSet(requester)

	trace := make([]Outcome, 0, len(knowledge.SourcePriority))
	for _, source := range knowledge.SourcePriority {
		if ctx.Err() != nil {
			return Answer{Trace: trace}, ctx.Err()
		}
		records := snapshot.Source(source)
		if source == knowledge.SourceCompany {
			records = visibleOnly(records, requesterAliases)
		}
		if len(records) == 0 {
			trace = append(trace, Outcome{Source: source, Reason: "empty"})
			continue
		}

		if result, ok := matchAttributes(query, records); ok {
			trace = append(trace, Outcome{Source: source, Matched: true, Reason: "attribute"})
			answer := Answer{
				Text:      formatAnswer(result.record, result.attribute),
				Source:    source,
				Attribute: result.attribute,
				Record:    result.record,
				Trace:     trace,
			}
			r.recordUse(source, result.record)
			return answer, nil
		} else if result.entityHit {
			// An entity matched but no attribute keyword did. Prompt for
			// specifics instead of dumping the record.
			trace = append(trace, Outcome{Source: source, Matched: true, Reason: "entity-only"})
			return Answer{
				Text:      morePrecisePrompt,
				Source:    source,
				Ambiguous: true,
				Trace:     trace,
			}, nil
		}

		if record, best, ok := bestBySimilarity(query, records); ok {
			trace = append(trace, Outcome{Source: source, Matched: true, Reason: "similarity", Score: best})
			answer := Answer{
				Text:   summarize(record),
				Source: source,
				Record: record,
				Trace:  trace,
			}
			r.recordUse(source, record)
			return answer, nil
		} else {
			trace = append(trace, Outcome{Source: source, Reason: "below-threshold", Score: best})
		}
	}

	r.logger.Debug("all knowledge sources missed", "query_len", len(query))
	return Answer{Trace: trace}, boterr.ErrNoMatch
}

func (r *Router) recordUse(source knowledge.Source, record knowledge.Record) {
	if r.counter == nil || source != knowledge.SourceCompany {
		return
	}
	if err := r.counter.IncrementUseCount(source, record.Row); err != nil {
		r.logger.Warn("use count write-back failed", "source", source, "row", record.Row, "error", err)
	}
}

func visibleOnly(records []knowledge.Record, requesterAliases map[string]struct{}) []knowledge.Record {
	visible := make([]knowledge.Record, 0, len(records))
	for _, record := range records {
		if Visible(record.Scope, requesterAliases) {
			visible = append(visible, record)
		}
	}
	return visible
}

func bestBySimilarity(query string, records []knowledge.Record) (knowledge.Record, float64, bool) {
	var best knowledge.Record
	bestScore := 0.0
	for _, record := range records {
		if s := score(query, record.Text()); s > bestScore {
			best, bestScore = record, s
		}
	}
	return best, bestScore, bestScore > scoreThreshold
}

// summarize picks the most contentful attribute of a similarity hit for the
// reply body.
func summarize(record knowledge.Record) string {
	for _, attr := range []string{knowledge.AttrBody, knowledge.AttrMessage, knowledge.AttrNote} {
		if v := record.Attr(attr); v != "" {
			return v
		}
	}
	return record.Text()
}
