package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/hibari-ai/officebot/internal/boterr"
	"github.com/hibari-ai/officebot/internal/knowledge"
)

type fakeCounter struct {
	source knowledge.Source
	row    int
	calls  int
}

func (f *fakeCounter) IncrementUseCount(source knowledge.Source, rowNumber int) error {
	f.source = source
	f.row = rowNumber
	f.calls++
	return nil
}

func newHandle(records map[knowledge.Source][]knowledge.Record) *knowledge.Handle {
	handle := knowledge.NewHandle()
	handle.Publish(&knowledge.Snapshot{Records: records})
	return handle
}

func employeeTanaka() knowledge.Record {
	return knowledge.Record{
		Source: knowledge.SourceEmployees,
		Attrs: map[string]string{
			knowledge.AttrName:  "Tanaka",
			knowledge.AttrPhone: "090-0000-1111",
		},
		Row: 2,
	}
}

func TestResolveAttributeMatchFromDirectory(t *testing.T) {
	handle := newHandle(map[knowledge.Source][]knowledge.Record{
		knowledge.SourceEmployees: {employeeTanaka()},
		knowledge.SourceConversation: {{
			Source: knowledge.SourceConversation,
			Attrs:  map[string]string{knowledge.AttrMessage: "What is Tanaka's phone number?"},
		}},
	})
	router := NewRouter(handle, nil, nil)

	answer, err := router.Resolve(context.Background(), "What is Tanaka's phone number?", knowledge.Record{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if answer.Text != "Tanaka's phone number is 090-0000-1111" {
		t.Errorf("text = %q", answer.Text)
	}
	if answer.Source != knowledge.SourceEmployees {
		t.Errorf("source = %q, want the directory (never the conversation log)", answer.Source)
	}
	if answer.Attribute != knowledge.AttrPhone {
		t.Errorf("attribute = %q", answer.Attribute)
	}
}

func TestResolveJapaneseAttributeMatch(t *testing.T) {
	handle := newHandle(map[knowledge.Source][]knowledge.Record{
		knowledge.SourceEmployees: {{
			Source: knowledge.SourceEmployees,
			Attrs: map[string]string{
				knowledge.AttrName:  "田中 太郎",
				knowledge.AttrPhone: "090-0000-1111",
			},
		}},
	})
	router := NewRouter(handle, nil, nil)

	answer, err := router.Resolve(context.Background(), "田中さんの携帯番号を教えて", knowledge.Record{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if answer.Text != "田中 太郎の電話番号は090-0000-1111です" {
		t.Errorf("text = %q", answer.Text)
	}
}

func TestResolveEntityOnlyPromptsForSpecifics(t *testing.T) {
	handle := newHandle(map[knowledge.Source][]knowledge.Record{
		knowledge.SourceEmployees: {employeeTanaka()},
	})
	router := NewRouter(handle, nil, nil)

	answer, err := router.Resolve(context.Background(), "Tanakaについて教えて", knowledge.Record{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !answer.Ambiguous {
		t.Fatal("expected ambiguous outcome")
	}
	if answer.Text != morePrecisePrompt {
		t.Errorf("text = %q", answer.Text)
	}
}

func TestResolveNoMatchKeepsTrace(t *testing.T) {
	handle := newHandle(map[knowledge.Source][]knowledge.Record{
		knowledge.SourceEmployees: {employeeTanaka()},
	})
	router := NewRouter(handle, nil, nil)

	answer, err := router.Resolve(context.Background(), "全く関係のない話題ですよね", knowledge.Record{})
	if !errors.Is(err, boterr.ErrNoMatch) {
		t.Fatalf("err = %v, want ErrNoMatch", err)
	}
	if len(answer.Trace) != len(knowledge.SourcePriority) {
		t.Errorf("trace length = %d, want one outcome per source", len(answer.Trace))
	}
	for _, outcome := range answer.Trace {
		if outcome.Matched {
			t.Errorf("source %s unexpectedly matched", outcome.Source)
		}
	}
}

func TestResolveCompanyRecordsAreFilteredBeforeMatching(t *testing.T) {
	secret := knowledge.Record{
		Source: knowledge.SourceCompany,
		Attrs: map[string]string{
			knowledge.AttrTopic: "山田の評価面談メモ",
			knowledge.AttrBody:  "山田の評価面談メモ の内容です",
		},
		Scope: "佐藤",
		Row:   2,
	}
	handle := newHandle(map[knowledge.Source][]knowledge.Record{
		knowledge.SourceCompany: {secret},
	})
	router := NewRouter(handle, nil, nil)

	requester := knowledge.Record{
		Source: knowledge.SourceEmployees,
		Attrs:  map[string]string{knowledge.AttrName: "鈴木"},
	}
	_, err := router.Resolve(context.Background(), "山田の評価面談メモ の内容", requester)
	if !errors.Is(err, boterr.ErrNoMatch) {
		t.Fatalf("err = %v, want ErrNoMatch for a filtered record", err)
	}

	sato := knowledge.Record{
		Source: knowledge.SourceEmployees,
		Attrs:  map[string]string{knowledge.AttrName: "佐藤"},
	}
	answer, err := router.Resolve(context.Background(), "山田の評価面談メモ の内容", sato)
	if err != nil {
		t.Fatalf("Resolve for scoped requester: %v", err)
	}
	if answer.Source != knowledge.SourceCompany {
		t.Errorf("source = %q", answer.Source)
	}
}

func TestResolveIncrementsCompanyUseCount(t *testing.T) {
	record := knowledge.Record{
		Source: knowledge.SourceCompany,
		Attrs: map[string]string{
			knowledge.AttrTopic: "社用車の鍵の置き場所",
			knowledge.AttrBody:  "社用車の鍵は受付にあります",
		},
		Row: 5,
	}
	handle := newHandle(map[knowledge.Source][]knowledge.Record{
		knowledge.SourceCompany: {record},
	})
	counter := &fakeCounter{}
	router := NewRouter(handle, counter, nil)

	if _, err := router.Resolve(context.Background(), "社用車の鍵は受付にあります か", knowledge.Record{}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if counter.calls != 1 || counter.source != knowledge.SourceCompany || counter.row != 5 {
		t.Errorf("use count write-back = %+v", counter)
	}
}
