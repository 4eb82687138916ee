package knowledge

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func newTestStore(t *testing.T) *WorkbookStore {
	t.Helper()
	return NewWorkbookStore(filepath.Join(t.TempDir(), "knowledge"))
}

func TestWorkbookAppendAndRead(t *testing.T) {
	store := newTestStore(t)

	err := store.AppendRow(SourceEmployees, map[string]string{
		AttrName:  "田中 太郎",
		AttrPhone: "090-0000-1111",
		AttrEmail: "tanaka@example.co.jp",
	}, "")
	if err != nil {
		t.Fatalf("AppendRow: %v", err)
	}

	records, err := store.ReadRecords(SourceEmployees)
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	record := records[0]
	if record.Attr(AttrName) != "田中 太郎" {
		t.Errorf("name = %q", record.Attr(AttrName))
	}
	if record.Attr(AttrPhone) != "090-0000-1111" {
		t.Errorf("phone = %q", record.Attr(AttrPhone))
	}
	if record.Row != 2 {
		t.Errorf("row = %d, want 2", record.Row)
	}
}

func TestWorkbookCreatedHeaderIsStable(t *testing.T) {
	want := []string{
		"氏名", "ふりがな", "呼び名", "ニックネーム", "携帯番号", "メールアドレス",
		"誕生日", "住所", "部署", "役職", "入社年", "趣味", "チャットID",
	}
	// Every fresh workbook gets the same header row regardless of how the
	// schema's title synonyms are iterated.
	for i := 0; i < 3; i++ {
		store := newTestStore(t)
		if err := store.AppendRow(SourceEmployees, map[string]string{AttrName: "田中 太郎"}, ""); err != nil {
			t.Fatalf("AppendRow: %v", err)
		}
		file, err := excelize.OpenFile(store.Path(SourceEmployees))
		if err != nil {
			t.Fatalf("open workbook: %v", err)
		}
		rows, err := file.GetRows(sheetSchemas[SourceEmployees].sheet)
		file.Close()
		if err != nil {
			t.Fatalf("read rows: %v", err)
		}
		if len(rows) == 0 {
			t.Fatal("no header row written")
		}
		if len(rows[0]) != len(want) {
			t.Fatalf("header = %v, want %v", rows[0], want)
		}
		for col, title := range want {
			if rows[0][col] != title {
				t.Fatalf("header[%d] = %q, want %q", col, rows[0][col], title)
			}
		}
	}
}

func TestWorkbookMissingFileIsEmptySource(t *testing.T) {
	store := newTestStore(t)
	records, err := store.ReadRecords(SourcePartners)
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty source, got %d records", len(records))
	}
}

func TestWorkbookScopeAndUseCount(t *testing.T) {
	store := newTestStore(t)

	if err := store.AppendRow(SourceCompany, map[string]string{
		AttrTopic: "社用車",
		AttrBody:  "社用車の鍵は受付にあります",
	}, "社内"); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}

	records, err := store.ReadRecords(SourceCompany)
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Scope != "社内" {
		t.Errorf("scope = %q", records[0].Scope)
	}

	if err := store.IncrementUseCount(SourceCompany, records[0].Row); err != nil {
		t.Fatalf("IncrementUseCount: %v", err)
	}
	records, err = store.ReadRecords(SourceCompany)
	if err != nil {
		t.Fatalf("ReadRecords after increment: %v", err)
	}
	if records[0].UseCount != 1 {
		t.Errorf("use count = %d, want 1", records[0].UseCount)
	}
}

func TestWorkbookDeleteRows(t *testing.T) {
	store := newTestStore(t)
	for _, topic := range []string{"a", "b", "c"} {
		if err := store.AppendRow(SourceCompany, map[string]string{
			AttrTopic: topic,
			AttrBody:  "body " + topic,
		}, ""); err != nil {
			t.Fatalf("AppendRow: %v", err)
		}
	}

	if err := store.DeleteRows(SourceCompany, []int{2, 4}); err != nil {
		t.Fatalf("DeleteRows: %v", err)
	}
	records, err := store.ReadRecords(SourceCompany)
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record left, got %d", len(records))
	}
	if records[0].Attr(AttrTopic) != "b" {
		t.Errorf("surviving topic = %q, want b", records[0].Attr(AttrTopic))
	}
}
