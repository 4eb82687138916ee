package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

// sheetSchema maps a workbook sheet onto canonical record attributes. The
// header row is matched case-insensitively against both the Japanese and
// English column titles, so operator-maintained workbooks keep working after
// a column rename in either language.
type sheetSchema struct {
	sheet   string
	columns map[string]string // header title -> canonical attribute
	header  []string          // ordered default header for newly created workbooks
	scope   string            // header title of the disclosure-scope column
	useCnt  string            // header title of the use-count column
}

var sheetSchemas = map[Source]sheetSchema{
	SourceEmployees: {
		sheet: "従業員情報",
		columns: map[string]string{
			"氏名": AttrName, "name": AttrName,
			"ふりがな": AttrKana, "kana": AttrKana,
			"呼び名": AttrCallName, "callname": AttrCallName,
			"ニックネーム": AttrNickname, "nickname": AttrNickname,
			"携帯番号": AttrPhone, "電話番号": AttrPhone, "phone": AttrPhone,
			"メールアドレス": AttrEmail, "email": AttrEmail,
			"誕生日": AttrBirthday, "birthday": AttrBirthday,
			"住所": AttrAddress, "address": AttrAddress,
			"部署": AttrDepartment, "department": AttrDepartment,
			"役職": AttrRole, "role": AttrRole,
			"入社年": AttrJoined, "joined": AttrJoined,
			"趣味": AttrHobby, "hobby": AttrHobby,
			"チャットID": AttrChatID, "chat_id": AttrChatID,
		},
		header: []string{
			"氏名", "ふりがな", "呼び名", "ニックネーム", "携帯番号", "メールアドレス",
			"誕生日", "住所", "部署", "役職", "入社年", "趣味", "チャットID",
		},
	},
	SourcePartners: {
		sheet: "取引先情報",
		columns: map[string]string{
			"会社名": AttrCompany, "company": AttrCompany,
			"担当者": AttrName, "name": AttrName,
			"連絡先": AttrContact, "contact": AttrContact,
			"電話番号": AttrPhone, "phone": AttrPhone,
			"メールアドレス": AttrEmail, "email": AttrEmail,
			"備考": AttrNote, "note": AttrNote,
		},
		header: []string{"会社名", "担当者", "連絡先", "電話番号", "メールアドレス", "備考"},
	},
	SourceCompany: {
		sheet: "会社情報",
		columns: map[string]string{
			"日付": AttrDate, "date": AttrDate,
			"登録者": AttrAuthor, "author": AttrAuthor,
			"件名": AttrTopic, "topic": AttrTopic,
			"内容": AttrBody, "body": AttrBody,
		},
		header: []string{"日付", "登録者", "件名", "内容"},
		scope:  "開示範囲",
		useCnt: "利用回数",
	},
	SourceExperience: {
		sheet: "経験ログ",
		columns: map[string]string{
			"日付": AttrDate, "date": AttrDate,
			"発言者": AttrSpeaker, "speaker": AttrSpeaker,
			"内容": AttrBody, "body": AttrBody,
			"分類": AttrCategory, "category": AttrCategory,
		},
		header: []string{"日付", "発言者", "内容", "分類"},
	},
}

// WorkbookStore reads and appends knowledge rows in xlsx workbooks, one file
// per source, under a single directory. It implements the knowledge store
// reader/writer the retrieval pipeline depends on.
type WorkbookStore struct {
	dir string
	mu  sync.Mutex
}

func NewWorkbookStore(dir string) *WorkbookStore {
	return &WorkbookStore{dir: strings.TrimSpace(dir)}
}

// Path returns the workbook file backing a source.
func (s *WorkbookStore) Path(source Source) string {
	return filepath.Join(s.dir, string(source)+".xlsx")
}

// ReadRecords loads every data row of a source workbook as attribute-bag
// records. A missing workbook is an empty source, not an error.
func (s *WorkbookStore) ReadRecords(source Source) ([]Record, error) {
	schema, ok := sheetSchemas[source]
	if !ok {
		return nil, fmt.Errorf("unknown knowledge source %q", source)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(source)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer file.Close()

	rows, err := file.GetRows(schema.sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", schema.sheet, err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	attrCols, scopeCol, useCol := resolveHeader(schema, rows[0])
	records := make([]Record, 0, len(rows)-1)
	for index, row := range rows[1:] {
		record := Record{
			Source: source,
			Attrs:  make(map[string]string),
			Row:    index + 2, // 1-based, after the header
		}
		empty := true
		for col, value := range row {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			if attr, ok := attrCols[col]; ok {
				record.Attrs[attr] = value
				empty = false
				continue
			}
			if col == scopeCol {
				record.Scope = value
			}
			if col == useCol {
				if n, err := strconv.Atoi(value); err == nil {
					record.UseCount = n
				}
			}
		}
		if !empty {
			records = append(records, record)
		}
	}
	return records, nil
}

// AppendRow appends one record's attributes as a new sheet row, creating the
// workbook with its header on first use.
func (s *WorkbookStore) AppendRow(source Source, attrs map[string]string, scope string) error {
	schema, ok := sheetSchemas[source]
	if !ok {
		return fmt.Errorf("unknown knowledge source %q", source)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(source)
	file, created, err := s.openOrCreate(path, schema)
	if err != nil {
		return err
	}
	defer file.Close()

	rows, err := file.GetRows(schema.sheet)
	if err != nil {
		return fmt.Errorf("read sheet %s: %w", schema.sheet, err)
	}
	header := headerTitles(schema)
	if len(rows) > 0 && !created {
		header = rows[0]
	}

	row := make([]interface{}, len(header))
	attrCols, scopeCol, useCol := resolveHeader(schema, header)
	for col := range header {
		if attr, ok := attrCols[col]; ok {
			row[col] = attrs[attr]
		}
		if col == scopeCol {
			row[col] = scope
		}
		if col == useCol {
			row[col] = 0
		}
	}

	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return err
	}
	if err := file.SetSheetRow(schema.sheet, cell, &row); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	if err := file.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

// DeleteRows removes the given sheet rows (1-based) from a source workbook.
// Rows are removed bottom-up so earlier indexes stay valid.
func (s *WorkbookStore) DeleteRows(source Source, rowNumbers []int) error {
	schema, ok := sheetSchemas[source]
	if !ok {
		return fmt.Errorf("unknown knowledge source %q", source)
	}
	if len(rowNumbers) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(source)
	file, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer file.Close()

	sorted := append([]int(nil), rowNumbers...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j] > sorted[i] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	for _, row := range sorted {
		if row < 2 {
			continue // never delete the header
		}
		if err := file.RemoveRow(schema.sheet, row); err != nil {
			return fmt.Errorf("remove row %d: %w", row, err)
		}
	}
	if err := file.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

// IncrementUseCount bumps the use-count cell of a company-knowledge row.
// Sources without a use-count column are a no-op.
func (s *WorkbookStore) IncrementUseCount(source Source, rowNumber int) error {
	schema, ok := sheetSchemas[source]
	if !ok {
		return fmt.Errorf("unknown knowledge source %q", source)
	}
	if schema.useCnt == "" || rowNumber < 2 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(source)
	file, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer file.Close()

	rows, err := file.GetRows(schema.sheet)
	if err != nil {
		return fmt.Errorf("read sheet %s: %w", schema.sheet, err)
	}
	if len(rows) == 0 || rowNumber > len(rows) {
		return nil
	}
	_, _, useCol := resolveHeader(schema, rows[0])
	if useCol < 0 {
		return nil
	}

	current := 0
	if row := rows[rowNumber-1]; len(row) > useCol {
		if n, err := strconv.Atoi(strings.TrimSpace(row[useCol])); err == nil {
			current = n
		}
	}
	cell, err := excelize.CoordinatesToCellName(useCol+1, rowNumber)
	if err != nil {
		return err
	}
	if err := file.SetCellValue(schema.sheet, cell, current+1); err != nil {
		return fmt.Errorf("update use count: %w", err)
	}
	if err := file.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func (s *WorkbookStore) openOrCreate(path string, schema sheetSchema) (*excelize.File, bool, error) {
	if _, err := os.Stat(path); err == nil {
		file, err := excelize.OpenFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("open workbook %s: %w", path, err)
		}
		return file, false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, err
	}
	file := excelize.NewFile()
	index, err := file.NewSheet(schema.sheet)
	if err != nil {
		file.Close()
		return nil, false, err
	}
	file.SetActiveSheet(index)
	header := make([]interface{}, 0)
	for _, title := range headerTitles(schema) {
		header = append(header, title)
	}
	if err := file.SetSheetRow(schema.sheet, "A1", &header); err != nil {
		file.Close()
		return nil, false, err
	}
	return file, true, nil
}

// headerTitles returns the default header for new workbooks: the schema's
// ordered titles, then scope and use count.
func headerTitles(schema sheetSchema) []string {
	titles := append([]string(nil), schema.header...)
	if schema.scope != "" {
		titles = append(titles, schema.scope)
	}
	if schema.useCnt != "" {
		titles = append(titles, schema.useCnt)
	}
	return titles
}

// resolveHeader matches a header row against a schema, returning column index
// lookups for attributes, the scope column, and the use-count column (-1 when
// absent).
func resolveHeader(schema sheetSchema, header []string) (map[int]string, int, int) {
	attrCols := make(map[int]string, len(header))
	scopeCol, useCol := -1, -1
	for col, title := range header {
		title = strings.ToLower(strings.TrimSpace(title))
		if title == "" {
			continue
		}
		if attr, ok := schema.columns[title]; ok {
			attrCols[col] = attr
			continue
		}
		if title == strings.ToLower(schema.scope) && schema.scope != "" {
			scopeCol = col
		}
		if title == strings.ToLower(schema.useCnt) && schema.useCnt != "" {
			useCol = col
		}
	}
	return attrCols, scopeCol, useCol
}
