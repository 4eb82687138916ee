package selfstudy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hibari-ai/officebot/internal/knowledge"
)

type fakeWriter struct {
	rows []map[string]string
}

func (f *fakeWriter) AppendRow(_ knowledge.Source, attrs map[string]string, _ string) error {
	f.rows = append(f.rows, attrs)
	return nil
}

func TestPollLearnsChangedPageOnce(t *testing.T) {
	page := `<html><head><style>body{color:red}</style></head>` +
		`<body><h1>社内規定</h1><p>経費精算は月末締めです。</p></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(page))
	}))
	defer server.Close()

	writer := &fakeWriter{}
	service := New([]string{server.URL}, writer, 0, nil)

	service.Poll(context.Background())
	service.Poll(context.Background())
	if len(writer.rows) != 1 {
		t.Fatalf("rows = %d, want 1 (unchanged page must not be re-learned)", len(writer.rows))
	}

	body := writer.rows[0][knowledge.AttrBody]
	if !strings.Contains(body, "経費精算は月末締めです。") {
		t.Fatalf("body = %q", body)
	}
	if strings.Contains(body, "color:red") || strings.Contains(body, "<p>") {
		t.Fatalf("markup leaked into body: %q", body)
	}
	if !strings.HasPrefix(writer.rows[0][knowledge.AttrTopic], "自習 ") {
		t.Fatalf("topic = %q", writer.rows[0][knowledge.AttrTopic])
	}
}

func TestPollLearnsAgainAfterChange(t *testing.T) {
	content := "<p>第一版</p>"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(content))
	}))
	defer server.Close()

	writer := &fakeWriter{}
	service := New([]string{server.URL}, writer, 0, nil)

	service.Poll(context.Background())
	content = "<p>第二版</p>"
	service.Poll(context.Background())

	if len(writer.rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(writer.rows))
	}
	if got := writer.rows[1][knowledge.AttrBody]; got != "第二版" {
		t.Fatalf("second body = %q", got)
	}
}

func TestPollToleratesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	writer := &fakeWriter{}
	service := New([]string{server.URL}, writer, 0, nil)

	service.Poll(context.Background())
	if len(writer.rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(writer.rows))
	}
}

func TestExtractText(t *testing.T) {
	got := extractText([]byte("<div>A &amp; B</div>\n<script>alert(1)</script><span>C</span>"))
	if got != "A & B C" {
		t.Fatalf("extractText = %q", got)
	}
}
