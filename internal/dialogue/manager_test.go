package dialogue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/hibari-ai/officebot/internal/delivery"
	"github.com/hibari-ai/officebot/internal/knowledge"
)

type sentMessage struct {
	recipient string
	text      string
}

type fakeTransport struct {
	sent     []sentMessage
	failures map[string]int // recipient -> sends to fail before succeeding
}

func (f *fakeTransport) SendMessage(_ context.Context, userID, text string) error {
	if f.failures[userID] > 0 {
		f.failures[userID]--
		return errors.New("transport down")
	}
	f.sent = append(f.sent, sentMessage{recipient: userID, text: text})
	return nil
}

type fakeMailer struct {
	to, subject, body string
	calls             int
	err               error
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	f.calls++
	f.to, f.subject, f.body = to, subject, body
	return f.err
}

type fakeRecorder struct {
	userID, kind string
	calls        int
}

func (f *fakeRecorder) RecordAttendance(_ context.Context, userID, kind string) error {
	f.calls++
	f.userID, f.kind = userID, kind
	return nil
}

func employee(name, chatID string) knowledge.Record {
	return knowledge.Record{
		Source: knowledge.SourceEmployees,
		Attrs: map[string]string{
			knowledge.AttrName:   name,
			knowledge.AttrChatID: chatID,
		},
	}
}

func staffHandle() *knowledge.Handle {
	handle := knowledge.NewHandle()
	handle.Publish(&knowledge.Snapshot{Records: map[knowledge.Source][]knowledge.Record{
		knowledge.SourceEmployees: {
			employee("田中 太郎", "U1"),
			employee("佐藤 花子", "U2"),
			employee("鈴木 一郎", "U3"),
		},
	}})
	return handle
}

func mustAdvance(t *testing.T, m *Manager, userID, utterance string) Result {
	t.Helper()
	result, err := m.Advance(context.Background(), userID, utterance)
	if err != nil {
		t.Fatalf("Advance(%q): %v", utterance, err)
	}
	return result
}

func TestAttendanceBroadcastFlow(t *testing.T) {
	transport := &fakeTransport{}
	recorder := &fakeRecorder{}
	m := NewManager(staffHandle(), transport, nil, recorder, nil)

	result := mustAdvance(t, m, "U1", "明日遅刻します")
	if !result.Handled || result.Reply != promptBroadcastConfirm {
		t.Fatalf("open = %+v", result)
	}
	if recorder.calls != 1 || recorder.kind != "遅刻" {
		t.Errorf("attendance record = %+v", recorder)
	}

	if result = mustAdvance(t, m, "U1", "はい"); result.Reply != promptScopeConfirm {
		t.Fatalf("broadcast confirm = %+v", result)
	}

	result = mustAdvance(t, m, "U1", "はい")
	if len(transport.sent) != 2 {
		t.Fatalf("sent %d messages, want one per other employee", len(transport.sent))
	}
	for _, msg := range transport.sent {
		if msg.recipient == "U1" {
			t.Error("broadcast echoed to the requester")
		}
		if !strings.Contains(msg.text, "明日遅刻します") {
			t.Errorf("relayed text = %q", msg.text)
		}
		if !strings.Contains(msg.text, "田中 太郎") {
			t.Errorf("relayed text lacks the sender name: %q", msg.text)
		}
	}
	if !strings.Contains(result.Reply, "2名") {
		t.Errorf("report = %q", result.Reply)
	}

	// Workflow is closed; a new unrelated utterance is not an answer.
	if result = mustAdvance(t, m, "U1", "会議室はどこですか"); result.Handled {
		t.Errorf("post-send turn handled = %+v", result)
	}
}

func TestAttendanceNamedRecipientFlow(t *testing.T) {
	transport := &fakeTransport{}
	m := NewManager(staffHandle(), transport, nil, nil, nil)

	mustAdvance(t, m, "U1", "今日は休みます")
	mustAdvance(t, m, "U1", "はい")
	if result := mustAdvance(t, m, "U1", "いいえ"); result.Reply != promptRecipientName {
		t.Fatalf("scope decline = %+v", result)
	}
	if len(transport.sent) != 0 {
		t.Fatal("declining the broadcast must not send anything")
	}

	result := mustAdvance(t, m, "U1", "佐藤さん")
	if !strings.Contains(result.Reply, "佐藤 花子") {
		t.Fatalf("recipient confirm = %+v", result)
	}

	mustAdvance(t, m, "U1", "はい")
	if len(transport.sent) != 1 || transport.sent[0].recipient != "U2" {
		t.Fatalf("sent = %+v, want exactly U2", transport.sent)
	}
}

func TestAttendanceAccumulatingRecipients(t *testing.T) {
	transport := &fakeTransport{}
	m := NewManager(staffHandle(), transport, nil, nil, nil)

	mustAdvance(t, m, "U1", "早退します")
	mustAdvance(t, m, "U1", "はい")
	mustAdvance(t, m, "U1", "いいえ")
	mustAdvance(t, m, "U1", "佐藤さん")
	if result := mustAdvance(t, m, "U1", "いいえ"); result.Reply != promptAddMore {
		t.Fatalf("add-more prompt = %+v", result)
	}

	// Adding the same person twice must not double-send.
	mustAdvance(t, m, "U1", "鈴木さん")
	mustAdvance(t, m, "U1", "佐藤さん")
	result := mustAdvance(t, m, "U1", "以上")

	if len(transport.sent) != 2 {
		t.Fatalf("sent = %+v, want deduped pair", transport.sent)
	}
	recipients := map[string]bool{}
	for _, msg := range transport.sent {
		recipients[msg.recipient] = true
	}
	if !recipients["U2"] || !recipients["U3"] {
		t.Errorf("recipients = %v", recipients)
	}
	if !strings.Contains(result.Reply, "2名") {
		t.Errorf("report = %q", result.Reply)
	}
}

func TestUnresolvableRecipientKeepsStep(t *testing.T) {
	m := NewManager(staffHandle(), &fakeTransport{}, nil, nil, nil)

	mustAdvance(t, m, "U1", "在宅にします")
	mustAdvance(t, m, "U1", "はい")
	mustAdvance(t, m, "U1", "いいえ")

	if result := mustAdvance(t, m, "U1", "存在しない人"); result.Reply != replyRecipientMissed {
		t.Fatalf("unknown name = %+v", result)
	}
	// Still waiting for a name.
	if result := mustAdvance(t, m, "U1", "佐藤"); !strings.Contains(result.Reply, "佐藤 花子") {
		t.Errorf("retry with valid name = %+v", result)
	}
}

func TestTopicChangeResetsAnyStep(t *testing.T) {
	m := NewManager(staffHandle(), &fakeTransport{}, nil, nil, nil)

	mustAdvance(t, m, "U1", "遅刻しそうです")
	if result := mustAdvance(t, m, "U1", "ところで会議室はどこ？"); result.Reply != replyTopicChanged {
		t.Fatalf("topic change = %+v", result)
	}
	// Back to idle: the next plain utterance flows through.
	if result := mustAdvance(t, m, "U1", "会議室はどこ？"); result.Handled {
		t.Errorf("post-reset turn = %+v", result)
	}
}

func TestUnrecognizedAnswerReissuesPrompt(t *testing.T) {
	m := NewManager(staffHandle(), &fakeTransport{}, nil, nil, nil)

	mustAdvance(t, m, "U1", "休暇をとります")
	if result := mustAdvance(t, m, "U1", "うーんどうしようかな"); result.Reply != promptBroadcastConfirm {
		t.Errorf("reissue = %+v", result)
	}
}

func TestRelayRetriesTransportOnce(t *testing.T) {
	transport := &fakeTransport{failures: map[string]int{"U2": 1}}
	m := NewManager(staffHandle(), transport, nil, nil, nil)

	mustAdvance(t, m, "U1", "遅刻します")
	mustAdvance(t, m, "U1", "はい")
	result := mustAdvance(t, m, "U1", "はい")

	// One failure per recipient is absorbed by the retry.
	if len(transport.sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(transport.sent))
	}
	if !strings.Contains(result.Reply, "2名に") {
		t.Errorf("report = %q", result.Reply)
	}
}

func TestRelayReportsPartialFailure(t *testing.T) {
	transport := &fakeTransport{failures: map[string]int{"U2": 5}}
	m := NewManager(staffHandle(), transport, nil, nil, nil)

	mustAdvance(t, m, "U1", "遅刻します")
	mustAdvance(t, m, "U1", "はい")
	result := mustAdvance(t, m, "U1", "はい")

	if !strings.Contains(result.Reply, "2名中1名") {
		t.Errorf("report = %q", result.Reply)
	}
}

func TestEmailConfirmFlow(t *testing.T) {
	mailer := &fakeMailer{}
	m := NewManager(staffHandle(), nil, mailer, nil, nil)

	prompt := m.StartEmailConfirm("U1", "boss@example.co.jp", "本日の報告です")
	if !strings.Contains(prompt, "boss@example.co.jp") {
		t.Fatalf("prompt = %q", prompt)
	}

	result := mustAdvance(t, m, "U1", "はい")
	if result.Reply != replyEmailSent {
		t.Fatalf("confirm = %+v", result)
	}
	if mailer.calls != 1 || mailer.to != "boss@example.co.jp" || mailer.body != "本日の報告です" {
		t.Errorf("mailer = %+v", mailer)
	}
}

func TestEmailConfirmDecline(t *testing.T) {
	mailer := &fakeMailer{}
	m := NewManager(staffHandle(), nil, mailer, nil, nil)

	m.StartEmailConfirm("U1", "boss@example.co.jp", "本日の報告です")
	if result := mustAdvance(t, m, "U1", "いいえ"); result.Reply != replyEmailDeclined {
		t.Fatalf("decline = %+v", result)
	}
	if mailer.calls != 0 {
		t.Error("declined email was sent")
	}
}

func TestEmailSendFailureDegradesToApology(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp down")}
	m := NewManager(staffHandle(), nil, mailer, nil, nil)

	m.StartEmailConfirm("U1", "boss@example.co.jp", "本日の報告です")
	result := mustAdvance(t, m, "U1", "はい")
	if result.Reply != sendFailedApology {
		t.Errorf("failure reply = %q", result.Reply)
	}
}

func TestLongReplyEscalation(t *testing.T) {
	mailer := &fakeMailer{}
	m := NewManager(staffHandle(), nil, mailer, nil, nil)

	full := strings.Repeat("長い説明です。", 30)
	if prompt := m.ParkLongReply("U1", "taro@example.co.jp", full); prompt != promptChannelChoice {
		t.Fatalf("prompt = %q", prompt)
	}

	result := mustAdvance(t, m, "U1", "はい")
	if result.Reply != replyFullTextMailed {
		t.Fatalf("escalate = %+v", result)
	}
	if mailer.body != full {
		t.Error("parked full text not mailed")
	}
}

func TestLongReplyDeclinedFallsBackTruncated(t *testing.T) {
	m := NewManager(staffHandle(), nil, &fakeMailer{}, nil, nil)

	full := strings.Repeat("あ", 300)
	m.ParkLongReply("U1", "taro@example.co.jp", full)
	result := mustAdvance(t, m, "U1", "いいえ")
	if got := len([]rune(result.Reply)); got != delivery.HardCap {
		t.Errorf("fallback length = %d runes, want %d", got, delivery.HardCap)
	}
}

func TestSingleOpenWorkflow(t *testing.T) {
	mailer := &fakeMailer{}
	m := NewManager(staffHandle(), &fakeTransport{}, mailer, nil, nil)

	mustAdvance(t, m, "U1", "遅刻します")
	m.StartEmailConfirm("U1", "boss@example.co.jp", "報告")

	// The yes now answers the email prompt, not the attendance one.
	result := mustAdvance(t, m, "U1", "はい")
	if result.Reply != replyEmailSent {
		t.Errorf("reply = %q", result.Reply)
	}
	if mailer.calls != 1 {
		t.Error("email workflow did not win")
	}
}

func TestCorruptSessionResetsWithApology(t *testing.T) {
	m := NewManager(staffHandle(), nil, nil, nil, nil)
	m.sessions.Set("U1", &Session{Step: Step(99)}, cache.DefaultExpiration)

	result, err := m.Advance(context.Background(), "U1", "はい")
	if err == nil {
		t.Fatal("corrupt session produced no error")
	}
	if !result.Handled || result.Reply != corruptApology {
		t.Fatalf("result = %+v", result)
	}
	// State is idle again; the next turn behaves normally.
	if result = mustAdvance(t, m, "U1", "よろしく"); result.Handled {
		t.Errorf("post-reset turn = %+v", result)
	}
}

func TestGreetingThrottle(t *testing.T) {
	g := NewGreeter()

	reply, ok := g.Greet("U1", "おはようございます")
	if !ok || reply == "" {
		t.Fatalf("first greeting = %q, %v", reply, ok)
	}
	if _, ok = g.Greet("U1", "おはよう"); ok {
		t.Error("second greeting inside the window not suppressed")
	}
	// A different category is independent.
	if _, ok = g.Greet("U1", "ありがとう"); !ok {
		t.Error("different category throttled")
	}
	// As is a different user.
	if _, ok = g.Greet("U2", "おはよう"); !ok {
		t.Error("different user throttled")
	}
}

func TestGreetingEmittedAfterWindow(t *testing.T) {
	g := &Greeter{
		seen:   cache.New(20*time.Millisecond, time.Minute),
		window: 20 * time.Millisecond,
	}

	if _, ok := g.Greet("U1", "こんにちは"); !ok {
		t.Fatal("first greeting suppressed")
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok := g.Greet("U1", "こんにちは"); !ok {
		t.Error("greeting still suppressed after the window")
	}
}

func TestNonGreetingIsNotHandled(t *testing.T) {
	g := NewGreeter()
	if _, ok := g.Greet("U1", "経費精算の締め切りはいつ？"); ok {
		t.Error("plain question treated as a greeting")
	}
}
