package mailer

import (
	"context"
	"errors"
	"testing"

	gomail "gopkg.in/gomail.v2"

	"github.com/hibari-ai/officebot/internal/boterr"
)

type fakeDialer struct {
	messages []*gomail.Message
	err      error
}

func (f *fakeDialer) DialAndSend(messages ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, messages...)
	return nil
}

func newTestMailer(d dialer) *Mailer {
	m := New(Config{Host: "smtp.example.co.jp", Username: "bot@example.co.jp"}, nil)
	m.dialer = d
	return m
}

func TestSend(t *testing.T) {
	d := &fakeDialer{}
	m := newTestMailer(d)

	if err := m.Send(context.Background(), "taro@example.co.jp", "ご依頼のメッセージ", "全文です"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(d.messages) != 1 {
		t.Fatalf("messages = %d", len(d.messages))
	}
	msg := d.messages[0]
	if got := msg.GetHeader("To"); len(got) != 1 || got[0] != "taro@example.co.jp" {
		t.Errorf("To = %v", got)
	}
	if got := msg.GetHeader("From"); len(got) != 1 || got[0] != "bot@example.co.jp" {
		t.Errorf("From = %v", got)
	}
}

func TestSendFailureWrapsSentinel(t *testing.T) {
	m := newTestMailer(&fakeDialer{err: errors.New("connection refused")})
	err := m.Send(context.Background(), "taro@example.co.jp", "subject", "body")
	if !errors.Is(err, boterr.ErrSendFailed) {
		t.Errorf("err = %v, want ErrSendFailed", err)
	}
}

func TestSendEmptyRecipient(t *testing.T) {
	m := newTestMailer(&fakeDialer{})
	if err := m.Send(context.Background(), "  ", "subject", "body"); !errors.Is(err, boterr.ErrSendFailed) {
		t.Errorf("err = %v, want ErrSendFailed", err)
	}
}

func TestSendHonorsContext(t *testing.T) {
	m := newTestMailer(&fakeDialer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Send(ctx, "taro@example.co.jp", "subject", "body"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
