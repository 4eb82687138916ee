package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

type fakeHandler struct {
	replies map[string]string
	err     error
	seen    []string
}

func (f *fakeHandler) HandleTurn(_ context.Context, _ string, text string) (string, error) {
	f.seen = append(f.seen, text)
	if f.err != nil {
		return "", f.err
	}
	return f.replies[text], nil
}

func newCaptureCommand() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	return cmd, out
}

func TestRunChatTurnPrintsReply(t *testing.T) {
	handler := &fakeHandler{replies: map[string]string{"受付はどこ？": "受付は1階です。"}}
	cmd, out := newCaptureCommand()

	if err := runChatTurn(context.Background(), cmd, handler, "console", "受付はどこ？"); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if !strings.Contains(out.String(), "受付は1階です。") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunChatTurnEmptyReply(t *testing.T) {
	cmd, out := newCaptureCommand()
	if err := runChatTurn(context.Background(), cmd, &fakeHandler{}, "console", "何か"); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if !strings.Contains(out.String(), "(no reply)") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunChatLoopStopsOnExit(t *testing.T) {
	handler := &fakeHandler{replies: map[string]string{"こんにちは": "こんにちは！"}}
	cmd, out := newCaptureCommand()
	input := strings.NewReader("こんにちは\nexit\nまだ読まれない\n")

	if err := runChatLoop(context.Background(), cmd, handler, "console", input); err != nil {
		t.Fatalf("loop: %v", err)
	}
	if len(handler.seen) != 1 || handler.seen[0] != "こんにちは" {
		t.Fatalf("handler saw %v", handler.seen)
	}
	if !strings.Contains(out.String(), "こんにちは！") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunChatLoopPropagatesError(t *testing.T) {
	handler := &fakeHandler{err: errors.New("engine down")}
	cmd, _ := newCaptureCommand()
	if err := runChatLoop(context.Background(), cmd, handler, "console", strings.NewReader("壊れて\n")); err == nil {
		t.Fatal("expected error")
	}
}

func TestRootHasCommands(t *testing.T) {
	root := NewRoot(slog.New(slog.DiscardHandler))
	want := map[string]bool{"serve": false, "chat": false, "report": false, "version": false}
	for _, sub := range root.Commands() {
		name := strings.Fields(sub.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("command %q not registered", name)
		}
	}
}
