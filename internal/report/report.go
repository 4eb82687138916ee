// Package report writes a daily diary entry into the company knowledge
// workbook, summarizing the previous day's conversations.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hibari-ai/officebot/internal/delivery"
	"github.com/hibari-ai/officebot/internal/knowledge"
	"github.com/hibari-ai/officebot/internal/llm"
	"github.com/hibari-ai/officebot/internal/store"
)

const (
	// DefaultSchedule runs the diary shortly after the day rolls over,
	// outside office hours.
	DefaultSchedule = "0 3 * * *"

	reportWindow = 24 * time.Hour
	diaryAuthor  = "Hibari"

	diarySystemPrompt = "あなたは社内アシスタント「ひばり」です。以下の会話ログを読んで、" +
		"その日の出来事を3〜5文の日報としてまとめてください。固有名詞はそのまま使い、" +
		"挨拶だけのやり取りは省いてください。"
)

// ConversationSource supplies the day's conversation entries.
type ConversationSource interface {
	ConversationSince(ctx context.Context, cutoff time.Time) ([]store.ConversationEntry, error)
}

// Writer appends diary rows to the company knowledge workbook.
type Writer interface {
	AppendRow(source knowledge.Source, attrs map[string]string, scope string) error
}

type Service struct {
	conversations ConversationSource
	responder     llm.Responder
	writer        Writer
	schedule      string
	logger        *slog.Logger
}

func New(conversations ConversationSource, responder llm.Responder, writer Writer, schedule string, logger *slog.Logger) *Service {
	if strings.TrimSpace(schedule) == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		conversations: conversations,
		responder:     responder,
		writer:        writer,
		schedule:      schedule,
		logger:        logger.With("component", "report"),
	}
}

// Start schedules the daily run and blocks until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if s.conversations == nil || s.writer == nil {
		s.logger.Info("report disabled, missing dependencies")
		<-ctx.Done()
		return nil
	}
	runner := cron.New()
	_, err := runner.AddFunc(s.schedule, func() {
		if err := s.Run(ctx); err != nil {
			s.logger.Error("daily report failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule daily report %q: %w", s.schedule, err)
	}
	runner.Start()
	s.logger.Info("report scheduler started", "schedule", s.schedule)
	<-ctx.Done()
	<-runner.Stop().Done()
	s.logger.Info("report scheduler stopped")
	return nil
}

// Run builds and stores one diary entry covering the past day. Days without
// conversation produce no entry.
func (s *Service) Run(ctx context.Context) error {
	entries, err := s.conversations.ConversationSince(ctx, time.Now().Add(-reportWindow))
	if err != nil {
		return fmt.Errorf("read conversation log: %w", err)
	}
	if len(entries) == 0 {
		s.logger.Debug("no conversation in window, skipping diary")
		return nil
	}

	body := s.summarize(ctx, transcript(entries))
	if body == "" {
		s.logger.Debug("empty diary summary, skipping")
		return nil
	}

	day := time.Now().Format("2006-01-02")
	err = s.writer.AppendRow(knowledge.SourceCompany, map[string]string{
		knowledge.AttrTopic:  "日報 " + day,
		knowledge.AttrBody:   body,
		knowledge.AttrAuthor: diaryAuthor,
		knowledge.AttrDate:   day,
	}, "")
	if err != nil {
		return fmt.Errorf("append diary row: %w", err)
	}
	s.logger.Info("diary entry written", "day", day, "conversations", len(entries))
	return nil
}

func (s *Service) summarize(ctx context.Context, text string) string {
	if s.responder != nil {
		reply, err := s.responder.Reply(ctx, llm.Prompt{System: diarySystemPrompt, Text: text})
		if err == nil && strings.TrimSpace(reply) != "" {
			return strings.TrimSpace(reply)
		}
		if err != nil {
			s.logger.Warn("diary summarization failed, falling back to digest", "error", err)
		}
	}
	return delivery.Truncate(text, 200)
}

func transcript(entries []store.ConversationEntry) string {
	var b strings.Builder
	for _, entry := range entries {
		if strings.TrimSpace(entry.Message) == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", entry.Speaker, entry.Message)
	}
	return strings.TrimSpace(b.String())
}
