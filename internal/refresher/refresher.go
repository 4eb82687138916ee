// Package refresher keeps the in-memory knowledge snapshot current: periodic
// rebuilds plus workbook-change events from the filesystem.
package refresher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hibari-ai/officebot/internal/knowledge"
	"github.com/hibari-ai/officebot/internal/store"
)

const (
	// DefaultInterval is the periodic rebuild cadence.
	DefaultInterval = 5 * time.Minute
	// conversationWindow bounds how much of the conversation log joins the
	// snapshot as a retrieval source.
	conversationWindow = 30 * time.Minute

	debounce = 2 * time.Second
)

// Workbooks reads the tabular sources.
type Workbooks interface {
	ReadRecords(source knowledge.Source) ([]knowledge.Record, error)
}

// ConversationSource supplies the recent conversation entries.
type ConversationSource interface {
	ConversationSince(ctx context.Context, cutoff time.Time) ([]store.ConversationEntry, error)
}

type Service struct {
	workbooks     Workbooks
	conversations ConversationSource
	handle        *knowledge.Handle
	watchDir      string
	interval      time.Duration
	logger        *slog.Logger
}

func New(workbooks Workbooks, conversations ConversationSource, handle *knowledge.Handle, watchDir string, interval time.Duration, logger *slog.Logger) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		workbooks:     workbooks,
		conversations: conversations,
		handle:        handle,
		watchDir:      strings.TrimSpace(watchDir),
		interval:      interval,
		logger:        logger.With("component", "refresher"),
	}
}

// Rebuild reads every source and publishes a fresh snapshot atomically.
func (s *Service) Rebuild(ctx context.Context) error {
	records := map[knowledge.Source][]knowledge.Record{}
	for _, source := range knowledge.SourcePriority {
		if source == knowledge.SourceConversation {
			continue
		}
		rows, err := s.workbooks.ReadRecords(source)
		if err != nil {
			return fmt.Errorf("read %s records: %w", source, err)
		}
		records[source] = rows
	}
	records[knowledge.SourceConversation] = s.conversationRecords(ctx)

	s.handle.Publish(&knowledge.Snapshot{Records: records, BuiltAt: time.Now()})
	s.logger.Debug("snapshot published",
		"employees", len(records[knowledge.SourceEmployees]),
		"company", len(records[knowledge.SourceCompany]),
		"conversation", len(records[knowledge.SourceConversation]))
	return nil
}

func (s *Service) conversationRecords(ctx context.Context) []knowledge.Record {
	if s.conversations == nil {
		return nil
	}
	entries, err := s.conversations.ConversationSince(ctx, time.Now().Add(-conversationWindow))
	if err != nil {
		s.logger.Warn("conversation read failed", "error", err)
		return nil
	}
	records := make([]knowledge.Record, 0, len(entries))
	for _, entry := range entries {
		records = append(records, knowledge.Record{
			Source: knowledge.SourceConversation,
			Attrs: map[string]string{
				knowledge.AttrSpeaker: entry.Speaker,
				knowledge.AttrMessage: entry.Message,
				knowledge.AttrDate:    entry.CreatedAt.Format(time.RFC3339),
			},
		})
	}
	return records
}

// Start runs the periodic rebuild loop and, when a watch directory is
// configured, republishes on workbook writes.
func (s *Service) Start(ctx context.Context) error {
	if err := s.Rebuild(ctx); err != nil {
		s.logger.Error("initial snapshot rebuild failed", "error", err)
	}

	var events <-chan fsnotify.Event
	if s.watchDir != "" {
		fileWatcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create fsnotify watcher: %w", err)
		}
		defer fileWatcher.Close()
		if err := fileWatcher.Add(s.watchDir); err != nil {
			return fmt.Errorf("watch workbook dir %s: %w", s.watchDir, err)
		}
		events = fileWatcher.Events
		go s.drainErrors(ctx, fileWatcher.Errors)
	}

	s.logger.Info("refresher started", "interval", s.interval.String(), "watch_dir", s.watchDir)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var pending *time.Timer
	var pendingC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresher stopped")
			return nil
		case <-ticker.C:
			if err := s.Rebuild(ctx); err != nil {
				s.logger.Error("snapshot rebuild failed", "error", err)
			}
		case event := <-events:
			if !isWorkbookChange(event) {
				continue
			}
			// Writers save in bursts; coalesce before rebuilding.
			if pending == nil {
				pending = time.NewTimer(debounce)
				pendingC = pending.C
			} else {
				pending.Reset(debounce)
			}
		case <-pendingC:
			pending, pendingC = nil, nil
			if err := s.Rebuild(ctx); err != nil {
				s.logger.Error("snapshot rebuild failed", "error", err)
			}
		}
	}
}

func (s *Service) drainErrors(ctx context.Context, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			if err != nil {
				s.logger.Error("file watcher error", "error", err)
			}
		}
	}
}

func isWorkbookChange(event fsnotify.Event) bool {
	if filepath.Ext(event.Name) != ".xlsx" {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}
