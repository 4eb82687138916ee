// Package selfstudy polls configured web pages and folds changed content
// into the company knowledge workbook.
package selfstudy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hibari-ai/officebot/internal/delivery"
	"github.com/hibari-ai/officebot/internal/knowledge"
)

const (
	// DefaultInterval is the poll cadence. Page content rarely changes more
	// than a few times a day.
	DefaultInterval = 6 * time.Hour

	maxPageBytes = 1 << 20
	maxBodyRunes = 500
	studyAuthor  = "Hibari"
)

// Writer appends learned rows to the company knowledge workbook.
type Writer interface {
	AppendRow(source knowledge.Source, attrs map[string]string, scope string) error
}

type Service struct {
	urls     []string
	writer   Writer
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger

	lastHash map[string]string
}

func New(urls []string, writer Writer, interval time.Duration, logger *slog.Logger) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	cleaned := make([]string, 0, len(urls))
	for _, raw := range urls {
		if url := strings.TrimSpace(raw); url != "" {
			cleaned = append(cleaned, url)
		}
	}
	return &Service{
		urls:     cleaned,
		writer:   writer,
		interval: interval,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger.With("component", "selfstudy"),
		lastHash: map[string]string{},
	}
}

// Start polls every configured page on the interval until cancelled.
func (s *Service) Start(ctx context.Context) error {
	if len(s.urls) == 0 || s.writer == nil {
		s.logger.Info("selfstudy disabled, no pages configured")
		<-ctx.Done()
		return nil
	}
	s.logger.Info("selfstudy started", "pages", len(s.urls), "interval", s.interval.String())
	s.Poll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("selfstudy stopped")
			return nil
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll checks every page once. Failures on one page do not stop the rest.
func (s *Service) Poll(ctx context.Context) {
	for _, url := range s.urls {
		if err := s.study(ctx, url); err != nil {
			s.logger.Warn("page study failed", "url", url, "error", err)
		}
	}
}

func (s *Service) study(ctx context.Context, url string) error {
	body, err := s.fetch(ctx, url)
	if err != nil {
		return err
	}

	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])
	if s.lastHash[url] == hash {
		return nil
	}
	first := s.lastHash[url] == ""
	s.lastHash[url] = hash

	text := delivery.Truncate(extractText(body), maxBodyRunes)
	if text == "" {
		return nil
	}
	err = s.writer.AppendRow(knowledge.SourceCompany, map[string]string{
		knowledge.AttrTopic:  "自習 " + url,
		knowledge.AttrBody:   text,
		knowledge.AttrAuthor: studyAuthor,
		knowledge.AttrDate:   time.Now().Format("2006-01-02"),
	}, "")
	if err != nil {
		return fmt.Errorf("append study row: %w", err)
	}
	s.logger.Info("page content learned", "url", url, "first_visit", first)
	return nil
}

func (s *Service) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read page body: %w", err)
	}
	return body, nil
}

var (
	scriptPattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	blankPattern  = regexp.MustCompile(`\s+`)
)

func extractText(body []byte) string {
	text := scriptPattern.ReplaceAllString(string(body), " ")
	text = tagPattern.ReplaceAllString(text, " ")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`).Replace(text)
	return strings.TrimSpace(blankPattern.ReplaceAllString(text, " "))
}
