package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Environment string
	HTTPAddr    string
	DataDir     string
	DBPath      string
	WorkbookDir string

	RefreshIntervalSec int
	ReportSchedule     string
	SelfStudyURLsCSV   string
	SelfStudyHours     int

	LINEChannelSecret string
	LINEChannelToken  string
	LINEAPIBase       string

	IMAPHost          string
	IMAPPort          int
	IMAPUsername      string
	IMAPPassword      string
	IMAPMailbox       string
	IMAPTLSSkipVerify bool

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	LLMBaseURL    string
	LLMAPIKey     string
	LLMModel      string
	LLMTimeoutSec int
	SystemPrompt  string

	ChannelReplyLimit int
}

func FromEnv() Config {
	dataDir := stringOrDefault("OFFICEBOT_DATA_DIR", "/data")
	dbPath := stringOrDefault("OFFICEBOT_DB_PATH", filepath.Join(dataDir, "officebot", "officebot.sqlite"))
	workbookDir := stringOrDefault("OFFICEBOT_WORKBOOK_DIR", filepath.Join(dataDir, "officebot", "workbooks"))

	return Config{
		Environment: stringOrDefault("OFFICEBOT_ENV", "development"),
		HTTPAddr:    stringOrDefault("OFFICEBOT_HTTP_ADDR", ":8080"),
		DataDir:     dataDir,
		DBPath:      dbPath,
		WorkbookDir: workbookDir,

		RefreshIntervalSec: intOrDefault("OFFICEBOT_REFRESH_INTERVAL_SECONDS", 300),
		ReportSchedule:     stringOrDefault("OFFICEBOT_REPORT_SCHEDULE", "0 3 * * *"),
		SelfStudyURLsCSV:   strings.TrimSpace(os.Getenv("OFFICEBOT_SELFSTUDY_URLS")),
		SelfStudyHours:     intOrDefault("OFFICEBOT_SELFSTUDY_INTERVAL_HOURS", 6),

		LINEChannelSecret: strings.TrimSpace(os.Getenv("OFFICEBOT_LINE_CHANNEL_SECRET")),
		LINEChannelToken:  strings.TrimSpace(os.Getenv("OFFICEBOT_LINE_CHANNEL_TOKEN")),
		LINEAPIBase:       stringOrDefault("OFFICEBOT_LINE_API_BASE", "https://api.line.me"),

		IMAPHost:          strings.TrimSpace(os.Getenv("OFFICEBOT_IMAP_HOST")),
		IMAPPort:          intOrDefault("OFFICEBOT_IMAP_PORT", 993),
		IMAPUsername:      strings.TrimSpace(os.Getenv("OFFICEBOT_IMAP_USERNAME")),
		IMAPPassword:      os.Getenv("OFFICEBOT_IMAP_PASSWORD"),
		IMAPMailbox:       stringOrDefault("OFFICEBOT_IMAP_MAILBOX", "INBOX"),
		IMAPTLSSkipVerify: boolOrDefault("OFFICEBOT_IMAP_TLS_SKIP_VERIFY", false),

		SMTPHost:     strings.TrimSpace(os.Getenv("OFFICEBOT_SMTP_HOST")),
		SMTPPort:     intOrDefault("OFFICEBOT_SMTP_PORT", 587),
		SMTPUsername: strings.TrimSpace(os.Getenv("OFFICEBOT_SMTP_USERNAME")),
		SMTPPassword: os.Getenv("OFFICEBOT_SMTP_PASSWORD"),
		SMTPFrom:     strings.TrimSpace(os.Getenv("OFFICEBOT_SMTP_FROM")),

		LLMBaseURL:    stringOrDefault("OFFICEBOT_LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:     strings.TrimSpace(os.Getenv("OFFICEBOT_LLM_API_KEY")),
		LLMModel:      stringOrDefault("OFFICEBOT_LLM_MODEL", "gpt-4o-mini"),
		LLMTimeoutSec: intOrDefault("OFFICEBOT_LLM_TIMEOUT_SECONDS", 60),
		SystemPrompt:  stringOrDefault("OFFICEBOT_SYSTEM_PROMPT", defaultSystemPrompt),

		ChannelReplyLimit: intOrDefault("OFFICEBOT_CHANNEL_REPLY_LIMIT", 80),
	}
}

const defaultSystemPrompt = "あなたは社内アシスタント「ひばり」です。丁寧で親しみやすい日本語で簡潔に答えてください。"

// SelfStudyURLs splits the CSV list, dropping empty entries.
func (c Config) SelfStudyURLs() []string {
	if c.SelfStudyURLsCSV == "" {
		return nil
	}
	parts := strings.Split(c.SelfStudyURLsCSV, ",")
	urls := make([]string, 0, len(parts))
	for _, part := range parts {
		if url := strings.TrimSpace(part); url != "" {
			urls = append(urls, url)
		}
	}
	return urls
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
