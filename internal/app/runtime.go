// Package app wires the bot together: storage, knowledge snapshots, the chat
// engine, background services, and the HTTP surface.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hibari-ai/officebot/internal/config"
	"github.com/hibari-ai/officebot/internal/connectors/imap"
	"github.com/hibari-ai/officebot/internal/connectors/line"
	"github.com/hibari-ai/officebot/internal/dialogue"
	"github.com/hibari-ai/officebot/internal/engine"
	"github.com/hibari-ai/officebot/internal/httpapi"
	"github.com/hibari-ai/officebot/internal/knowledge"
	"github.com/hibari-ai/officebot/internal/llm/openai"
	"github.com/hibari-ai/officebot/internal/mailer"
	"github.com/hibari-ai/officebot/internal/refresher"
	"github.com/hibari-ai/officebot/internal/report"
	"github.com/hibari-ai/officebot/internal/retrieval"
	"github.com/hibari-ai/officebot/internal/selfstudy"
	"github.com/hibari-ai/officebot/internal/store"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	store     *store.Store
	snapshots *knowledge.Handle
	engine    *engine.Engine

	refresher *refresher.Service
	report    *report.Service
	selfstudy *selfstudy.Service

	httpServer *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if err := os.MkdirAll(cfg.WorkbookDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workbook directory: %w", err)
	}

	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		sqlStore.Close()
		return nil, err
	}

	workbooks := knowledge.NewWorkbookStore(cfg.WorkbookDir)
	snapshots := knowledge.NewHandle()

	responder := openai.New(openai.Config{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
		Timeout: time.Duration(cfg.LLMTimeoutSec) * time.Second,
	}, logger)

	smtpMailer := mailer.New(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, logger)

	var lineClient *line.Client
	var transport dialogue.Transport
	if cfg.LINEChannelToken != "" {
		lineClient = line.NewClient(cfg.LINEChannelToken, cfg.LINEAPIBase, logger)
		transport = lineClient
	}

	manager := dialogue.NewManager(snapshots, transport, smtpMailer, sqlStore, logger)
	greeter := dialogue.NewGreeter()
	router := retrieval.NewRouter(snapshots, workbooks, logger)

	var mail engine.MailReader
	inbox := imap.New(imap.Config{
		Host:          cfg.IMAPHost,
		Port:          cfg.IMAPPort,
		Username:      cfg.IMAPUsername,
		Password:      cfg.IMAPPassword,
		Mailbox:       cfg.IMAPMailbox,
		TLSSkipVerify: cfg.IMAPTLSSkipVerify,
	}, logger)
	if inbox.Enabled() {
		mail = mailSource{reader: inbox}
	}

	bot := engine.New(engine.Deps{
		Snapshots:    snapshots,
		Log:          sqlStore,
		Dialogue:     manager,
		Greeter:      greeter,
		Router:       router,
		Responder:    responder,
		Mail:         mail,
		Writer:       workbooks,
		Logger:       logger,
		ChannelLimit: cfg.ChannelReplyLimit,
		SystemPrompt: cfg.SystemPrompt,
	})

	var webhook http.Handler
	if cfg.LINEChannelSecret != "" && lineClient != nil {
		webhook = line.NewWebhook(cfg.LINEChannelSecret, bot, lineClient, logger).Handler()
	}

	handler := httpapi.NewRouter(httpapi.Dependencies{
		Config:  cfg,
		Store:   sqlStore,
		Engine:  bot,
		Webhook: webhook,
		Logger:  logger,
	})

	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		store:     sqlStore,
		snapshots: snapshots,
		engine:    bot,
		refresher: refresher.New(workbooks, sqlStore, snapshots, cfg.WorkbookDir,
			time.Duration(cfg.RefreshIntervalSec)*time.Second, logger),
		report:    report.New(sqlStore, responder, workbooks, cfg.ReportSchedule, logger),
		selfstudy: selfstudy.New(cfg.SelfStudyURLs(), workbooks, time.Duration(cfg.SelfStudyHours)*time.Hour, logger),
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Engine exposes the chat engine for the interactive CLI.
func (r *Runtime) Engine() *engine.Engine {
	return r.engine
}

// Report exposes the diary service for the one-shot CLI command.
func (r *Runtime) Report() *report.Service {
	return r.report
}

func (r *Runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

// mailSource adapts the IMAP reader to the engine's mail contract.
type mailSource struct {
	reader *imap.Reader
}

func (m mailSource) LatestMessage(ctx context.Context) (engine.MailSummary, error) {
	msg, err := m.reader.LatestMessage(ctx)
	if err != nil {
		return engine.MailSummary{}, err
	}
	return engine.MailSummary{From: msg.From, Subject: msg.Subject, Body: msg.Body}, nil
}
