package line

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const signatureHeader = "X-Line-Signature"

// Engine produces the reply for one inbound utterance.
type Engine interface {
	HandleTurn(ctx context.Context, userID, text string) (string, error)
}

// Replier answers an event; satisfied by *Client.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
	SendMessage(ctx context.Context, userID, text string) error
}

type webhookEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		UserID string `json:"userId"`
	} `json:"source"`
	Message struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

type webhookBody struct {
	Events []webhookEvent `json:"events"`
}

// Webhook validates and dispatches LINE webhook calls.
type Webhook struct {
	channelSecret string
	engine        Engine
	replier       Replier
	logger        *slog.Logger
	turnTimeout   time.Duration
}

func NewWebhook(channelSecret string, engine Engine, replier Replier, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		channelSecret: strings.TrimSpace(channelSecret),
		engine:        engine,
		replier:       replier,
		logger:        logger.With("component", "line"),
		turnTimeout:   25 * time.Second,
	}
}

func (w *Webhook) Handler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(rw, "read body", http.StatusBadRequest)
			return
		}
		if !w.validSignature(body, r.Header.Get(signatureHeader)) {
			w.logger.Warn("webhook signature rejected")
			http.Error(rw, "invalid signature", http.StatusForbidden)
			return
		}

		var parsed webhookBody
		if err := json.Unmarshal(body, &parsed); err != nil {
			http.Error(rw, "decode body", http.StatusBadRequest)
			return
		}
		for _, event := range parsed.Events {
			w.handleEvent(r.Context(), event)
		}
		rw.WriteHeader(http.StatusOK)
	})
}

func (w *Webhook) handleEvent(ctx context.Context, event webhookEvent) {
	if event.Type != "message" || event.Message.Type != "text" {
		return
	}
	userID := strings.TrimSpace(event.Source.UserID)
	text := strings.TrimSpace(event.Message.Text)
	if userID == "" || text == "" {
		return
	}

	turnCtx, cancel := context.WithTimeout(ctx, w.turnTimeout)
	defer cancel()

	reply, err := w.engine.HandleTurn(turnCtx, userID, text)
	if err != nil {
		w.logger.Error("turn failed", "user_id", userID, "error", err)
		return
	}
	if reply == "" {
		return
	}
	if err := w.replier.Reply(turnCtx, event.ReplyToken, reply); err != nil {
		w.logger.Warn("reply failed, falling back to push", "error", err)
		if err := w.replier.SendMessage(turnCtx, userID, reply); err != nil {
			w.logger.Error("push fallback failed", "user_id", userID, "error", err)
		}
	}
}

// validSignature checks the base64 HMAC-SHA256 of the raw body against the
// header LINE sends.
func (w *Webhook) validSignature(body []byte, signature string) bool {
	if w.channelSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(w.channelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}
