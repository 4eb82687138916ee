// Package engine runs one conversation turn end to end: membership check,
// dialogue workflows, knowledge retrieval, the generative fallback, and the
// delivery decision.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibari-ai/officebot/internal/boterr"
	"github.com/hibari-ai/officebot/internal/compactor"
	"github.com/hibari-ai/officebot/internal/delivery"
	"github.com/hibari-ai/officebot/internal/dialogue"
	"github.com/hibari-ai/officebot/internal/knowledge"
	"github.com/hibari-ai/officebot/internal/llm"
	"github.com/hibari-ai/officebot/internal/masking"
	"github.com/hibari-ai/officebot/internal/retrieval"
	"github.com/hibari-ai/officebot/internal/store"
)

const (
	refusalReply     = "申し訳ありません、こちらは社内の方専用のサービスです。"
	backendApology   = "申し訳ありません、いまはうまくお答えできません。少し時間をおいてもう一度お試しください。"
	rememberedReply  = "覚えました！いつでも聞いてくださいね。"
	nothingForgotten = "削除できる内容が見つかりませんでした。"
	noMailReply      = "新しいメールは見つかりませんでした。"

	historyWindow = 30 * time.Minute
	historyLimit  = 20
)

// ConversationLog persists turns and important messages.
type ConversationLog interface {
	AppendConversation(ctx context.Context, input store.AppendConversationInput) error
	RecentConversation(ctx context.Context, userID string, window time.Duration, limit int) ([]store.ConversationEntry, error)
	AppendExperience(ctx context.Context, userID, message, category string) error
}

// Dialogue is the per-user workflow manager.
type Dialogue interface {
	Advance(ctx context.Context, userID, utterance string) (dialogue.Result, error)
	StartEmailConfirm(userID, target, body string) string
	ParkLongReply(userID, target, fullText string) string
}

// Greeter answers throttled greetings.
type Greeter interface {
	Greet(userID, text string) (string, bool)
}

// Router resolves a query against the knowledge sources.
type Router interface {
	Resolve(ctx context.Context, query string, requester knowledge.Record) (retrieval.Answer, error)
}

// MailReader fetches the newest inbox message.
type MailReader interface {
	LatestMessage(ctx context.Context) (MailSummary, error)
}

// MailSummary is the slice of an email the reply needs.
type MailSummary struct {
	From    string
	Subject string
	Body    string
}

// KnowledgeWriter mutates the company-knowledge workbook for the remember
// and forget features.
type KnowledgeWriter interface {
	AppendRow(source knowledge.Source, attrs map[string]string, scope string) error
	DeleteRows(source knowledge.Source, rowNumbers []int) error
}

type Deps struct {
	Snapshots *knowledge.Handle
	Log       ConversationLog
	Dialogue  Dialogue
	Greeter   Greeter
	Router    Router
	Responder llm.Responder
	Mail      MailReader
	Writer    KnowledgeWriter
	Masker    *masking.Masker
	Compactor *compactor.Compactor
	Logger    *slog.Logger

	ChannelLimit int
	SystemPrompt string
}

type Engine struct {
	deps Deps
}

func New(deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "engine")
	if deps.ChannelLimit <= 0 {
		deps.ChannelLimit = delivery.DefaultLimit
	}
	if deps.Masker == nil {
		deps.Masker = masking.New()
	}
	if deps.Compactor == nil {
		deps.Compactor = compactor.New(deps.Logger)
	}
	return &Engine{deps: deps}
}

// HandleTurn produces the reply for one inbound utterance. Collaborator
// failures degrade to fixed replies; the returned error is reserved for
// context cancellation.
func (e *Engine) HandleTurn(ctx context.Context, userID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	requester, registered := e.deps.Snapshots.Load().EmployeeByChatID(userID)
	if !registered {
		e.deps.Logger.Info("unregistered user refused", "user_id", userID)
		return refusalReply, nil
	}

	e.logInbound(ctx, userID, text)

	if reply, ok := e.deps.Greeter.Greet(userID, text); ok {
		return e.respond(ctx, userID, requester, reply, false)
	}

	if isLatestMailIntent(text) {
		return e.respond(ctx, userID, requester, e.latestMail(ctx), false)
	}

	result, err := e.deps.Dialogue.Advance(ctx, userID, text)
	if err != nil && !result.Handled {
		return "", err
	}
	if result.Handled {
		// Workflow prompts go out verbatim; they are already short.
		e.logOutbound(ctx, userID, result.Reply)
		return result.Reply, nil
	}

	if body, ok := rememberPayload(text); ok {
		return e.respond(ctx, userID, requester, e.remember(body, requester), false)
	}
	if query, ok := forgetPayload(text); ok {
		return e.respond(ctx, userID, requester, e.forget(query, requester), false)
	}
	if isEmailIntent(text) {
		target := e.emailTarget(text, requester)
		prompt := e.deps.Dialogue.StartEmailConfirm(userID, target, emailBody(text))
		e.logOutbound(ctx, userID, prompt)
		return prompt, nil
	}

	answer, err := e.deps.Router.Resolve(ctx, text, requester)
	switch {
	case err == nil:
		return e.respond(ctx, userID, requester, answer.Text, true)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "", err
	case errors.Is(err, boterr.ErrNoMatch):
		// Fall through to the generative backend.
	default:
		e.deps.Logger.Warn("retrieval failed", "error", err)
	}

	reply := e.generate(ctx, userID, text)
	return e.respond(ctx, userID, requester, reply, true)
}

// respond applies the delivery decision and logs the outbound turn. Replies
// from workflows skip the decision; retrieval and backend replies may be
// deferred to email when they exceed the channel limit.
func (e *Engine) respond(ctx context.Context, userID string, requester knowledge.Record, reply string, decide bool) (string, error) {
	if reply == "" {
		reply = backendApology
	}
	if decide {
		decision := delivery.Decide(reply, e.deps.ChannelLimit)
		if decision.Deferred {
			target := requester.Attr(knowledge.AttrEmail)
			reply = e.deps.Dialogue.ParkLongReply(userID, target, decision.FullText)
		} else {
			reply = decision.Immediate
		}
	}
	e.logOutbound(ctx, userID, reply)
	return reply, nil
}

// generate asks the backend, masking the utterance first when it touches
// personal data. Backend failures degrade to the apology.
func (e *Engine) generate(ctx context.Context, userID, text string) string {
	if e.deps.Responder == nil {
		return backendApology
	}

	prompt := llm.Prompt{System: e.deps.SystemPrompt, Text: text}
	var tokens masking.TokenMap
	if masking.Sensitive(text) {
		e.protectDirectoryNames()
		prompt.Text, tokens = e.deps.Masker.Mask(text)
	} else {
		prompt.History = e.history(ctx, userID)
	}

	reply, err := e.deps.Responder.Reply(ctx, prompt)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			e.deps.Logger.Warn("backend reply failed", "error", err)
		}
		return backendApology
	}
	if len(tokens) > 0 {
		reply = masking.Unmask(reply, tokens)
	}
	return reply
}

// protectDirectoryNames registers every employee's name variants with the
// masker so personal names are tokenized alongside the pattern matches.
// Spaceless forms cover utterances that write 田中太郎 without the separator.
func (e *Engine) protectDirectoryNames() {
	if e.deps.Snapshots == nil {
		return
	}
	for _, record := range e.deps.Snapshots.Load().Employees() {
		for alias := range knowledge.AliasSet(record) {
			e.deps.Masker.Protect(alias)
		}
		for _, attr := range []string{knowledge.AttrName, knowledge.AttrKana} {
			full := record.Attr(attr)
			e.deps.Masker.Protect(full)
			compact := strings.NewReplacer(" ", "", "　", "").Replace(full)
			if compact != full {
				e.deps.Masker.Protect(compact)
			}
			for _, part := range strings.FieldsFunc(full, func(r rune) bool { return r == ' ' || r == '　' }) {
				e.deps.Masker.Protect(part)
			}
		}
		e.deps.Masker.Protect(record.Attr(knowledge.AttrCallName), record.Attr(knowledge.AttrNickname))
	}
}

func (e *Engine) history(ctx context.Context, userID string) []string {
	if e.deps.Log == nil {
		return nil
	}
	entries, err := e.deps.Log.RecentConversation(ctx, userID, historyWindow, historyLimit)
	if err != nil {
		e.deps.Logger.Warn("history read failed", "error", err)
		return nil
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, entry.Speaker+": "+entry.Message)
	}
	return e.deps.Compactor.Compact(lines)
}

func (e *Engine) latestMail(ctx context.Context) string {
	if e.deps.Mail == nil {
		return noMailReply
	}
	message, err := e.deps.Mail.LatestMessage(ctx)
	if err != nil {
		e.deps.Logger.Warn("latest mail fetch failed", "error", err)
		return noMailReply
	}
	summary := fmt.Sprintf("最新のメール（%s）「%s」: %s", message.From, message.Subject, message.Body)
	return delivery.Truncate(summary, delivery.HardCap)
}

func (e *Engine) remember(body string, requester knowledge.Record) string {
	if e.deps.Writer == nil || body == "" {
		return backendApology
	}
	attrs := map[string]string{
		knowledge.AttrTopic:  delivery.Truncate(body, 30),
		knowledge.AttrBody:   body,
		knowledge.AttrAuthor: requester.Name(),
		knowledge.AttrDate:   time.Now().Format("2006-01-02"),
	}
	if err := e.deps.Writer.AppendRow(knowledge.SourceCompany, attrs, requester.Name()); err != nil {
		e.deps.Logger.Warn("remember write failed", "error", err)
		return backendApology
	}
	return rememberedReply
}

// forget removes company-knowledge rows the requester owns that mention the
// query. Rows scoped to someone else are never touched.
func (e *Engine) forget(query string, requester knowledge.Record) string {
	if e.deps.Writer == nil || query == "" {
		return nothingForgotten
	}
	owner := requester.Name()
	var rows []int
	for _, record := range e.deps.Snapshots.Load().Source(knowledge.SourceCompany) {
		if record.Scope != owner && record.Attr(knowledge.AttrAuthor) != owner {
			continue
		}
		if !forgetMatches(record, query) {
			continue
		}
		rows = append(rows, record.Row)
	}
	if len(rows) == 0 {
		return nothingForgotten
	}
	if err := e.deps.Writer.DeleteRows(knowledge.SourceCompany, rows); err != nil {
		e.deps.Logger.Warn("forget delete failed", "error", err)
		return backendApology
	}
	return fmt.Sprintf("%d件の内容を削除しました。", len(rows))
}

// forgetMatches pairs a deletion request with a stored row in either
// direction: the request may quote the row, or the row may be a fragment of
// the request.
func forgetMatches(record knowledge.Record, query string) bool {
	if strings.Contains(record.Text(), query) {
		return true
	}
	for _, attr := range []string{knowledge.AttrTopic, knowledge.AttrBody} {
		if value := record.Attr(attr); value != "" && strings.Contains(query, value) {
			return true
		}
	}
	return false
}

func (e *Engine) emailTarget(text string, requester knowledge.Record) string {
	for _, employee := range e.deps.Snapshots.Load().Employees() {
		aliases := knowledge.AliasSet(employee)
		if _, ok := knowledge.MatchesAlias(text, aliases); !ok {
			continue
		}
		if address := employee.Attr(knowledge.AttrEmail); address != "" {
			return address
		}
	}
	return requester.Attr(knowledge.AttrEmail)
}

func (e *Engine) logInbound(ctx context.Context, userID, text string) {
	if e.deps.Log == nil {
		return
	}
	if err := e.deps.Log.AppendConversation(ctx, store.AppendConversationInput{
		UserID:  userID,
		Speaker: store.SpeakerUser,
		Message: text,
	}); err != nil {
		e.deps.Logger.Warn("conversation log failed", "error", err)
	}
	if category, ok := importantCategory(text); ok {
		if err := e.deps.Log.AppendExperience(ctx, userID, text, category); err != nil {
			e.deps.Logger.Warn("experience log failed", "error", err)
		}
	}
}

func (e *Engine) logOutbound(ctx context.Context, userID, reply string) {
	if e.deps.Log == nil || reply == "" {
		return
	}
	if err := e.deps.Log.AppendConversation(ctx, store.AppendConversationInput{
		UserID:  userID,
		Speaker: store.SpeakerAssistant,
		Message: reply,
	}); err != nil {
		e.deps.Logger.Warn("conversation log failed", "error", err)
	}
}
