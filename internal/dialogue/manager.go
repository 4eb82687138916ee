package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/hibari-ai/officebot/internal/boterr"
	"github.com/hibari-ai/officebot/internal/delivery"
	"github.com/hibari-ai/officebot/internal/knowledge"
)

// SessionIdleWindow is how long a workflow survives without a turn before it
// silently resets to idle.
const SessionIdleWindow = 2 * time.Hour

const (
	promptBroadcastConfirm = "承知しました。このことを皆さんにお知らせしますか？（はい/いいえ）"
	promptScopeConfirm     = "全員にお知らせしますか？（はい/いいえ）"
	promptRecipientName    = "どなたにお知らせしますか？お名前を教えてください。"
	promptAddMore          = "他にお知らせする方はいますか？お名前をどうぞ。いなければ「以上」と送ってください。"
	promptChannelChoice    = "お答えが長くなりそうです。全文をメールでお送りしましょうか？（はい/いいえ）"

	replyCancelled       = "承知しました。お知らせはしません。"
	replyTopicChanged    = "承知しました。この件はいったん取りやめますね。"
	replyEmailSent       = "メールを送信しました。"
	replyEmailDeclined   = "承知しました。送信しません。"
	replyFullTextMailed  = "全文をメールでお送りしました。"
	replyRecipientMissed = "その名前の方が見つかりませんでした。もう一度教えてください。"

	corruptApology    = "申し訳ありません、会話の状態を見失ってしまいました。最初からお願いできますか？"
	sendFailedApology = "申し訳ありません、メールを送信できませんでした。"

	relayEmailSubject = "ご依頼のメッセージ"
)

// Transport delivers a message to one user on the primary channel.
type Transport interface {
	SendMessage(ctx context.Context, userID, text string) error
}

// Mailer delivers on the alternate channel.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// AttendanceRecorder persists an attendance event. Implementations are
// expected to be idempotent per user, day and kind.
type AttendanceRecorder interface {
	RecordAttendance(ctx context.Context, userID, kind string) error
}

// Result mirrors the gateway contract: Handled=false tells the caller the
// utterance was not an answer to an open prompt and should flow onward.
type Result struct {
	Handled bool
	Reply   string
}

type Manager struct {
	snapshots  *knowledge.Handle
	transport  Transport
	mailer     Mailer
	attendance AttendanceRecorder
	logger     *slog.Logger

	sessions *cache.Cache

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(snapshots *knowledge.Handle, transport Transport, mailer Mailer, attendance AttendanceRecorder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		snapshots:  snapshots,
		transport:  transport,
		mailer:     mailer,
		attendance: attendance,
		logger:     logger.With("component", "dialogue"),
		sessions:   cache.New(SessionIdleWindow, 10*time.Minute),
		locks:      map[string]*sync.Mutex{},
	}
}

// Advance feeds one utterance into the user's open workflow, if any. When the
// session is idle and the utterance does not open a workflow, Handled is
// false and the session is untouched. The session is never left half-mutated:
// a turn that fails restores the state it started with.
func (m *Manager) Advance(ctx context.Context, userID, utterance string) (Result, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	session := m.session(userID)
	if !session.Step.valid() {
		m.logger.Error("session step out of range, resetting",
			"user_id", userID, "step", int(session.Step))
		session.reset()
		m.save(userID, session)
		return Result{Handled: true, Reply: corruptApology}, boterr.ErrSessionCorrupt
	}

	before := session.clone()
	result, err := m.advance(ctx, userID, session, utterance)
	if err != nil {
		*session = *before
		m.save(userID, session)
		return result, err
	}
	if result.Handled {
		session.LastActivity = time.Now()
		m.save(userID, session)
	}
	return result, nil
}

func (m *Manager) advance(ctx context.Context, userID string, session *Session, utterance string) (Result, error) {
	if session.Step != StepIdle && isTopicChange(utterance) {
		session.reset()
		return Result{Handled: true, Reply: replyTopicChanged}, nil
	}

	switch session.Step {
	case StepIdle:
		kind, ok := attendanceKind(utterance)
		if !ok {
			return Result{}, nil
		}
		m.recordAttendance(ctx, userID, kind)
		session.Step = StepAwaitBroadcastConfirm
		session.AttendanceKind = kind
		session.PendingBody = utterance
		return Result{Handled: true, Reply: promptBroadcastConfirm}, nil

	case StepAwaitBroadcastConfirm:
		switch {
		case isYes(utterance):
			session.Step = StepAwaitScopeConfirm
			return Result{Handled: true, Reply: promptScopeConfirm}, nil
		case isNo(utterance):
			session.reset()
			return Result{Handled: true, Reply: replyCancelled}, nil
		default:
			return Result{Handled: true, Reply: promptBroadcastConfirm}, nil
		}

	case StepAwaitScopeConfirm:
		switch {
		case isYes(utterance):
			report := m.relay(ctx, userID, m.broadcastTargets(userID), session)
			session.reset()
			return Result{Handled: true, Reply: report}, nil
		case isNo(utterance):
			session.Step = StepAwaitRecipientName
			return Result{Handled: true, Reply: promptRecipientName}, nil
		default:
			return Result{Handled: true, Reply: promptScopeConfirm}, nil
		}

	case StepAwaitRecipientName:
		record, ok := m.resolveEmployee(utterance)
		if !ok {
			return Result{Handled: true, Reply: replyRecipientMissed}, nil
		}
		session.addRecipient(recipientID(record))
		session.PendingRecipient = record.Name()
		session.Step = StepAwaitSendConfirm
		prompt := fmt.Sprintf("%sさんにお知らせしますか？（はい/いいえ）", record.Name())
		return Result{Handled: true, Reply: prompt}, nil

	case StepAwaitSendConfirm:
		switch {
		case isYes(utterance):
			report := m.relay(ctx, userID, session.Recipients, session)
			session.reset()
			return Result{Handled: true, Reply: report}, nil
		case isNo(utterance):
			session.Step = StepAccumulatingRecipients
			return Result{Handled: true, Reply: promptAddMore}, nil
		default:
			prompt := fmt.Sprintf("%sさんにお知らせしますか？（はい/いいえ）", session.PendingRecipient)
			return Result{Handled: true, Reply: prompt}, nil
		}

	case StepAccumulatingRecipients:
		if isDone(utterance) {
			if len(session.Recipients) == 0 {
				session.reset()
				return Result{Handled: true, Reply: replyCancelled}, nil
			}
			report := m.relay(ctx, userID, session.Recipients, session)
			session.reset()
			return Result{Handled: true, Reply: report}, nil
		}
		if isNo(utterance) {
			session.reset()
			return Result{Handled: true, Reply: replyCancelled}, nil
		}
		record, ok := m.resolveEmployee(utterance)
		if !ok {
			return Result{Handled: true, Reply: replyRecipientMissed}, nil
		}
		session.addRecipient(recipientID(record))
		session.PendingRecipient = record.Name()
		prompt := fmt.Sprintf("%sさんを追加しました。%s", record.Name(), promptAddMore)
		return Result{Handled: true, Reply: prompt}, nil

	case StepAwaitEmailConfirm:
		switch {
		case isYes(utterance):
			reply := m.sendEmail(ctx, session.PendingEmailTarget, session.PendingBody)
			session.reset()
			return Result{Handled: true, Reply: reply}, nil
		case isNo(utterance):
			session.reset()
			return Result{Handled: true, Reply: replyEmailDeclined}, nil
		default:
			return Result{Handled: true, Reply: emailConfirmPrompt(session.PendingEmailTarget)}, nil
		}

	case StepAwaitChannelChoice:
		switch {
		case isYes(utterance):
			reply := m.sendEmail(ctx, session.PendingEmailTarget, session.PendingFullText)
			if reply == replyEmailSent {
				reply = replyFullTextMailed
			}
			session.reset()
			return Result{Handled: true, Reply: reply}, nil
		case isNo(utterance):
			// Caller declined the alternate channel; hand back what fits.
			reply := delivery.Truncate(session.PendingFullText, delivery.HardCap)
			session.reset()
			return Result{Handled: true, Reply: reply}, nil
		default:
			return Result{Handled: true, Reply: promptChannelChoice}, nil
		}
	}
	return Result{}, nil
}

// StartEmailConfirm opens the email workflow for a drafted message and
// returns the confirmation prompt to show the user.
func (m *Manager) StartEmailConfirm(userID, target, body string) string {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	session := m.session(userID)
	session.reset()
	session.Step = StepAwaitEmailConfirm
	session.PendingEmailTarget = target
	session.PendingBody = body
	session.LastActivity = time.Now()
	m.save(userID, session)
	return emailConfirmPrompt(target)
}

// ParkLongReply stashes a reply that exceeded the channel limit and opens the
// channel-choice workflow. The returned prompt replaces the long reply.
func (m *Manager) ParkLongReply(userID, target, fullText string) string {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	session := m.session(userID)
	session.reset()
	session.Step = StepAwaitChannelChoice
	session.PendingEmailTarget = target
	session.PendingFullText = fullText
	session.LastActivity = time.Now()
	m.save(userID, session)
	return promptChannelChoice
}

func emailConfirmPrompt(target string) string {
	if target == "" {
		return "メールをお送りしますか？（はい/いいえ）"
	}
	return fmt.Sprintf("%s 宛にメールをお送りしますか？（はい/いいえ）", target)
}

func (m *Manager) sendEmail(ctx context.Context, target, body string) string {
	if m.mailer == nil || target == "" || body == "" {
		return sendFailedApology
	}
	if err := m.mailer.Send(ctx, target, relayEmailSubject, body); err != nil {
		m.logger.Warn("email send failed", "error", err)
		return sendFailedApology
	}
	return replyEmailSent
}

// relay delivers the pending body to each recipient, retrying each transport
// call once. The report tells the requester how many deliveries succeeded.
func (m *Manager) relay(ctx context.Context, senderID string, recipients []string, session *Session) string {
	if len(recipients) == 0 {
		return "お知らせする相手が見つかりませんでした。"
	}
	body := session.PendingBody
	if sender, ok := m.snapshots.Load().EmployeeByChatID(senderID); ok {
		body = fmt.Sprintf("%sさんからのお知らせ：%s", sender.Name(), body)
	}

	delivered := 0
	for _, recipient := range recipients {
		if err := m.sendOnce(ctx, recipient, body); err != nil {
			m.logger.Warn("relay delivery failed", "recipient", recipient, "error", err)
			continue
		}
		delivered++
	}
	if delivered == len(recipients) {
		return fmt.Sprintf("%d名にお知らせしました。", delivered)
	}
	return fmt.Sprintf("%d名中%d名にお知らせしました。届かなかった方がいます。", len(recipients), delivered)
}

func (m *Manager) sendOnce(ctx context.Context, recipient, body string) error {
	if m.transport == nil {
		return boterr.ErrDeliveryFailed
	}
	err := m.transport.SendMessage(ctx, recipient, body)
	if err == nil {
		return nil
	}
	// One retry, then report the failure.
	return m.transport.SendMessage(ctx, recipient, body)
}

func (m *Manager) broadcastTargets(senderID string) []string {
	employees := m.snapshots.Load().Employees()
	targets := make([]string, 0, len(employees))
	for _, employee := range employees {
		id := recipientID(employee)
		if id == "" || id == senderID {
			continue
		}
		targets = append(targets, id)
	}
	return targets
}

func (m *Manager) resolveEmployee(utterance string) (knowledge.Record, bool) {
	name := knowledge.StripHonorific(strings.TrimSpace(utterance))
	if name == "" {
		return knowledge.Record{}, false
	}
	for _, employee := range m.snapshots.Load().Employees() {
		if _, ok := knowledge.MatchesAlias(name, knowledge.AliasSet(employee)); ok {
			return employee, true
		}
	}
	return knowledge.Record{}, false
}

func recipientID(record knowledge.Record) string {
	if id := record.Attr(knowledge.AttrChatID); id != "" {
		return id
	}
	return record.Name()
}

func (m *Manager) recordAttendance(ctx context.Context, userID, kind string) {
	if m.attendance == nil {
		return
	}
	if err := m.attendance.RecordAttendance(ctx, userID, kind); err != nil {
		m.logger.Warn("attendance record failed", "user_id", userID, "kind", kind, "error", err)
	}
}

func (m *Manager) session(userID string) *Session {
	if v, ok := m.sessions.Get(userID); ok {
		return v.(*Session)
	}
	return &Session{}
}

func (m *Manager) save(userID string, session *Session) {
	m.sessions.Set(userID, session, cache.DefaultExpiration)
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[userID] = lock
	}
	return lock
}
