// Package dialogue tracks per-user multi-turn workflows: relaying an
// attendance notice to colleagues, confirming an outbound email, and choosing
// a channel for a reply that was too long for the primary one. While a
// workflow is open its prompts take priority over free-form retrieval.
package dialogue

import "time"

// Step identifies the prompt a session is currently waiting on. A session
// holds at most one open workflow, so one enum covers all three machines.
type Step int

const (
	StepIdle Step = iota

	// Attendance relay.
	StepAwaitBroadcastConfirm
	StepAwaitScopeConfirm
	StepAwaitRecipientName
	StepAwaitSendConfirm
	StepAccumulatingRecipients

	// Outbound email confirmation.
	StepAwaitEmailConfirm

	// Long-reply channel escalation.
	StepAwaitChannelChoice

	stepSentinel // keep last
)

func (s Step) String() string {
	switch s {
	case StepIdle:
		return "idle"
	case StepAwaitBroadcastConfirm:
		return "await-broadcast-confirm"
	case StepAwaitScopeConfirm:
		return "await-scope-confirm"
	case StepAwaitRecipientName:
		return "await-recipient-name"
	case StepAwaitSendConfirm:
		return "await-send-confirm"
	case StepAccumulatingRecipients:
		return "accumulating-recipients"
	case StepAwaitEmailConfirm:
		return "await-email-confirm"
	case StepAwaitChannelChoice:
		return "await-channel-choice"
	default:
		return "unknown"
	}
}

func (s Step) valid() bool {
	return s >= StepIdle && s < stepSentinel
}

// Session is the per-user workflow state. It is owned exclusively by the
// Manager; nothing else mutates it.
type Session struct {
	Step               Step
	PendingRecipient   string   // display name of the last matched recipient
	Recipients         []string // transport ids accumulated so far, deduped
	PendingBody        string   // message being relayed
	PendingFullText    string   // parked long reply awaiting channel choice
	PendingEmailTarget string   // address for the email-confirm workflow
	AttendanceKind     string
	LastActivity       time.Time
}

func (s *Session) reset() {
	*s = Session{LastActivity: s.LastActivity}
}

// clone deep-copies the session so a failed turn can restore it.
func (s *Session) clone() *Session {
	copied := *s
	copied.Recipients = append([]string(nil), s.Recipients...)
	return &copied
}

func (s *Session) addRecipient(id string) {
	for _, existing := range s.Recipients {
		if existing == id {
			return
		}
	}
	s.Recipients = append(s.Recipients, id)
}
