package dispatcher

import (
	"time"

	"github.com/esign-tools/renotify/internal/domain/document"
	"github.com/esign-tools/renotify/internal/domain/reminder"
	"github.com/esign-tools/renotify/internal/domain/subscription"
	"github.com/esign-tools/renotify/internal/domain/suppression"
)

// Decision is the outcome of evaluating one subscription against the live
// document state. A non-empty TerminalReason tells the dispatcher to stop the
// subscription; Due=false without a reason means "try again next cycle".
type Decision struct {
	Due                bool
	EligibleRecipients []string
	TerminalReason     subscription.StopReason
}

// Evaluate decides whether a reminder is owed and to whom. It is a pure
// function of its inputs.
//
// The interval gate paces off the last attempted event regardless of its
// success, so a run of transient dispatch failures is retried once per
// interval, not faster. The max-reminders gate counts successful attempts
// only. The interval boundary is inclusive.
func Evaluate(
	sub *subscription.Subscription,
	hist *reminder.History,
	supps []*suppression.Suppression,
	doc *document.Document,
	now time.Time,
) Decision {
	if !sub.Enabled {
		return Decision{}
	}

	pending := doc.PendingRecipients()
	if len(pending) == 0 {
		return Decision{TerminalReason: subscription.ReasonDocumentCompleted}
	}

	if hist.Successes >= sub.MaxReminders {
		return Decision{TerminalReason: subscription.ReasonMaxRemindersReached}
	}

	suppressed := make(map[string]bool, len(supps))
	for _, s := range supps {
		if s.IsDocumentLevel() {
			return Decision{TerminalReason: subscription.ReasonSuppressed}
		}
		suppressed[*s.RecipientID] = true
	}

	eligible := make([]string, 0, len(pending))
	for _, r := range pending {
		if !suppressed[r.ID] {
			eligible = append(eligible, r.ID)
		}
	}
	if len(eligible) == 0 {
		return Decision{}
	}

	if hist.LastAttemptAt != nil && now.Before(hist.LastAttemptAt.Add(sub.Interval())) {
		return Decision{}
	}

	return Decision{Due: true, EligibleRecipients: eligible}
}
