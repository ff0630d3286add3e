package subscription

import "time"

// StopReason is recorded on a subscription when reminders are halted.
type StopReason string

const (
	ReasonDocumentCompleted   StopReason = "document_completed"
	ReasonMaxRemindersReached StopReason = "max_reminders_reached"
	ReasonSuppressed          StopReason = "suppressed"
	ReasonDocumentNotFound    StopReason = "document_not_found"
)

type Policy struct {
	IntervalDays int `json:"interval_days"`
	MaxReminders int `json:"max_reminders"`
}

type Subscription struct {
	ID            int64      `json:"id"`
	DocumentID    string     `json:"document_id"`
	Enabled       bool       `json:"enabled"`
	IntervalDays  int        `json:"interval_days"`
	MaxReminders  int        `json:"max_reminders"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StoppedAt     *time.Time `json:"stopped_at"`
	StoppedReason *string    `json:"stopped_reason"`
}

// Interval is the minimum spacing between reminder attempts.
func (s *Subscription) Interval() time.Duration {
	return time.Duration(s.IntervalDays) * 24 * time.Hour
}

type Stats struct {
	Active           int64 `json:"active"`
	Stopped          int64 `json:"stopped"`
	SuccessfulEvents int64 `json:"successful_events"`
}
