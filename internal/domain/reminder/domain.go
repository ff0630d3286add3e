package reminder

import "time"

// Event is one dispatch attempt for a document. Events are append-only and
// immutable once written; Ordinal is the 1-based attempt number.
type Event struct {
	ID           int64     `json:"id"`
	DocumentID   string    `json:"document_id"`
	RecipientIDs []string  `json:"recipient_ids"`
	Ordinal      int       `json:"ordinal"`
	SentAt       time.Time `json:"sent_at"`
	Success      bool      `json:"success"`
	ErrorDetail  *string   `json:"error_detail"`
}

// History summarizes a document's event trail for eligibility decisions.
type History struct {
	Attempts      int        `json:"attempts"`
	Successes     int        `json:"successes"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
}
