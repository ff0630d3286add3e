package suppression

import "time"

// Actor identifies who recorded a suppression.
const (
	ActorOwner  = "owner"
	ActorSystem = "system"
)

// Suppression blocks reminders for a document, or for one recipient when
// RecipientID is set. A document-level row (nil RecipientID) goes together
// with disabling the subscription.
type Suppression struct {
	ID          int64     `json:"id"`
	DocumentID  string    `json:"document_id"`
	RecipientID *string   `json:"recipient_id"`
	Reason      string    `json:"reason"`
	Actor       string    `json:"actor"`
	StoppedAt   time.Time `json:"stopped_at"`
}

// IsDocumentLevel reports whether the row suppresses the whole document.
func (s *Suppression) IsDocumentLevel() bool { return s.RecipientID == nil }
