package document

// RecipientStatus mirrors the signing platform's per-recipient state.
type RecipientStatus string

const (
	StatusPending  RecipientStatus = "pending"
	StatusViewed   RecipientStatus = "viewed"
	StatusSigned   RecipientStatus = "signed"
	StatusDeclined RecipientStatus = "declined"
)

// Terminal reports whether the recipient needs no further reminders.
func (s RecipientStatus) Terminal() bool {
	return s == StatusSigned || s == StatusDeclined
}

type Recipient struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Email  string          `json:"email"`
	Status RecipientStatus `json:"status"`
}

type Document struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Recipients []Recipient `json:"recipients"`
}

// PendingRecipients returns recipients still awaiting a signature.
func (d *Document) PendingRecipients() []Recipient {
	var out []Recipient
	for _, r := range d.Recipients {
		if !r.Status.Terminal() {
			out = append(out, r)
		}
	}
	return out
}

// Completed reports whether every recipient reached a terminal status.
func (d *Document) Completed() bool {
	return len(d.PendingRecipients()) == 0
}
