package models

// Status is the delivery state of a message. It only moves forward:
// sending -> sent -> delivered -> read. "sending" exists only in
// client-side placeholders and is never persisted.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

var statusRank = map[Status]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Rank returns the position of s in the forward status order, or -1
// for an unknown value.
func (s Status) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether s is one of the four known status values.
func (s Status) Valid() bool { return s.Rank() >= 0 }

// Media describes one attachment. The raw bytes live in external
// storage; only the descriptor is persisted with the message.
type Media struct {
	URL          string `json:"url"`
	OriginalName string `json:"original_name,omitempty"`
	Type         string `json:"type,omitempty"`
}

type Message struct {
	ID string `json:"id"`
	// Conversation is the canonical key for the two-party thread:
	// both participant ids sorted and joined (see keys.ConvKey).
	Conversation string `json:"conversation"`
	Sender       string `json:"sender"`
	Receiver     string `json:"receiver"`
	// Text is optional; a message must carry non-empty text or at
	// least one media entry.
	Text  string  `json:"text,omitempty"`
	Media []Media `json:"media,omitempty"`
	// ReplyTo optionally references another message id in the same
	// conversation. The target may have been deleted since.
	ReplyTo string `json:"reply_to,omitempty"`
	Status  Status `json:"status"`
	// Edited and EditedTS are set together by an accepted edit.
	Edited   bool  `json:"edited,omitempty"`
	EditedTS int64 `json:"edited_ts,omitempty"`
	// Timestamps are UTC nanoseconds. CreatedTS never changes;
	// UpdatedTS advances on edits and status transitions.
	CreatedTS int64 `json:"created_ts"`
	UpdatedTS int64 `json:"updated_ts"`
	// Seq is the store's per-conversation assignment order. Visible
	// ordering is (CreatedTS, Seq), which the storage key encodes.
	Seq uint64 `json:"seq"`
}

// Read reports whether the recipient has read the message.
func (m Message) Read() bool { return m.Status == StatusRead }

// ReplyPreview is what a reply reference resolves to at read time.
// Deleted targets degrade to a tombstone instead of an error.
type ReplyPreview struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted,omitempty"`
	Sender  string `json:"sender,omitempty"`
	Text    string `json:"text,omitempty"`
}

// ConversationMeta is the stored per-conversation record. It is
// derived state: the message sequence is authoritative.
type ConversationMeta struct {
	Key            string    `json:"key"`
	Participants   [2]string `json:"participants"`
	CreatedTS      int64     `json:"created_ts"`
	LastActivityTS int64     `json:"last_activity_ts"`
	LastMessageID  string    `json:"last_message_id,omitempty"`
}
