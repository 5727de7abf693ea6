package model

import "time"

// Message is a direct message between two users. The body and the edited flag
// are mutable only by the sender; the read flag only by the recipient.
// Deletion is a hard delete by the sender.
type Message struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"sender_id"`
	RecipientID int64     `json:"recipient_id"`
	Body        string    `json:"body"`
	SentAt      time.Time `json:"sent_at"`
	Read        bool      `json:"read"`
	Edited      bool      `json:"edited"`
}

// ConversationSummary is derived per counterpart and never stored: it must
// always be recomputable from the message set alone. Unread equals the count
// of messages sent by the peer to the viewer with read=false.
type ConversationSummary struct {
	PeerID   int64     `json:"peer_id"`
	PeerName string    `json:"peer_name"`
	LastBody string    `json:"last_body"`
	LastAt   time.Time `json:"last_at"`
	Unread   int       `json:"unread"`
}
