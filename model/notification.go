package model

import "time"

// Notification categories correspond to the back-office emitters.
const (
	CategoryAlert        = "alert"
	CategoryStock        = "stock"
	CategoryReport       = "report"
	CategoryIntervention = "intervention"
)

// Notification targets a single user, or everyone when TargetID is nil
// (broadcast). The Read flag is per viewer: it is resolved against the
// notification_reads receipts at fetch time, never stored on the row itself,
// so one viewer marking a broadcast read does not hide it for the others.
type Notification struct {
	ID        int64     `json:"id"`
	TargetID  *int64    `json:"target_id,omitempty"`
	Category  string    `json:"category"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// Broadcast reports whether the notification is visible to every user.
func (n Notification) Broadcast() bool { return n.TargetID == nil }
