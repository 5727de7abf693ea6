package bus

import "CityOps/model"

// Subjects routed through the bus. One logical action maps to one subject;
// ordering across subjects is not guaranteed.
const (
	SubjectMessageSend   = "cityops.msg.send"
	SubjectMessageEdit   = "cityops.msg.edit"
	SubjectMessageDelete = "cityops.msg.delete"
	SubjectNotify        = "cityops.notify.push"
)

// MessageEvent carries the already-persisted message; the relay never invents
// or mutates message state.
type MessageEvent struct {
	Message model.Message `json:"message"`
}

type MessageEditEvent struct {
	ID          int64  `json:"id"`
	SenderID    int64  `json:"sender_id"`
	RecipientID int64  `json:"recipient_id"`
	Body        string `json:"body"`
}

type MessageDeleteEvent struct {
	ID          int64 `json:"id"`
	SenderID    int64 `json:"sender_id"`
	RecipientID int64 `json:"recipient_id"`
}

type NotificationEvent struct {
	Notification model.Notification `json:"notification"`
}
