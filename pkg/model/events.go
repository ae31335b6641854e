package model

import "time"

type EventType string

// Events emitted to clients.
const (
	EventReceiveMessage      EventType = "receiveMessage"
	EventReceiveGroupMessage EventType = "receiveGroupMessage"
	EventUserTyping          EventType = "userTyping"
	EventUserStoppedTyping   EventType = "userStoppedTyping"
	EventMessageDelivered    EventType = "messageDelivered"
	EventMessageRead         EventType = "messageRead"
	EventMessageSent         EventType = "messageSent"
	EventSendFailed          EventType = "sendFailed"
)

// Events accepted from clients. messageDelivered and messageRead flow in both
// directions: inbound as acknowledgements, outbound as sender notifications.
const (
	EventSendMessage EventType = "sendMessage"
	EventTyping      EventType = "typing"
	EventStopTyping  EventType = "stopTyping"
)

// StatusPayload notifies a sender that one of their messages changed status.
type StatusPayload struct {
	MessageID int64         `json:"id"`
	Status    MessageStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}

// TypingPayload carries a typing indicator to conversation peers.
type TypingPayload struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver,omitempty"`
	GroupID  string `json:"group_id,omitempty"`
}

// SendResult is the acknowledgement returned to a sender for every accepted
// message: delivered if the receiver was online, pending if it was queued.
type SendResult struct {
	MessageID int64         `json:"id"`
	Status    MessageStatus `json:"status"`
	Warning   string        `json:"warning,omitempty"`
}

// SendFailure is returned instead of SendResult when routing fails outright.
type SendFailure struct {
	Reason string `json:"reason"`
}
