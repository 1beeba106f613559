package models

import (
	"strings"
	"time"
	"unicode/utf8"

	dErrors "petchat/pkg/domain-errors"

	"github.com/google/uuid"
)

// Event names a socket event exchanged with the chat server.
type Event string

const (
	EventJoinChat    Event = "join_chat"
	EventLeaveChat   Event = "leave_chat"
	EventSendMessage Event = "send_message"
	EventTypingStart Event = "typing_start"
	EventTypingStop  Event = "typing_stop"

	// Server to client.
	EventNewMessage Event = "new_message"
	EventUserTyping Event = "user_typing"
	EventError      Event = "error"
)

func (e Event) String() string { return string(e) }

// MessageType classifies message content.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

func (t MessageType) IsValid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// MaxContentLength is the longest message body accepted, in runes.
const MaxContentLength = 4000

// Envelope is the JSON frame written to and read from the socket.
type Envelope struct {
	ID          uuid.UUID   `json:"id"`
	Event       Event       `json:"event"`
	ChatID      string      `json:"chatId,omitempty"`
	Content     string      `json:"content,omitempty"`
	MessageType MessageType `json:"messageType,omitempty"`
	SenderID    string      `json:"senderId,omitempty"`
	IsTyping    *bool       `json:"isTyping,omitempty"`
	Error       string      `json:"error,omitempty"`
	SentAt      time.Time   `json:"sentAt"`
}

// NewEnvelope stamps a fresh ID and send time.
func NewEnvelope(event Event, chatID string, now time.Time) *Envelope {
	return &Envelope{
		ID:     uuid.New(),
		Event:  event,
		ChatID: chatID,
		SentAt: now,
	}
}

// SendMessageRequest is one outgoing chat message.
type SendMessageRequest struct {
	ChatID      string      `json:"chatId"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"messageType"`
}

// Normalize trims the chat ID and defaults the message type to text.
// Content is sent as typed apart from surrounding whitespace.
func (r *SendMessageRequest) Normalize() {
	if r == nil {
		return
	}
	r.ChatID = strings.TrimSpace(r.ChatID)
	r.Content = strings.TrimSpace(r.Content)
	if r.MessageType == "" {
		r.MessageType = MessageTypeText
	}
}

func (r *SendMessageRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := ValidateChatID(r.ChatID); err != nil {
		return err
	}
	if r.Content == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "message content cannot be empty")
	}
	if utf8.RuneCountInString(r.Content) > MaxContentLength {
		return dErrors.New(dErrors.CodeInvalidInput, "message content exceeds 4000 characters")
	}
	if !r.MessageType.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid message type: must be 'text', 'image' or 'file'")
	}
	return nil
}

// ValidateChatID rejects blank chat identifiers.
func ValidateChatID(chatID string) error {
	if strings.TrimSpace(chatID) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "chat id is required")
	}
	return nil
}

// QueuedMessage is a message held while the transport is down.
type QueuedMessage struct {
	ID       uuid.UUID
	Request  SendMessageRequest
	QueuedAt time.Time
}

// SendResult reports what happened to one SendMessage call.
type SendResult struct {
	ID     uuid.UUID `json:"id"`
	Queued bool      `json:"queued"`
}

// FlushResult summarizes one replay of the offline queue.
type FlushResult struct {
	Sent      int `json:"sent"`
	Remaining int `json:"remaining"`
}
