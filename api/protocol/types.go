package protocol

import (
	"errors"
	"time"

	"github.com/pulsechat/pulse/api/domain"
)

type EventType string

// Client events.
const (
	EventPing          EventType = "ping"
	EventSubscribe     EventType = "subscribe"
	EventUnsubscribe   EventType = "unsubscribe"
	EventSendMessage   EventType = "send_message"
	EventEditMessage   EventType = "edit_message"
	EventDeleteMessage EventType = "delete_message"
	EventRead          EventType = "read"
	EventReact         EventType = "react"
)

// Server events. EventTyping travels both directions.
const (
	EventPong            EventType = "pong"
	EventMessageAck      EventType = "message_ack"
	EventNewMessage      EventType = "new_message"
	EventMessageUpdated  EventType = "message_updated"
	EventMessageDeleted  EventType = "message_deleted"
	EventDeliveryReceipt EventType = "delivery_receipt"
	EventReadReceipt     EventType = "read_receipt"
	EventTyping          EventType = "typing"
	EventPresence        EventType = "presence"
	EventReactionUpdated EventType = "reaction_updated"
	EventError           EventType = "error"
)

// CloseAuthFailure is the close code for any authentication failure at
// connect time, missing or invalid credential alike.
const CloseAuthFailure = 4001

// --- Client payloads ---

type Subscribe struct {
	ConversationIDs []string `json:"conversationIds"`
}

type Unsubscribe struct {
	ConversationIDs []string `json:"conversationIds"`
}

type SendMessage struct {
	ID             string   `json:"id"` // client-chosen UUID
	ConversationID string   `json:"conversationId"`
	Content        *string  `json:"content,omitempty"`
	Type           string   `json:"type"`
	ReplyToID      *string  `json:"replyToId,omitempty"`
	AttachmentIDs  []string `json:"attachmentIds,omitempty"`
}

type EditMessage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type DeleteMessage struct {
	ID string `json:"id"`
}

type Read struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type React struct {
	MessageID string  `json:"messageId"`
	Emoji     *string `json:"emoji"` // null removes the caller's reaction
}

// --- Server payloads ---

const (
	AckOK    = "ok"
	AckError = "error"
)

type MessageAck struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"` // ok, error
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Message is the full wire shape broadcast as new_message. DeliveredAt and
// ReadAt are always null there; receipts advance them afterwards.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Sender         User         `json:"sender"`
	Type           string       `json:"type"`
	Content        *string      `json:"content,omitempty"`
	ReplyToID      *string      `json:"replyToId,omitempty"`
	Attachments    []Attachment `json:"attachments"`
	Reactions      []Reaction   `json:"reactions"`
	CreatedAt      time.Time    `json:"createdAt"`
	EditedAt       *time.Time   `json:"editedAt,omitempty"`
	DeliveredAt    *time.Time   `json:"deliveredAt"`
	ReadAt         *time.Time   `json:"readAt"`
}

type User struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl,omitempty"`
}

type Attachment struct {
	ID           string  `json:"id"`
	URL          string  `json:"url"`
	MimeType     string  `json:"mimeType"`
	SizeBytes    int64   `json:"sizeBytes"`
	ThumbnailURL *string `json:"thumbnailUrl,omitempty"`
	Width        *int32  `json:"width,omitempty"`
	Height       *int32  `json:"height,omitempty"`
	DurationMs   *int32  `json:"durationMs,omitempty"`
}

type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

type MessageUpdated struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Content        string    `json:"content"`
	EditedAt       time.Time `json:"editedAt"`
}

type MessageDeleted struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
}

type DeliveryReceipt struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	DeliveredAt    time.Time `json:"deliveredAt"`
}

type ReadReceipt struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	MessageID      string    `json:"messageId"`
	ReadAt         time.Time `json:"readAt"`
}

type Typing struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId,omitempty"` // filled by the server on relay
	IsTyping       bool   `json:"isTyping"`
}

const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

type Presence struct {
	UserID     string    `json:"userId"`
	Status     string    `json:"status"` // online, offline
	LastSeenAt time.Time `json:"lastSeenAt"`
}

type ReactionUpdated struct {
	MessageID      string  `json:"messageId"`
	ConversationID string  `json:"conversationId"`
	UserID         string  `json:"userId"`
	Emoji          *string `json:"emoji"` // null means removed
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Error taxonomy ---

const (
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInternal       = "INTERNAL"
)

// CodeFromError maps domain sentinels onto the wire taxonomy. Anything
// unrecognized is INTERNAL; the client may retry idempotent operations.
func CodeFromError(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrConflict):
		return CodeConflict
	case errors.Is(err, domain.ErrInvalid):
		return CodeInvalidMessage
	case errors.Is(err, domain.ErrRateLimited):
		return CodeRateLimited
	default:
		return CodeInternal
	}
}

// NewMessage assembles the wire shape for a freshly persisted message.
// Receipt timestamps start null on the wire regardless of row state; the
// delivery pass that follows a send announces them via receipts.
func NewMessage(m *domain.Message, sender *domain.User, attachments []domain.Attachment) *Message {
	wm := &Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         NewUser(sender),
		Type:           m.Kind,
		Content:        m.Content,
		ReplyToID:      m.ReplyToID,
		Attachments:    make([]Attachment, 0, len(attachments)),
		Reactions:      []Reaction{},
		CreatedAt:      m.CreatedAt,
		EditedAt:       m.EditedAt,
	}
	for _, a := range attachments {
		wm.Attachments = append(wm.Attachments, Attachment{
			ID:           a.ID,
			URL:          a.URL,
			MimeType:     a.MimeType,
			SizeBytes:    a.SizeBytes,
			ThumbnailURL: a.ThumbnailURL,
			Width:        a.Width,
			Height:       a.Height,
			DurationMs:   a.DurationMs,
		})
	}
	return wm
}

func NewUser(u *domain.User) User {
	return User{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}
