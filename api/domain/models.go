package domain

import "time"

// PresenceWindow is how recently a user must have been seen to count as online.
const PresenceWindow = 30 * time.Second

// EditWindow is how long after creation a text message may still be edited.
const EditWindow = 5 * time.Minute

// Credential lifetimes. Refresh credentials are long-lived and hashed at
// rest; access credentials are short-lived signed tokens.
const (
	RefreshCredentialTTL = 30 * 24 * time.Hour
	AccessCredentialTTL  = 15 * time.Minute
)

type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// OnlineAt reports whether the user counts as online at t. Presence is
// derived from last_seen_at, never stored as a boolean.
func (u *User) OnlineAt(t time.Time) bool {
	return t.Sub(u.LastSeenAt) < PresenceWindow
}

type Conversation struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // direct, group, channel
	Name      *string   `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsChannel reports whether only admin members may post.
func (c *Conversation) IsChannel() bool {
	return c.Kind == ConversationKindChannel
}

type Membership struct {
	ConversationID    string    `json:"conversation_id"`
	UserID            string    `json:"user_id"`
	Role              string    `json:"role"` // admin, member
	LastReadMessageID *string   `json:"last_read_message_id,omitempty"`
	JoinedAt          time.Time `json:"joined_at"`
}

type Message struct {
	ID             string     `json:"id"` // client-chosen UUID, idempotency key
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Kind           string     `json:"kind"` // text, image, video, voice, system
	Content        *string    `json:"content,omitempty"`
	ReplyToID      *string    `json:"reply_to_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	DeletedAt      *time.Time `json:"-"`
}

// EditableAt reports whether the message may still be edited at t.
// Edits apply to text messages only, within EditWindow of creation, and
// never to tombstones. The sender check lives with the caller.
func (m *Message) EditableAt(t time.Time) bool {
	if m.Kind != MessageKindText || m.DeletedAt != nil {
		return false
	}
	return t.Sub(m.CreatedAt) < EditWindow
}

type Reaction struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

type Attachment struct {
	ID           string    `json:"id"`
	MessageID    *string   `json:"message_id,omitempty"` // null until linked by a send
	UploaderID   string    `json:"uploader_id"`
	URL          string    `json:"url"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	ThumbnailURL *string   `json:"thumbnail_url,omitempty"`
	Width        *int32    `json:"width,omitempty"`
	Height       *int32    `json:"height,omitempty"`
	DurationMs   *int32    `json:"duration_ms,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type RefreshCredential struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"` // SHA-256 hex digest, never the raw token
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type InviteToken struct {
	ConversationID string    `json:"conversation_id"`
	Token          string    `json:"token"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	ConversationKindDirect  = "direct"
	ConversationKindGroup   = "group"
	ConversationKindChannel = "channel"
)

const (
	MemberRoleAdmin  = "admin"
	MemberRoleMember = "member"
)

const (
	MessageKindText   = "text"
	MessageKindImage  = "image"
	MessageKindVideo  = "video"
	MessageKindVoice  = "voice"
	MessageKindSystem = "system"
)

// ValidMessageKind reports whether kind is accepted from clients. System
// messages are server-authored and rejected at the protocol edge.
func ValidMessageKind(kind string) bool {
	switch kind {
	case MessageKindText, MessageKindImage, MessageKindVideo, MessageKindVoice:
		return true
	}
	return false
}

// ValidConversationKind reports whether kind names a known conversation variant.
func ValidConversationKind(kind string) bool {
	switch kind {
	case ConversationKindDirect, ConversationKindGroup, ConversationKindChannel:
		return true
	}
	return false
}
