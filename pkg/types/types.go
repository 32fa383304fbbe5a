package types

import "time"

// User is a registered BreezeChat account. UserID is immutable once
// allocated; every other field is mutable only by the owning session.
type User struct {
	UserID       string // 16-hex, process-unique
	Nickname     string // <=32 chars, unique when set
	Description  string // <=256 chars
	PasswordHash string // 64-hex salted digest; empty for email users until set
	Email        string // unique when set, RFC-basic form
	AvatarID     string // opaque blob id, empty if unset
}

// ChatSessionMember is a (session_id, user_id) membership row. A session has
// at least two members; a pair exists at most once.
type ChatSessionMember struct {
	SessionID string
	UserID    string
}

// MessageType discriminates the tagged payload union carried by a Message.
type MessageType string

const (
	MessageTypeString MessageType = "STRING"
	MessageTypeImage  MessageType = "IMAGE"
	MessageTypeFile   MessageType = "FILE"
	MessageTypeSpeech MessageType = "SPEECH"
)

// Message is a persisted chat message row. MessageID is immutable; rows are
// append-only from the storage consumer's perspective.
type Message struct {
	MessageID  string
	UserID     string // sender
	SessionID  string
	Type       MessageType
	CreateTime time.Time // second precision

	// Exactly one payload group is populated, selected by Type.
	Content string // STRING

	FileID   string // FILE, IMAGE, SPEECH; assigned by the storage consumer's blob offload
	FileName string // FILE only
	FileSize int64  // FILE only

	// RawContent carries the not-yet-offloaded blob bytes for FILE/IMAGE/SPEECH
	// from transmit time through the broker payload. The storage consumer
	// clears it after a successful PutSingleFile call; it is never persisted
	// to the relational row or the search index.
	RawContent []byte `json:"RawContent,omitempty"`
}

// UserInfo is the sender profile embedded in a MessageInfo envelope.
type UserInfo struct {
	UserID      string
	Nickname    string
	Description string
	AvatarID    string
	Avatar      []byte `json:"Avatar,omitempty"` // fetched File Core content for AvatarID; empty if AvatarID is unset
}

// MessageInfo is the canonical, fully-resolved envelope published to the
// broker and returned to the transmit caller. The exact bytes published on
// the queue are the exact bytes returned to the caller (see pkg/transmit).
type MessageInfo struct {
	MessageID     string
	ChatSessionID string
	Timestamp     int64 // unix seconds, assigned at transmit time
	Sender        UserInfo
	Message       Message
}

// VerificationCode is a Redis-style ephemeral (code_id -> code) entry with a
// bounded TTL, used by the email registration/login flows.
type VerificationCode struct {
	CodeID    string
	Code      string
	ExpiresAt time.Time
}

// Session maps a session_id to the user_id that owns it.
type Session struct {
	SessionID string
	UserID    string
}

// Status marks a user_id as currently logged in. A user has at most one
// concurrent Status entry; this is enforced by the login paths in pkg/user.
type Status struct {
	UserID string
}

// ChannelStatus is the data-model description of one pooled connection plus
// its in-flight busy_level (spec.md §3). pkg/balancer.Conn is the live
// heap-tracked struct that actually implements container/heap.Interface;
// ChannelStatus exists only to name the shape for documentation/tests that
// don't need heap machinery.
type ChannelStatus struct {
	Address   string // host:port
	BusyLevel int    // >= 0
}
