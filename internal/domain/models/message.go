package models

import (
	"time"
)

// MessageType classifies a canonical chat message
type MessageType string

const (
	MessageTypeText      MessageType = "text"
	MessageTypeImage     MessageType = "image"
	MessageTypeVideo     MessageType = "video"
	MessageTypeAudio     MessageType = "audio"
	MessageTypeVoiceNote MessageType = "voice_note"
	MessageTypeFile      MessageType = "file"
	MessageTypeDocument  MessageType = "document"
	MessageTypeSticker   MessageType = "sticker"
	MessageTypeLocation  MessageType = "location"
	MessageTypeContact   MessageType = "contact"
	MessageTypePoll      MessageType = "poll"
	MessageTypeSystem    MessageType = "system"
)

// Attachment describes a media or document file referenced by a message
type Attachment struct {
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// MessageEntities holds structured tokens extracted from a message body.
// Telegram exports carry some of these pre-typed; the extractor fills the rest.
type MessageEntities struct {
	URLs            []string `json:"urls,omitempty"`
	PhoneNumbers    []string `json:"phone_numbers,omitempty"`
	Emails          []string `json:"emails,omitempty"`
	WalletAddresses []string `json:"wallet_addresses,omitempty"`
	Mentions        []string `json:"mentions,omitempty"`
	Hashtags        []string `json:"hashtags,omitempty"`
}

// ParsedMessage is the canonical, platform-independent message record.
// Timestamp is never zero: parsers drop messages whose timestamp cannot be
// resolved and record a warning instead.
type ParsedMessage struct {
	ID          string          `json:"id" db:"id"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
	SenderID    string          `json:"sender_id" db:"sender_id"`
	SenderName  string          `json:"sender_name" db:"sender_name"`
	Content     string          `json:"content" db:"content"`
	Type        MessageType     `json:"type" db:"type"`
	IsEdited    bool            `json:"is_edited,omitempty" db:"is_edited"`
	IsDeleted   bool            `json:"is_deleted,omitempty" db:"is_deleted"`
	IsForwarded bool            `json:"is_forwarded,omitempty" db:"is_forwarded"`
	ReplyToID   string          `json:"reply_to_id,omitempty" db:"reply_to_id"`
	Attachments []Attachment    `json:"attachments,omitempty" db:"-"`
	Entities    MessageEntities `json:"entities" db:"-"`

	// Assigned during the analyzing stage, never mutated afterwards
	Risk *RiskAssessment `json:"risk,omitempty" db:"-"`
}

// IsMedia reports whether the message carries media content
func (m MessageType) IsMedia() bool {
	switch m {
	case MessageTypeImage, MessageTypeVideo, MessageTypeAudio, MessageTypeVoiceNote, MessageTypeSticker:
		return true
	}
	return false
}
