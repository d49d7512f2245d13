package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chatguard-lab/internal/domain/models"
	"chatguard-lab/pkg/logger"
)

const telegramMaxFileSize = 50 * 1024 * 1024

// telegramExport mirrors the top-level shape of a Telegram JSON export
type telegramExport struct {
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	ID       json.Number       `json:"id"`
	Messages []telegramMessage `json:"messages"`
}

// telegramMessage mirrors one message record. Text is RawMessage because the
// export encodes it as either a plain string or an array of text entities.
type telegramMessage struct {
	ID               json.Number     `json:"id"`
	Type             string          `json:"type"`
	Date             string          `json:"date"`
	DateUnix         json.Number     `json:"date_unixtime"`
	From             string          `json:"from"`
	FromID           string          `json:"from_id"`
	Actor            string          `json:"actor"`
	Action           string          `json:"action"`
	Text             json.RawMessage `json:"text"`
	Edited           string          `json:"edited"`
	ForwardedFrom    string          `json:"forwarded_from"`
	ReplyToMessageID json.Number     `json:"reply_to_message_id"`
	MediaType        string          `json:"media_type"`
	File             string          `json:"file"`
	FileName         string          `json:"file_name"`
	FileSize         json.Number     `json:"file_size"`
	MimeType         string          `json:"mime_type"`
	Photo            string          `json:"photo"`
	ContactInfo      json.RawMessage `json:"contact_information"`
	LocationInfo     json.RawMessage `json:"location_information"`
	Poll             json.RawMessage `json:"poll"`
	StickerEmoji     string          `json:"sticker_emoji"`
}

// telegramTextEntity is one fragment of a structured text array
type telegramTextEntity struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Href string `json:"href"`
}

// TelegramParser parses Telegram Desktop JSON exports. It validates the
// structural shape before transforming, so a malformed export fails whole
// rather than yielding partial output.
type TelegramParser struct {
	maxFileSize int64
	logger      *logger.Logger
}

// NewTelegramParser creates a new Telegram parser. maxFileSize bounds the
// input; zero or negative selects the default ceiling.
func NewTelegramParser(log *logger.Logger, maxFileSize int64) *TelegramParser {
	if maxFileSize <= 0 {
		maxFileSize = telegramMaxFileSize
	}
	return &TelegramParser{
		maxFileSize: maxFileSize,
		logger:      log.WithComponent("telegram-parser"),
	}
}

func (p *TelegramParser) Platform() models.Platform {
	return models.PlatformTelegram
}

// CanParse probes the JSON root for a known export type and an array-shaped
// messages field. Any JSON error yields false.
func (p *TelegramParser) CanParse(data []byte, fileName, mimeType string) bool {
	if int64(len(data)) > p.maxFileSize {
		return false
	}

	var probe struct {
		Type     string          `json:"type"`
		Messages json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	if !telegramExportTypes[probe.Type] {
		return false
	}
	trimmed := bytes.TrimLeft(probe.Messages, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// Parse converts a Telegram export into canonical chat data
func (p *TelegramParser) Parse(data []byte, fileName string) (*models.ParsedChatData, error) {
	var export telegramExport
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&export); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidFormat, err)
	}

	if err := validateTelegramExport(&export); err != nil {
		return nil, err
	}

	result := &models.ParsedChatData{
		Platform: models.PlatformTelegram,
		ChatName: export.Name,
		Messages: []models.ParsedMessage{},
		Warnings: []string{},
	}

	for i := range export.Messages {
		tm := &export.Messages[i]

		// Service entries with no attributable sender are dropped
		if tm.Type == "service" && tm.From == "" {
			continue
		}

		msg, err := p.transformMessage(tm)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("message %s: %v, dropped", tm.ID.String(), err))
			continue
		}
		result.Messages = append(result.Messages, *msg)
	}

	result.DeriveParticipants()
	result.DeriveStatistics()

	p.logger.Debug().
		Str("chat_name", export.Name).
		Int("messages", len(result.Messages)).
		Int("participants", len(result.Participants)).
		Int("warnings", len(result.Warnings)).
		Msg("telegram export parsed")

	return result, nil
}

// validateTelegramExport re-checks the structural shape: known export type
// plus a numeric id, string date, and numeric unix timestamp on each message
func validateTelegramExport(export *telegramExport) error {
	if !telegramExportTypes[export.Type] {
		return fmt.Errorf("%w: unknown export type %q", models.ErrInvalidFormat, export.Type)
	}
	if export.Messages == nil {
		return fmt.Errorf("%w: missing messages array", models.ErrInvalidFormat)
	}
	for i := range export.Messages {
		tm := &export.Messages[i]
		if _, err := tm.ID.Int64(); err != nil {
			return fmt.Errorf("%w: message %d has non-numeric id", models.ErrInvalidFormat, i)
		}
		if tm.Date == "" {
			return fmt.Errorf("%w: message %s has no date", models.ErrInvalidFormat, tm.ID.String())
		}
		if _, err := tm.DateUnix.Int64(); err != nil {
			return fmt.Errorf("%w: message %s has non-numeric unix timestamp", models.ErrInvalidFormat, tm.ID.String())
		}
	}
	return nil
}

// transformMessage converts one export record into a canonical message
func (p *TelegramParser) transformMessage(tm *telegramMessage) (*models.ParsedMessage, error) {
	unix, err := tm.DateUnix.Int64()
	if err != nil || unix <= 0 {
		return nil, fmt.Errorf("unresolvable timestamp")
	}

	content, entities := p.extractText(tm.Text)

	sender := tm.From
	if sender == "" {
		sender = tm.Actor
	}

	msg := &models.ParsedMessage{
		ID:          tm.ID.String(),
		Timestamp:   time.Unix(unix, 0).UTC(),
		SenderID:    normalizeSenderID(sender),
		SenderName:  sender,
		Content:     content,
		Type:        p.resolveType(tm),
		IsEdited:    tm.Edited != "",
		IsForwarded: tm.ForwardedFrom != "",
		ReplyToID:   tm.ReplyToMessageID.String(),
		Entities:    entities,
	}

	if msg.Content == "" {
		msg.Content = placeholderContent(msg.Type, tm)
	}

	if att := p.attachment(tm); att != nil {
		msg.Attachments = append(msg.Attachments, *att)
	}

	return msg, nil
}

// resolveType maps an export record to a canonical message type by fixed
// priority: service, media-type table, location/contact/poll, generic file,
// then text
func (p *TelegramParser) resolveType(tm *telegramMessage) models.MessageType {
	if tm.Type == "service" {
		return models.MessageTypeSystem
	}

	switch tm.MediaType {
	case "animation", "video_file":
		return models.MessageTypeVideo
	case "video_message", "voice_message":
		return models.MessageTypeVoiceNote
	case "audio_file":
		return models.MessageTypeAudio
	case "photo":
		return models.MessageTypeImage
	case "sticker":
		return models.MessageTypeSticker
	}
	if tm.Photo != "" {
		return models.MessageTypeImage
	}
	if tm.MediaType != "" {
		return models.MessageTypeFile
	}

	if len(tm.LocationInfo) > 0 && !bytes.Equal(bytes.TrimSpace(tm.LocationInfo), []byte("null")) {
		return models.MessageTypeLocation
	}
	if len(tm.ContactInfo) > 0 && !bytes.Equal(bytes.TrimSpace(tm.ContactInfo), []byte("null")) {
		return models.MessageTypeContact
	}
	if len(tm.Poll) > 0 && !bytes.Equal(bytes.TrimSpace(tm.Poll), []byte("null")) {
		return models.MessageTypePoll
	}

	if tm.File != "" {
		return models.MessageTypeFile
	}

	return models.MessageTypeText
}

// extractText flattens the text field, which is either a plain string or an
// array of entity fragments. Typed entities are promoted straight into the
// structured lists so pre-classified data survives independent of the regex
// pass.
func (p *TelegramParser) extractText(raw json.RawMessage) (string, models.MessageEntities) {
	var entities models.MessageEntities
	if len(raw) == 0 {
		return "", entities
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain, entities
	}

	var fragments []json.RawMessage
	if err := json.Unmarshal(raw, &fragments); err != nil {
		return "", entities
	}

	var b strings.Builder
	for _, frag := range fragments {
		var s string
		if err := json.Unmarshal(frag, &s); err == nil {
			b.WriteString(s)
			continue
		}

		var ent telegramTextEntity
		if err := json.Unmarshal(frag, &ent); err != nil {
			continue
		}
		b.WriteString(ent.Text)

		switch ent.Type {
		case "link":
			entities.URLs = append(entities.URLs, ent.Text)
		case "text_link":
			if ent.Href != "" {
				entities.URLs = append(entities.URLs, ent.Href)
			}
		case "mention":
			entities.Mentions = append(entities.Mentions, ent.Text)
		case "hashtag":
			entities.Hashtags = append(entities.Hashtags, ent.Text)
		case "phone_number":
			entities.PhoneNumbers = append(entities.PhoneNumbers, ent.Text)
		case "email":
			entities.Emails = append(entities.Emails, ent.Text)
		}
	}

	return b.String(), entities
}

// attachment builds the attachment record for file-bearing messages
func (p *TelegramParser) attachment(tm *telegramMessage) *models.Attachment {
	name := tm.FileName
	path := tm.File
	if path == "" && tm.Photo != "" {
		path = tm.Photo
	}
	if path == "" {
		return nil
	}
	if name == "" {
		if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
			name = path[idx+1:]
		} else {
			name = path
		}
	}

	att := &models.Attachment{
		FileName: name,
		MimeType: tm.MimeType,
	}
	if size, err := tm.FileSize.Int64(); err == nil {
		att.SizeBytes = size
	}
	return att
}

// placeholderContent synthesizes a short body for media-only messages
func placeholderContent(mtype models.MessageType, tm *telegramMessage) string {
	switch mtype {
	case models.MessageTypeImage:
		return "[photo]"
	case models.MessageTypeVideo:
		return "[video]"
	case models.MessageTypeVoiceNote:
		return "[voice message]"
	case models.MessageTypeAudio:
		return "[audio]"
	case models.MessageTypeSticker:
		if tm.StickerEmoji != "" {
			return "[sticker " + tm.StickerEmoji + "]"
		}
		return "[sticker]"
	case models.MessageTypeLocation:
		return "[location]"
	case models.MessageTypeContact:
		return "[contact]"
	case models.MessageTypePoll:
		return "[poll]"
	case models.MessageTypeFile:
		if tm.FileName != "" {
			return "[file " + tm.FileName + "]"
		}
		return "[file]"
	case models.MessageTypeSystem:
		if tm.Action != "" {
			return "[" + tm.Action + "]"
		}
		return "[service message]"
	}
	return ""
}
