package parsers

import (
	"archive/zip"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"chatguard-lab/internal/domain/models"
	"chatguard-lab/pkg/logger"
)

const whatsappMaxFileSize = 50 * 1024 * 1024

const deletedPlaceholder = "[message deleted]"

// Line patterns, matched in order. A line matching none of them is a
// continuation of the open message, or an unparsed-line warning when no
// message is open.
var (
	// [01/02/2024, 10:15:00] Alice: hello
	waStandardLine = regexp.MustCompile(
		`^\[(\d{1,2}/\d{1,2}/\d{4}),? (\d{1,2}:\d{2}(?::\d{2})?)\] ([^:]+): (.*)$`,
	)
	// 01/02/2024, 10:15 - Alice: hello
	waAlternativeLine = regexp.MustCompile(
		`^(\d{1,2}/\d{1,2}/\d{4}),? (\d{1,2}:\d{2}(?::\d{2})?) - ([^:]+): (.*)$`,
	)
	// [01/02/2024, 10:15:00] Alice joined using this group's invite link
	waSystemLine = regexp.MustCompile(
		`^\[(\d{1,2}/\d{1,2}/\d{4}),? (\d{1,2}:\d{2}(?::\d{2})?)\] (.*)$`,
	)

	waDeletedPattern  = regexp.MustCompile(`(?i)(?:this message was deleted|you deleted this message)`)
	waAttachedPattern = regexp.MustCompile(`([^\s]+\.\w{2,4}) \(file attached\)`)
)

// mediaMarkers map media-omission markers to message types, checked in order
var waMediaMarkers = []struct {
	marker string
	mtype  models.MessageType
}{
	{"image omitted", models.MessageTypeImage},
	{"video omitted", models.MessageTypeVideo},
	{"voice message omitted", models.MessageTypeVoiceNote},
	{"audio omitted", models.MessageTypeAudio},
	{"document omitted", models.MessageTypeDocument},
	{"sticker omitted", models.MessageTypeSticker},
	{"gif omitted", models.MessageTypeVideo},
	{"<media omitted>", models.MessageTypeImage},
}

var waSystemKeywords = []string{
	"joined", "left", "added", "removed",
	"changed the subject", "changed this group's description",
	"changed the group description", "created group",
	"changed their phone number",
}

var waMediaExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".mp4": true, ".mov": true, ".3gp": true,
	".mp3": true, ".opus": true, ".m4a": true, ".ogg": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
}

// WhatsAppParser parses WhatsApp text exports, plain or zipped, with a
// line-by-line state machine that folds continuation lines into the open
// message.
type WhatsAppParser struct {
	maxFileSize int64
	logger      *logger.Logger
}

// NewWhatsAppParser creates a new WhatsApp parser. maxFileSize bounds the
// input; zero or negative selects the default ceiling.
func NewWhatsAppParser(log *logger.Logger, maxFileSize int64) *WhatsAppParser {
	if maxFileSize <= 0 {
		maxFileSize = whatsappMaxFileSize
	}
	return &WhatsAppParser{
		maxFileSize: maxFileSize,
		logger:      log.WithComponent("whatsapp-parser"),
	}
}

func (p *WhatsAppParser) Platform() models.Platform {
	return models.PlatformWhatsApp
}

// CanParse checks the extension and size ceiling; for zip input it scans
// archive entries for a chat transcript.
func (p *WhatsAppParser) CanParse(data []byte, fileName, mimeType string) bool {
	if int64(len(data)) > p.maxFileSize {
		return false
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".txt":
		return true
	case ".zip":
		reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return false
		}
		for _, f := range reader.File {
			name := strings.ToLower(f.Name)
			if strings.Contains(name, "whatsapp") || strings.Contains(name, "chat") ||
				strings.HasSuffix(name, ".txt") {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Parse converts a WhatsApp export into canonical chat data
func (p *WhatsAppParser) Parse(data []byte, fileName string) (*models.ParsedChatData, error) {
	transcript := data
	mediaSizes := map[string]int64{}

	if strings.EqualFold(filepath.Ext(fileName), ".zip") {
		var err error
		transcript, mediaSizes, err = p.extractZip(data)
		if err != nil {
			return nil, err
		}
	}

	result := &models.ParsedChatData{
		Platform: models.PlatformWhatsApp,
		Messages: []models.ParsedMessage{},
		Warnings: []string{},
	}

	var open *models.ParsedMessage
	lineNo := 0

	scanner := bufio.NewScanner(bytes.NewReader(transcript))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		line = strings.TrimPrefix(line, "\uFEFF")
		if strings.TrimSpace(line) == "" && open == nil {
			continue
		}

		if m := waStandardLine.FindStringSubmatch(line); m != nil {
			p.finishMessage(result, open, mediaSizes)
			open = p.startMessage(result, m[1], m[2], m[3], m[4], lineNo)
			continue
		}
		if m := waAlternativeLine.FindStringSubmatch(line); m != nil {
			p.finishMessage(result, open, mediaSizes)
			open = p.startMessage(result, m[1], m[2], m[3], m[4], lineNo)
			continue
		}
		if m := waSystemLine.FindStringSubmatch(line); m != nil {
			p.finishMessage(result, open, mediaSizes)
			open = p.startSystemMessage(result, m[1], m[2], m[3], lineNo)
			continue
		}

		// Continuation of a multi-line message body
		if open != nil {
			open.Content += "\n" + line
			continue
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: unparsed line skipped", lineNo))
	}
	p.finishMessage(result, open, mediaSizes)

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidFormat, err)
	}

	result.DeriveParticipants()
	result.DeriveStatistics()

	p.logger.Debug().
		Int("messages", len(result.Messages)).
		Int("participants", len(result.Participants)).
		Int("warnings", len(result.Warnings)).
		Msg("whatsapp export parsed")

	return result, nil
}

// startMessage opens a new sender message; a nil return records a warning
func (p *WhatsAppParser) startMessage(result *models.ParsedChatData, date, clock, sender, content string, lineNo int) *models.ParsedMessage {
	ts, err := parseWhatsAppTimestamp(date, clock)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: %v, message dropped", lineNo, err))
		return nil
	}

	sender = strings.TrimSpace(sender)
	return &models.ParsedMessage{
		Timestamp:  ts,
		SenderID:   normalizeSenderID(sender),
		SenderName: sender,
		Content:    content,
	}
}

// startSystemMessage opens a message with no sender
func (p *WhatsAppParser) startSystemMessage(result *models.ParsedChatData, date, clock, content string, lineNo int) *models.ParsedMessage {
	ts, err := parseWhatsAppTimestamp(date, clock)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: %v, message dropped", lineNo, err))
		return nil
	}

	return &models.ParsedMessage{
		Timestamp: ts,
		Content:   content,
		Type:      models.MessageTypeSystem,
	}
}

// finishMessage classifies and appends the open message, if any
func (p *WhatsAppParser) finishMessage(result *models.ParsedChatData, msg *models.ParsedMessage, mediaSizes map[string]int64) {
	if msg == nil {
		return
	}

	if msg.Type == "" {
		msg.Type = classifyWhatsAppContent(msg.Content)
	}

	// Deletion is flagged after type classification; the already-assigned
	// type stays
	if waDeletedPattern.MatchString(msg.Content) {
		msg.IsDeleted = true
		msg.Content = deletedPlaceholder
	}

	for _, m := range waAttachedPattern.FindAllStringSubmatch(msg.Content, -1) {
		att := models.Attachment{FileName: m[1]}
		if size, ok := mediaSizes[strings.ToLower(m[1])]; ok {
			att.SizeBytes = size
		}
		msg.Attachments = append(msg.Attachments, att)
	}

	msg.ID = strconv.Itoa(len(result.Messages) + 1)
	result.Messages = append(result.Messages, *msg)
}

// classifyWhatsAppContent derives the message type by scanning content for
// fixed markers in priority order
func classifyWhatsAppContent(content string) models.MessageType {
	lower := strings.ToLower(content)

	for _, m := range waMediaMarkers {
		if strings.Contains(lower, m.marker) {
			return m.mtype
		}
	}
	if strings.Contains(lower, "location:") || strings.Contains(lower, "live location shared") {
		return models.MessageTypeLocation
	}
	if strings.Contains(lower, ".vcf") || strings.Contains(lower, "contact card") {
		return models.MessageTypeContact
	}
	if strings.Contains(lower, "voice message") || strings.Contains(lower, "voice call") {
		return models.MessageTypeVoiceNote
	}
	if strings.Contains(lower, "sticker") {
		return models.MessageTypeSticker
	}
	for _, kw := range waSystemKeywords {
		if strings.Contains(lower, kw) {
			return models.MessageTypeSystem
		}
	}
	return models.MessageTypeText
}

// extractZip pulls the chat transcript out of a zipped export and indexes
// recognized media entries by lower-cased filename for attachment sizing
func (p *WhatsAppParser) extractZip(data []byte) ([]byte, map[string]int64, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: not a zip archive: %v", models.ErrInvalidFormat, err)
	}

	mediaSizes := make(map[string]int64)
	var transcript []byte

	for _, f := range reader.File {
		name := strings.ToLower(filepath.Base(f.Name))
		ext := filepath.Ext(name)

		if transcript == nil && ext == ".txt" {
			rc, err := f.Open()
			if err != nil {
				return nil, nil, fmt.Errorf("%w: failed to open transcript: %v", models.ErrInvalidFormat, err)
			}
			transcript, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, nil, fmt.Errorf("%w: failed to read transcript: %v", models.ErrInvalidFormat, err)
			}
			continue
		}

		if waMediaExtensions[ext] {
			mediaSizes[name] = int64(f.UncompressedSize64)
		}
	}

	if transcript == nil {
		return nil, nil, fmt.Errorf("%w: no chat transcript in archive", models.ErrInvalidFormat)
	}
	return transcript, mediaSizes, nil
}

// parseWhatsAppTimestamp parses DD/MM/YYYY with H:MM[:SS]; seconds default
// to zero when absent
func parseWhatsAppTimestamp(date, clock string) (time.Time, error) {
	dateParts := strings.Split(date, "/")
	if len(dateParts) != 3 {
		return time.Time{}, fmt.Errorf("unparseable date %q", date)
	}
	day, err1 := strconv.Atoi(dateParts[0])
	month, err2 := strconv.Atoi(dateParts[1])
	year, err3 := strconv.Atoi(dateParts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q", date)
	}

	clockParts := strings.Split(clock, ":")
	if len(clockParts) < 2 {
		return time.Time{}, fmt.Errorf("unparseable time %q", clock)
	}
	hour, err1 := strconv.Atoi(clockParts[0])
	minute, err2 := strconv.Atoi(clockParts[1])
	if err1 != nil || err2 != nil {
		return time.Time{}, fmt.Errorf("unparseable time %q", clock)
	}
	second := 0
	if len(clockParts) == 3 {
		if second, err1 = strconv.Atoi(clockParts[2]); err1 != nil {
			return time.Time{}, fmt.Errorf("unparseable time %q", clock)
		}
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("date %q out of range", date)
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}
