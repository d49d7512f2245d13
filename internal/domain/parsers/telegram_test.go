package parsers

import (
	"errors"
	"testing"
	"time"

	"chatguard-lab/internal/domain/models"
	"chatguard-lab/pkg/logger"
)

func TestTelegramCanParseSizeCeiling(t *testing.T) {
	export := []byte(`{"type": "personal_chat", "messages": []}`)

	p := NewTelegramParser(logger.NewDefault(), 8)
	if p.CanParse(export, "result.json", "application/json") {
		t.Error("input above the configured ceiling accepted")
	}

	p = NewTelegramParser(logger.NewDefault(), 0)
	if !p.CanParse(export, "result.json", "application/json") {
		t.Error("input under the default ceiling rejected")
	}
}

func TestTelegramParseBasicExport(t *testing.T) {
	export := `{
		"name": "Crypto Signals",
		"type": "private_group",
		"id": 12345,
		"messages": [
			{"id": 1, "type": "message", "date": "2024-02-01T10:15:00", "date_unixtime": "1706782500",
			 "from": "Alice", "from_id": "user100", "text": "hello everyone"},
			{"id": 2, "type": "message", "date": "2024-02-01T10:16:00", "date_unixtime": "1706782560",
			 "from": "Bob", "from_id": "user200", "text": "hi",
			 "reply_to_message_id": 1},
			{"id": 3, "type": "message", "date": "2024-02-01T10:17:00", "date_unixtime": "1706782620",
			 "from": "Alice", "from_id": "user100",
			 "media_type": "photo", "photo": "photos/photo_1.jpg", "text": ""}
		]
	}`

	p := NewTelegramParser(logger.NewDefault(), 0)
	if !p.CanParse([]byte(export), "result.json", "application/json") {
		t.Fatal("CanParse rejected a valid export")
	}

	result, err := p.Parse([]byte(export), "result.json")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if result.ChatName != "Crypto Signals" {
		t.Errorf("chat name = %q", result.ChatName)
	}
	if len(result.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(result.Messages))
	}

	first := result.Messages[0]
	if first.SenderID != "alice" || first.Content != "hello everyone" {
		t.Errorf("first message: sender=%q content=%q", first.SenderID, first.Content)
	}
	if !first.Timestamp.Equal(time.Unix(1706782500, 0).UTC()) {
		t.Errorf("timestamp = %v", first.Timestamp)
	}

	if result.Messages[1].ReplyToID != "1" {
		t.Errorf("reply_to_id = %q, want 1", result.Messages[1].ReplyToID)
	}

	photo := result.Messages[2]
	if photo.Type != models.MessageTypeImage {
		t.Errorf("photo message type = %s, want image", photo.Type)
	}
	if photo.Content != "[photo]" {
		t.Errorf("photo placeholder = %q", photo.Content)
	}
	if len(photo.Attachments) != 1 || photo.Attachments[0].FileName != "photo_1.jpg" {
		t.Errorf("photo attachments = %+v", photo.Attachments)
	}

	if len(result.Participants) != 2 {
		t.Errorf("expected 2 participants, got %d", len(result.Participants))
	}
}

func TestTelegramStructuredTextEntities(t *testing.T) {
	export := `{
		"name": "c", "type": "personal_chat", "id": 1,
		"messages": [
			{"id": 1, "type": "message", "date": "2024-02-01T10:15:00", "date_unixtime": "1706782500",
			 "from": "Alice", "from_id": "user100",
			 "text": [
				"check ",
				{"type": "link", "text": "https://scam.example/offer"},
				" from ",
				{"type": "mention", "text": "@scammer"},
				" ",
				{"type": "text_link", "text": "here", "href": "https://evil.example"},
				" ",
				{"type": "hashtag", "text": "#crypto"}
			 ]}
		]
	}`

	p := NewTelegramParser(logger.NewDefault(), 0)
	result, err := p.Parse([]byte(export), "result.json")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result.Messages))
	}

	msg := result.Messages[0]
	want := "check https://scam.example/offer from @scammer here #crypto"
	if msg.Content != want {
		t.Errorf("content = %q, want %q", msg.Content, want)
	}
	if len(msg.Entities.URLs) != 2 {
		t.Errorf("urls = %v, want 2 entries", msg.Entities.URLs)
	}
	if len(msg.Entities.Mentions) != 1 || msg.Entities.Mentions[0] != "@scammer" {
		t.Errorf("mentions = %v", msg.Entities.Mentions)
	}
	if len(msg.Entities.Hashtags) != 1 || msg.Entities.Hashtags[0] != "#crypto" {
		t.Errorf("hashtags = %v", msg.Entities.Hashtags)
	}
}

func TestTelegramServiceMessages(t *testing.T) {
	export := `{
		"name": "c", "type": "private_group", "id": 1,
		"messages": [
			{"id": 1, "type": "service", "date": "2024-02-01T10:15:00", "date_unixtime": "1706782500",
			 "actor": "Admin", "action": "create_group", "text": ""},
			{"id": 2, "type": "service", "date": "2024-02-01T10:16:00", "date_unixtime": "1706782560",
			 "from": "Alice", "action": "pin_message", "text": ""}
		]
	}`

	p := NewTelegramParser(logger.NewDefault(), 0)
	result, err := p.Parse([]byte(export), "result.json")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	// The actor-only service entry is dropped; the from-attributed one stays
	if len(result.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result.Messages))
	}
	msg := result.Messages[0]
	if msg.Type != models.MessageTypeSystem || msg.SenderID != "alice" {
		t.Errorf("service message: type=%s sender=%q", msg.Type, msg.SenderID)
	}
	if msg.Content != "[pin_message]" {
		t.Errorf("service placeholder = %q", msg.Content)
	}
}

func TestTelegramEditedAndForwardedFlags(t *testing.T) {
	export := `{
		"name": "c", "type": "personal_chat", "id": 1,
		"messages": [
			{"id": 1, "type": "message", "date": "2024-02-01T10:15:00", "date_unixtime": "1706782500",
			 "from": "Alice", "edited": "2024-02-01T10:20:00",
			 "forwarded_from": "Shady Channel", "text": "fwd"}
		]
	}`

	p := NewTelegramParser(logger.NewDefault(), 0)
	result, err := p.Parse([]byte(export), "result.json")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	msg := result.Messages[0]
	if !msg.IsEdited || !msg.IsForwarded {
		t.Errorf("flags: edited=%v forwarded=%v", msg.IsEdited, msg.IsForwarded)
	}
}

func TestTelegramInvalidExports(t *testing.T) {
	p := NewTelegramParser(logger.NewDefault(), 0)

	cases := []struct {
		name string
		data string
	}{
		{"not json", "[01/02/2024, 10:15:00] Alice: hello"},
		{"unknown type", `{"name": "c", "type": "mystery", "id": 1, "messages": []}`},
		{"missing messages", `{"name": "c", "type": "personal_chat", "id": 1}`},
		{"message without date", `{"name": "c", "type": "personal_chat", "id": 1,
			"messages": [{"id": 1, "type": "message", "date_unixtime": "1706782500", "from": "A", "text": "x"}]}`},
	}
	for _, tc := range cases {
		if _, err := p.Parse([]byte(tc.data), "result.json"); !errors.Is(err, models.ErrInvalidFormat) {
			t.Errorf("%s: expected ErrInvalidFormat, got %v", tc.name, err)
		}
	}
}

func TestTelegramZeroTimestampDropped(t *testing.T) {
	export := `{
		"name": "c", "type": "personal_chat", "id": 1,
		"messages": [
			{"id": 1, "type": "message", "date": "1970-01-01T00:00:00", "date_unixtime": "0",
			 "from": "Alice", "text": "ghost"},
			{"id": 2, "type": "message", "date": "2024-02-01T10:15:00", "date_unixtime": "1706782500",
			 "from": "Alice", "text": "real"}
		]
	}`

	p := NewTelegramParser(logger.NewDefault(), 0)
	result, err := p.Parse([]byte(export), "result.json")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(result.Messages) != 1 || result.Messages[0].Content != "real" {
		t.Fatalf("expected only the real message, got %d", len(result.Messages))
	}
	if len(result.Warnings) != 1 {
		t.Errorf("expected 1 warning, got %v", result.Warnings)
	}
}
