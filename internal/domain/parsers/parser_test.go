package parsers

import (
	"errors"
	"testing"

	"chatguard-lab/internal/domain/models"
	"chatguard-lab/pkg/logger"
)

func TestDetect(t *testing.T) {
	whatsappText := "[01/02/2024, 10:15:00] Alice: hello\n[01/02/2024, 10:16:00] Bob: hi"
	telegramJSON := `{"name": "c", "type": "personal_chat", "id": 1, "messages": []}`

	cases := []struct {
		name     string
		data     string
		fileName string
		want     models.Platform
	}{
		{"whatsapp filename wins", telegramJSON, "WhatsApp Chat.json", models.PlatformWhatsApp},
		{"telegram filename wins", whatsappText, "telegram_export.txt", models.PlatformTelegram},
		{"whatsapp line format", whatsappText, "chat.txt", models.PlatformWhatsApp},
		{"whatsapp dashed format", "01/02/2024, 10:15 - Alice: hi", "chat.txt", models.PlatformWhatsApp},
		{"telegram json type", telegramJSON, "result.json", models.PlatformTelegram},
		{"unknown json type", `{"type": "mystery"}`, "result.json", models.PlatformUnknown},
		{"plain prose", "dear diary, nothing matched today", "notes.txt", models.PlatformUnknown},
		{"empty file", "", "chat.txt", models.PlatformUnknown},
	}
	for _, tc := range cases {
		if got := Detect([]byte(tc.data), tc.fileName); got != tc.want {
			t.Errorf("%s: Detect = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestNormalizeSenderID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Alice", "alice"},
		{"Bob Smith", "bob_smith"},
		{"  John  Doe  ", "john__doe"},
		{"+1 (555) 123-4567", "_1__555__123_4567"},
		{"Ünïcode Näme", "_n_code_n_me"},
	}
	for _, tc := range cases {
		if got := normalizeSenderID(tc.in); got != tc.want {
			t.Errorf("normalizeSenderID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	log := logger.NewDefault()
	r := NewRegistry(log)
	r.Register(NewWhatsAppParser(log, 0))

	if _, err := r.Get(models.PlatformWhatsApp); err != nil {
		t.Fatalf("Get(whatsapp) error: %v", err)
	}
	if _, err := r.Get(models.PlatformTelegram); !errors.Is(err, models.ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
	if got := len(r.Platforms()); got != 1 {
		t.Fatalf("Platforms() length = %d, want 1", got)
	}
}
