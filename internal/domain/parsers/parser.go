package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"chatguard-lab/internal/domain/models"
	"chatguard-lab/pkg/logger"
)

// Parser converts one platform's raw export bytes into canonical chat data
type Parser interface {
	// Platform identifies which platform this parser handles
	Platform() models.Platform

	// CanParse reports whether the bytes look like this platform's export.
	// It never returns an error; malformed input simply yields false.
	CanParse(data []byte, fileName, mimeType string) bool

	// Parse converts the export into canonical chat data. Per-message
	// failures are recovered locally into warnings; only structural
	// failures abort the parse.
	Parse(data []byte, fileName string) (*models.ParsedChatData, error)
}

// Registry holds one parser per known platform. It is a plain map built at
// startup and never mutated afterwards.
type Registry struct {
	parsers map[models.Platform]Parser
	logger  *logger.Logger
}

// NewRegistry creates an empty parser registry
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		parsers: make(map[models.Platform]Parser),
		logger:  log.WithComponent("parser-registry"),
	}
}

// Register adds a parser for its platform, replacing any previous one
func (r *Registry) Register(p Parser) {
	r.parsers[p.Platform()] = p
	r.logger.Debug().Str("platform", p.Platform().String()).Msg("parser registered")
}

// Get returns the parser for a platform, or ErrUnsupportedPlatform
func (r *Registry) Get(platform models.Platform) (Parser, error) {
	p, ok := r.parsers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedPlatform, platform)
	}
	return p, nil
}

// Platforms returns the registered platforms
func (r *Registry) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(r.parsers))
	for p := range r.parsers {
		out = append(out, p)
	}
	return out
}

// whatsappLinePattern matches the characteristic WhatsApp export line shape
// in either bracketed or dashed form
var whatsappLinePattern = regexp.MustCompile(
	`(?m)^\[?\d{1,2}/\d{1,2}/\d{4},? \d{1,2}:\d{2}`,
)

// telegramExportTypes is the fixed allow-list of Telegram export kinds
var telegramExportTypes = map[string]bool{
	"personal_chat":      true,
	"private_group":      true,
	"public_group":       true,
	"private_supergroup": true,
	"public_supergroup":  true,
	"private_channel":    true,
	"public_channel":     true,
	"saved_messages":     true,
	"bot_chat":           true,
}

// Detect classifies a file's originating platform. Rules apply in priority
// order: filename substring, characteristic plaintext line format in the
// first ~2KB, then a JSON top-level type field. When no rule matches it
// returns PlatformUnknown rather than guessing.
func Detect(data []byte, fileName string) models.Platform {
	lowerName := strings.ToLower(fileName)
	if strings.Contains(lowerName, "whatsapp") {
		return models.PlatformWhatsApp
	}
	if strings.Contains(lowerName, "telegram") {
		return models.PlatformTelegram
	}

	head := data
	if len(head) > 2048 {
		head = head[:2048]
	}

	// The line pattern itself disambiguates a leading '[' from a JSON array
	trimmed := bytes.TrimLeft(head, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] != '{' {
		if whatsappLinePattern.Match(head) {
			return models.PlatformWhatsApp
		}
	}

	if len(trimmed) > 0 && trimmed[0] == '{' {
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &probe); err == nil && telegramExportTypes[probe.Type] {
			return models.PlatformTelegram
		}
	}

	return models.PlatformUnknown
}

// normalizeSenderID lower-cases a sender name and replaces every
// non-alphanumeric rune with '_', giving a stable join key across parsers
func normalizeSenderID(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
