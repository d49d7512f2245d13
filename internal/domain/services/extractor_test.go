package services

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"chatguard-lab/internal/domain/models"
	"chatguard-lab/pkg/logger"
)

func testExtractor(t *testing.T) *EntityExtractor {
	t.Helper()
	return NewEntityExtractor(logger.NewDefault())
}

func TestExtractURLs(t *testing.T) {
	ee := testExtractor(t)
	result := ee.Extract("visit https://scam.example/offer or www.evil.net and bare-domain.com too")
	if len(result.URLs) != 3 {
		t.Fatalf("urls = %v, want 3 entries", result.URLs)
	}
}

func TestExtractPhoneNumbersDeduplicated(t *testing.T) {
	ee := testExtractor(t)
	// The same digits in two formats collapse to one entry
	result := ee.Extract("call 555 123 4567 or (555) 123-4567")
	if len(result.PhoneNumbers) != 1 {
		t.Fatalf("phone numbers = %v, want 1 entry", result.PhoneNumbers)
	}

	result = ee.Extract("call +44 20 7946 0958")
	if len(result.PhoneNumbers) != 1 {
		t.Fatalf("international number = %v, want 1 entry", result.PhoneNumbers)
	}
}

func TestExtractWalletAddresses(t *testing.T) {
	ee := testExtractor(t)
	text := "send BTC to bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq " +
		"or ETH to 0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	result := ee.Extract(text)
	if len(result.WalletAddresses) != 2 {
		t.Fatalf("wallets = %v, want 2 entries", result.WalletAddresses)
	}

	// The same address mentioned twice stays a single entry
	result = ee.Extract(text + " again bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq")
	if len(result.WalletAddresses) != 2 {
		t.Fatalf("repeated wallet not deduplicated: %v", result.WalletAddresses)
	}
}

func TestExtractEmailsMentionsHashtags(t *testing.T) {
	ee := testExtractor(t)
	result := ee.Extract("mail support@refund-dept.example.com, ping @helpdesk about #refund")
	if len(result.Emails) != 1 {
		t.Errorf("emails = %v", result.Emails)
	}
	// The domain part of the email must not count as a mention
	if len(result.Mentions) != 1 || result.Mentions[0] != "@helpdesk" {
		t.Errorf("mentions = %v", result.Mentions)
	}
	if len(result.Hashtags) != 1 || result.Hashtags[0] != "#refund" {
		t.Errorf("hashtags = %v", result.Hashtags)
	}

	result = ee.Extract("@lead please review")
	if len(result.Mentions) != 1 || result.Mentions[0] != "@lead" {
		t.Errorf("leading mention = %v", result.Mentions)
	}
}

func TestExtractMessageMergesPromotedEntities(t *testing.T) {
	ee := testExtractor(t)
	msg := &models.ParsedMessage{
		Content: "visit scam-site.com",
		Entities: models.MessageEntities{
			URLs:     []string{"https://hidden.example/x"},
			Mentions: []string{"@promoted"},
		},
	}

	result := ee.ExtractMessage(msg)
	wantURLs := []string{"https://hidden.example/x", "scam-site.com"}
	if !reflect.DeepEqual(result.URLs, wantURLs) {
		t.Fatalf("urls = %v, want %v", result.URLs, wantURLs)
	}
	if !reflect.DeepEqual(msg.Entities.URLs, wantURLs) {
		t.Fatalf("message urls = %v, want the merged list written back", msg.Entities.URLs)
	}
	if len(result.Mentions) != 1 || result.Mentions[0] != "@promoted" {
		t.Fatalf("mentions = %v", result.Mentions)
	}

	// A second pass over the already-merged message changes nothing
	before := msg.Entities
	ee.ExtractMessage(msg)
	if !reflect.DeepEqual(msg.Entities, before) {
		t.Fatalf("second pass changed entities: %+v vs %+v", msg.Entities, before)
	}
}

func TestExtractKeywords(t *testing.T) {
	ee := testExtractor(t)
	result := ee.Extract("Guaranteed returns! Act now, pay by gift card via Western Union")

	byCategory := make(map[models.KeywordCategory]int)
	for _, k := range result.Keywords {
		byCategory[k.Category]++
	}
	if byCategory[models.KeywordInvestment] != 1 {
		t.Errorf("investment keywords = %d, want 1", byCategory[models.KeywordInvestment])
	}
	if byCategory[models.KeywordUrgency] != 1 {
		t.Errorf("urgency keywords = %d, want 1", byCategory[models.KeywordUrgency])
	}
	if byCategory[models.KeywordFinancial] != 2 {
		t.Errorf("financial keywords = %d, want 2", byCategory[models.KeywordFinancial])
	}
}

func TestExtractAmounts(t *testing.T) {
	ee := testExtractor(t)
	result := ee.Extract("pay $1,500.50 or €200 or 0.5 BTC")
	if len(result.Amounts) != 3 {
		t.Fatalf("amounts = %+v, want 3 entries", result.Amounts)
	}

	if result.Amounts[0].Value != 1500.50 || result.Amounts[0].Currency != "USD" {
		t.Errorf("amount[0] = %+v", result.Amounts[0])
	}
	if result.Amounts[1].Value != 200 || result.Amounts[1].Currency != "EUR" {
		t.Errorf("amount[1] = %+v", result.Amounts[1])
	}
	if result.Amounts[2].Value != 0.5 || result.Amounts[2].Currency != "BTC" {
		t.Errorf("amount[2] = %+v", result.Amounts[2])
	}

	total := result.TotalAmount()
	if total != 1500.50+200+0.5 {
		t.Errorf("total = %v", total)
	}
}

func TestExtractAmountContextRuneSafe(t *testing.T) {
	ee := testExtractor(t)
	// The ±50-byte window lands mid-rune on both sides of the amount
	text := strings.Repeat("日", 20) + "$100" + strings.Repeat("日", 20)
	result := ee.Extract(text)
	if len(result.Amounts) != 1 {
		t.Fatalf("amounts = %+v, want 1 entry", result.Amounts)
	}
	if !utf8.ValidString(result.Amounts[0].Context) {
		t.Fatalf("context %q is not valid UTF-8", result.Amounts[0].Context)
	}
}

func TestExtractIdempotent(t *testing.T) {
	ee := testExtractor(t)
	text := "URGENT: send $500 to bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq, " +
		"call +44 20 7946 0958, details at https://scam.example #crypto @admin"

	first := ee.Extract(text)
	second := ee.Extract(text)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("extraction not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestExtractEmptyText(t *testing.T) {
	ee := testExtractor(t)
	result := ee.Extract("")
	if len(result.URLs) != 0 || len(result.Keywords) != 0 || len(result.Amounts) != 0 {
		t.Fatalf("empty text produced entities: %+v", result)
	}
	// Lists are initialized, not nil, so JSON output stays stable
	if result.URLs == nil || result.Keywords == nil {
		t.Fatal("entity lists should be empty, not nil")
	}
}
