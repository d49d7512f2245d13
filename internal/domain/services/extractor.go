package services

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"chatguard-lab/internal/domain/models"
	"chatguard-lab/pkg/logger"
)

// EntityExtractor pulls structured entities out of message text using
// regex patterns and a fixed suspicious-keyword list. It is pure and
// stateless: the same input always yields identical output lists.
type EntityExtractor struct {
	urlPattern      *regexp.Regexp
	phonePatterns   []*regexp.Regexp
	emailPattern    *regexp.Regexp
	walletPatterns  []*regexp.Regexp
	mentionPattern  *regexp.Regexp
	hashtagPattern  *regexp.Regexp
	prefixedAmount  *regexp.Regexp
	suffixedAmount  *regexp.Regexp
	keywordGroups   []keywordGroup
	logger          *logger.Logger
}

type keywordGroup struct {
	category models.KeywordCategory
	keywords []string
}

// NewEntityExtractor creates a new entity extractor
func NewEntityExtractor(log *logger.Logger) *EntityExtractor {
	ee := &EntityExtractor{
		logger: log.WithComponent("entity-extractor"),
	}
	ee.compilePatterns()
	ee.loadKeywords()
	return ee
}

// compilePatterns compiles regex patterns for entity extraction
func (ee *EntityExtractor) compilePatterns() {
	// URL: protocol-qualified, www-prefixed, or bare domain with a common TLD
	ee.urlPattern = regexp.MustCompile(
		`(?i)\b(?:https?://|www\.)[^\s<>"']+|\b[a-z0-9][a-z0-9-]{0,61}(?:\.[a-z0-9][a-z0-9-]{0,61})*\.(?:com|net|org|io|co|me|xyz|info|biz|app|link)(?:/[^\s<>"']*)?\b`,
	)

	// Phone numbers: international, US, and generic digit groupings
	ee.phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\+\d{1,3}[\s.-]?\(?\d{1,4}\)?(?:[\s.-]?\d{2,4}){2,4}`),
		regexp.MustCompile(`\(?\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}`),
		regexp.MustCompile(`\b\d{3,4}[\s.-]\d{3,4}[\s.-]\d{3,4}\b`),
	}

	// Email address
	ee.emailPattern = regexp.MustCompile(
		`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`,
	)

	// Cryptocurrency wallet addresses: Bitcoin legacy/Bech32, Ethereum,
	// Litecoin, Dogecoin
	ee.walletPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bbc1[a-z0-9]{25,59}\b`),
		regexp.MustCompile(`\b[13][a-km-zA-HJ-NP-Z1-9]{25,34}\b`),
		regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`),
		regexp.MustCompile(`\bltc1[a-z0-9]{25,59}\b`),
		regexp.MustCompile(`\b[LM][a-km-zA-HJ-NP-Z1-9]{26,33}\b`),
		regexp.MustCompile(`\bD[5-9A-HJ-NP-U][1-9A-HJ-NP-Za-km-z]{25,34}\b`),
	}

	// A mention only counts when the @ does not continue a preceding token,
	// so the domain part of an email address never matches
	ee.mentionPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9_@.])(@[A-Za-z0-9_]{2,32})\b`)
	ee.hashtagPattern = regexp.MustCompile(`#[A-Za-z0-9_]+\b`)

	// Financial amounts: currency-symbol-prefixed and crypto-unit-suffixed
	ee.prefixedAmount = regexp.MustCompile(`[$€£]\s?\d[\d,]*(?:\.\d+)?`)
	ee.suffixedAmount = regexp.MustCompile(`(?i)\b\d[\d,]*(?:\.\d+)?\s?(?:BTC|ETH)\b`)
}

// loadKeywords loads the suspicious-keyword list grouped by scam archetype.
// Groups are an ordered slice, not a map, so extraction output order is
// deterministic.
func (ee *EntityExtractor) loadKeywords() {
	ee.keywordGroups = []keywordGroup{
		{models.KeywordInvestment, []string{
			"guaranteed returns", "double your money", "risk-free investment",
			"passive income", "trading signals", "investment opportunity",
			"high yield", "get rich", "insider tip",
		}},
		{models.KeywordRomance, []string{
			"my darling", "soulmate", "true love", "lonely",
			"trust me", "our future together", "never felt this way",
		}},
		{models.KeywordTechSupp, []string{
			"your account has been", "suspicious activity", "verify your account",
			"tech support", "remote access", "anydesk", "teamviewer",
			"microsoft support", "refund department",
		}},
		{models.KeywordCrypto, []string{
			"airdrop", "seed phrase", "private key", "crypto giveaway",
			"mining pool", "pump signal", "defi yield", "token presale",
		}},
		{models.KeywordUrgency, []string{
			"urgent", "act now", "immediately", "last chance", "limited time",
			"expires today", "final warning", "don't tell anyone", "hurry",
		}},
		{models.KeywordFinancial, []string{
			"wire transfer", "gift card", "western union", "moneygram",
			"prepaid card", "escrow", "cashier's check", "bank transfer",
		}},
	}
}

// Extract runs a full extraction pass over one message body
func (ee *EntityExtractor) Extract(text string) *models.ExtractedEntities {
	result := &models.ExtractedEntities{
		URLs:            []string{},
		PhoneNumbers:    []string{},
		Emails:          []string{},
		WalletAddresses: []string{},
		Mentions:        []string{},
		Hashtags:        []string{},
		Keywords:        []models.KeywordMatch{},
		Amounts:         []models.FinancialAmount{},
	}
	if text == "" {
		return result
	}

	result.URLs = append(result.URLs, ee.urlPattern.FindAllString(text, -1)...)

	// Phone numbers are deduplicated within the class
	seenPhones := make(map[string]bool)
	for _, p := range ee.phonePatterns {
		for _, match := range p.FindAllString(text, -1) {
			key := digitsOnly(match)
			if len(key) < 7 || seenPhones[key] {
				continue
			}
			seenPhones[key] = true
			result.PhoneNumbers = append(result.PhoneNumbers, strings.TrimSpace(match))
		}
	}

	result.Emails = append(result.Emails, ee.emailPattern.FindAllString(text, -1)...)

	// Wallet addresses are deduplicated across the wallet patterns
	seenWallets := make(map[string]bool)
	for _, p := range ee.walletPatterns {
		for _, match := range p.FindAllString(text, -1) {
			if seenWallets[match] {
				continue
			}
			seenWallets[match] = true
			result.WalletAddresses = append(result.WalletAddresses, match)
		}
	}

	for _, m := range ee.mentionPattern.FindAllStringSubmatch(text, -1) {
		result.Mentions = append(result.Mentions, m[1])
	}
	result.Hashtags = append(result.Hashtags, ee.hashtagPattern.FindAllString(text, -1)...)

	ee.extractKeywords(text, result)
	ee.extractAmounts(text, result)

	return result
}

// ExtractMessage runs a full extraction pass over one message and folds the
// result into the message's entity lists, keeping anything a parser already
// promoted there. The merged lists are written back onto the message so they
// survive persistence; the full extraction result, keywords and amounts
// included, is returned for scoring. Calling it again on a message that
// already carries merged lists is a no-op on the lists.
func (ee *EntityExtractor) ExtractMessage(msg *models.ParsedMessage) *models.ExtractedEntities {
	result := ee.Extract(msg.Content)
	result.URLs = mergeUnique(msg.Entities.URLs, result.URLs)
	result.PhoneNumbers = mergeUnique(msg.Entities.PhoneNumbers, result.PhoneNumbers)
	result.Emails = mergeUnique(msg.Entities.Emails, result.Emails)
	result.WalletAddresses = mergeUnique(msg.Entities.WalletAddresses, result.WalletAddresses)
	result.Mentions = mergeUnique(msg.Entities.Mentions, result.Mentions)
	result.Hashtags = mergeUnique(msg.Entities.Hashtags, result.Hashtags)
	msg.Entities = result.MessageEntities()
	return result
}

// mergeUnique appends extracted entries after the promoted ones, dropping
// exact duplicates while preserving order
func mergeUnique(promoted, extracted []string) []string {
	out := make([]string, 0, len(promoted)+len(extracted))
	seen := make(map[string]bool, len(promoted)+len(extracted))
	for _, list := range [][]string{promoted, extracted} {
		for _, s := range list {
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// extractKeywords matches the fixed suspicious-keyword list, one entry per
// matched keyword
func (ee *EntityExtractor) extractKeywords(text string, result *models.ExtractedEntities) {
	lower := strings.ToLower(text)
	for _, group := range ee.keywordGroups {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				result.Keywords = append(result.Keywords, models.KeywordMatch{
					Keyword:  kw,
					Category: group.category,
				})
			}
		}
	}
}

// extractAmounts parses financial amounts with a ±50-character text window
func (ee *EntityExtractor) extractAmounts(text string, result *models.ExtractedEntities) {
	for _, loc := range ee.prefixedAmount.FindAllStringIndex(text, -1) {
		match := text[loc[0]:loc[1]]
		// Symbols € and £ are multi-byte; resolve from the first rune
		currency := "USD"
		for _, r := range match {
			currency = currencyForSymbol(string(r))
			break
		}
		value := parseAmountValue(strings.TrimLeft(match, "$€£ "))
		result.Amounts = append(result.Amounts, models.FinancialAmount{
			Value:    value,
			Currency: currency,
			Context:  contextWindow(text, loc[0], loc[1], 50),
		})
	}

	for _, loc := range ee.suffixedAmount.FindAllStringIndex(text, -1) {
		match := text[loc[0]:loc[1]]
		upper := strings.ToUpper(match)
		currency := "BTC"
		if strings.HasSuffix(upper, "ETH") {
			currency = "ETH"
		}
		numeric := strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(upper, "BTC"), "ETH"))
		result.Amounts = append(result.Amounts, models.FinancialAmount{
			Value:    parseAmountValue(numeric),
			Currency: currency,
			Context:  contextWindow(text, loc[0], loc[1], 50),
		})
	}
}

func currencyForSymbol(sym string) string {
	switch sym {
	case "€":
		return "EUR"
	case "£":
		return "GBP"
	default:
		return "USD"
	}
}

func parseAmountValue(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// contextWindow returns up to pad bytes either side of [start,end), widened
// to rune boundaries so the window never splits a multi-byte character
func contextWindow(text string, start, end, pad int) string {
	from := start - pad
	if from < 0 {
		from = 0
	}
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	to := end + pad
	if to > len(text) {
		to = len(text)
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	return text[from:to]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
