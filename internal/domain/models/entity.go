package models

// KeywordCategory groups suspicious keywords by scam archetype
type KeywordCategory string

const (
	KeywordInvestment KeywordCategory = "investment"
	KeywordRomance    KeywordCategory = "romance"
	KeywordTechSupp   KeywordCategory = "tech_support"
	KeywordCrypto     KeywordCategory = "crypto"
	KeywordUrgency    KeywordCategory = "urgency"
	KeywordFinancial  KeywordCategory = "financial_instrument"
)

// KeywordMatch is one suspicious keyword found in a message body
type KeywordMatch struct {
	Keyword  string          `json:"keyword"`
	Category KeywordCategory `json:"category"`
}

// FinancialAmount is a parsed monetary value with the text window around it
type FinancialAmount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
	Context  string  `json:"context"`
}

// ExtractedEntities is the output of one entity-extraction pass over a
// single message body. Wallet addresses and phone numbers are deduplicated
// within their class; nothing is deduplicated across classes.
type ExtractedEntities struct {
	URLs            []string          `json:"urls"`
	PhoneNumbers    []string          `json:"phone_numbers"`
	Emails          []string          `json:"emails"`
	WalletAddresses []string          `json:"wallet_addresses"`
	Mentions        []string          `json:"mentions"`
	Hashtags        []string          `json:"hashtags"`
	Keywords        []KeywordMatch    `json:"keywords"`
	Amounts         []FinancialAmount `json:"amounts"`
}

// TotalAmount sums all matched financial amounts regardless of currency
func (e *ExtractedEntities) TotalAmount() float64 {
	var total float64
	for _, a := range e.Amounts {
		total += a.Value
	}
	return total
}

// MessageEntities narrows the extraction result to the lists persisted on
// the message row
func (e *ExtractedEntities) MessageEntities() MessageEntities {
	return MessageEntities{
		URLs:            e.URLs,
		PhoneNumbers:    e.PhoneNumbers,
		Emails:          e.Emails,
		WalletAddresses: e.WalletAddresses,
		Mentions:        e.Mentions,
		Hashtags:        e.Hashtags,
	}
}
