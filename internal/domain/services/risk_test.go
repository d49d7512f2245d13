package services

import (
	"strings"
	"testing"
	"time"

	"chatguard-lab/internal/domain/models"
	"chatguard-lab/pkg/logger"
)

func testRiskEngine(t *testing.T) *RiskEngine {
	t.Helper()
	return NewRiskEngine(logger.NewDefault())
}

func emptyEntities() *models.ExtractedEntities {
	return &models.ExtractedEntities{}
}

func TestScoreMessageClean(t *testing.T) {
	e := testRiskEngine(t)
	msg := &models.ParsedMessage{Content: "see you tomorrow", Type: models.MessageTypeText}

	risk := e.ScoreMessage(msg, emptyEntities(), nil)
	if risk.Score != 0 {
		t.Fatalf("clean message score = %d, want 0", risk.Score)
	}
	if len(risk.Flags) != 0 {
		t.Fatalf("clean message flags = %v, want none", risk.Flags)
	}
}

func TestScoreMessageIndividualRules(t *testing.T) {
	e := testRiskEngine(t)
	text := &models.ParsedMessage{Content: "x", Type: models.MessageTypeText}

	cases := []struct {
		name     string
		msg      *models.ParsedMessage
		entities *models.ExtractedEntities
		want     int
	}{
		{
			"one keyword",
			text,
			&models.ExtractedEntities{Keywords: []models.KeywordMatch{{Keyword: "gift card", Category: models.KeywordFinancial}}},
			weightPerKeyword,
		},
		{
			"large amount",
			text,
			&models.ExtractedEntities{Amounts: []models.FinancialAmount{{Value: 5000, Currency: "USD"}}},
			weightLargeAmount,
		},
		{
			"medium amount",
			text,
			&models.ExtractedEntities{Amounts: []models.FinancialAmount{{Value: 150, Currency: "USD"}}},
			weightMediumAmount,
		},
		{
			"one wallet",
			text,
			&models.ExtractedEntities{WalletAddresses: []string{"bc1qexample"}},
			weightPerWallet,
		},
		{
			"two urls",
			text,
			&models.ExtractedEntities{URLs: []string{"a.com", "b.com"}},
			weightFewURLs,
		},
		{
			"three urls",
			text,
			&models.ExtractedEntities{URLs: []string{"a.com", "b.com", "c.com"}},
			weightManyURLs,
		},
		{
			"file attachment",
			&models.ParsedMessage{Content: "x", Type: models.MessageTypeFile},
			emptyEntities(),
			weightFileMessage,
		},
		{
			"phone number",
			text,
			&models.ExtractedEntities{PhoneNumbers: []string{"555 123 4567"}},
			weightPerPhone,
		},
		{
			"shouting",
			&models.ParsedMessage{Content: strings.Repeat("SEND MONEY NOW ", 5), Type: models.MessageTypeText},
			emptyEntities(),
			weightShouting,
		},
	}
	for _, tc := range cases {
		risk := e.ScoreMessage(tc.msg, tc.entities, nil)
		if risk.Score != tc.want {
			t.Errorf("%s: score = %d, want %d (flags %v)", tc.name, risk.Score, tc.want, risk.Flags)
		}
		if len(risk.Flags) == 0 {
			t.Errorf("%s: rule fired without a flag", tc.name)
		}
	}
}

func TestScoreMessageUrgencyStacksWithKeywords(t *testing.T) {
	e := testRiskEngine(t)
	msg := &models.ParsedMessage{Content: "x", Type: models.MessageTypeText}
	entities := &models.ExtractedEntities{
		Keywords: []models.KeywordMatch{
			{Keyword: "urgent", Category: models.KeywordUrgency},
			{Keyword: "act now", Category: models.KeywordUrgency},
		},
	}

	risk := e.ScoreMessage(msg, entities, nil)
	want := 2*weightPerKeyword + 2*weightPerUrgency
	if risk.Score != want {
		t.Fatalf("score = %d, want %d", risk.Score, want)
	}
}

func TestScoreMessageColdSender(t *testing.T) {
	e := testRiskEngine(t)
	msg := &models.ParsedMessage{Content: "x", Type: models.MessageTypeText}
	base := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	cold := &models.ParsedParticipant{
		MessageCount: 2, FirstMessage: base, LastMessage: base.Add(10 * time.Minute),
	}
	if risk := e.ScoreMessage(msg, emptyEntities(), cold); risk.Score != weightColdSender {
		t.Errorf("cold sender score = %d, want %d", risk.Score, weightColdSender)
	}

	established := &models.ParsedParticipant{
		MessageCount: 200, FirstMessage: base, LastMessage: base.Add(72 * time.Hour),
	}
	if risk := e.ScoreMessage(msg, emptyEntities(), established); risk.Score != 0 {
		t.Errorf("established sender score = %d, want 0", risk.Score)
	}
}

func TestScoreMessageClamped(t *testing.T) {
	e := testRiskEngine(t)
	msg := &models.ParsedMessage{
		Content: strings.Repeat("SEND MONEY TO MY WALLET RIGHT NOW ", 20),
		Type:    models.MessageTypeFile,
	}
	entities := &models.ExtractedEntities{
		Keywords: []models.KeywordMatch{
			{Keyword: "urgent", Category: models.KeywordUrgency},
			{Keyword: "act now", Category: models.KeywordUrgency},
			{Keyword: "wire transfer", Category: models.KeywordFinancial},
			{Keyword: "guaranteed returns", Category: models.KeywordInvestment},
			{Keyword: "seed phrase", Category: models.KeywordCrypto},
		},
		WalletAddresses: []string{"a", "b", "c"},
		URLs:            []string{"a.com", "b.com", "c.com", "d.com"},
		PhoneNumbers:    []string{"1", "2"},
		Amounts:         []models.FinancialAmount{{Value: 99999, Currency: "USD"}},
	}

	risk := e.ScoreMessage(msg, entities, nil)
	if risk.Score != 100 {
		t.Fatalf("stacked rules should clamp at 100, got %d", risk.Score)
	}
}

func TestScoreParticipantRules(t *testing.T) {
	e := testRiskEngine(t)
	base := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	// Identified, unhurried, low-risk history scores zero
	calm := &models.ParsedParticipant{
		Username: "@alice", MessageCount: 30,
		FirstMessage: base, LastMessage: base.Add(100 * time.Hour),
	}
	scores := make([]int, 30)
	if risk := e.ScoreParticipant(calm, scores); risk.Score != 0 {
		t.Errorf("calm participant score = %d, want 0 (flags %v)", risk.Score, risk.Flags)
	}

	// Anonymous sender with high-risk history
	shady := &models.ParsedParticipant{
		MessageCount: 4,
		FirstMessage: base, LastMessage: base.Add(10 * time.Hour),
	}
	risk := e.ScoreParticipant(shady, []int{80, 70, 60, 90})
	want := pWeightHighMeanRisk + pWeightManyRisky + pWeightNoIdentity + pWeightFewButLoud
	if risk.Score != want {
		t.Errorf("shady participant score = %d, want %d (flags %v)", risk.Score, want, risk.Flags)
	}

	// Rate rules
	flooding := &models.ParsedParticipant{
		Username: "@bot", MessageCount: 120,
		FirstMessage: base, LastMessage: base.Add(2 * time.Hour),
	}
	risk = e.ScoreParticipant(flooding, make([]int, 120))
	if risk.Score != pWeightVeryHighRate {
		t.Errorf("flooding participant score = %d, want %d (flags %v)", risk.Score, pWeightVeryHighRate, risk.Flags)
	}
}

func TestScoreParticipantEmptyHistory(t *testing.T) {
	e := testRiskEngine(t)
	p := &models.ParsedParticipant{Username: "@alice", MessageCount: 0}
	risk := e.ScoreParticipant(p, nil)
	if risk.Score != 0 {
		t.Fatalf("empty history score = %d, want 0 (flags %v)", risk.Score, risk.Flags)
	}
}

func TestIsShouting(t *testing.T) {
	if isShouting("SHORT YELL") {
		t.Error("messages at or under 50 chars never count as shouting")
	}
	if !isShouting(strings.Repeat("HELLO WORLD ", 6)) {
		t.Error("long uppercase content should count as shouting")
	}
	if isShouting(strings.Repeat("hello world ", 6)) {
		t.Error("long lowercase content should not count as shouting")
	}
	// Every character counts toward the ratio, so a few uppercase letters in
	// digit-heavy content do not qualify
	if isShouting("CALL " + strings.Repeat("5", 60)) {
		t.Error("digit-heavy content should dilute the uppercase ratio")
	}
}
