package services

import (
	"fmt"
	"time"
	"unicode"

	"chatguard-lab/internal/domain/models"
	"chatguard-lab/pkg/logger"
)

// Scoring weights. Fixed and hand-tuned; nothing derives them at runtime.
const (
	weightPerKeyword      = 10
	weightLargeAmount     = 20 // total amount > 1000
	weightMediumAmount    = 10 // total amount > 100
	weightPerWallet       = 15
	weightManyURLs        = 15 // more than 2
	weightFewURLs         = 5  // 1-2
	weightPerUrgency      = 8
	weightFileMessage     = 10
	weightColdSender      = 15
	weightPerPhone        = 5
	weightLongWithAmount  = 10
	weightShouting        = 10
	maxScore              = 100

	pWeightHighMeanRisk   = 30 // mean message risk > 50
	pWeightMedMeanRisk    = 15 // mean message risk > 25
	pWeightManyRisky      = 25 // >50% of messages above 30
	pWeightSomeRisky      = 15 // >25% of messages above 30
	pWeightNoIdentity     = 10
	pWeightVeryHighRate   = 20 // >50 messages/hour
	pWeightHighRate       = 10 // >20 messages/hour
	pWeightFewButLoud     = 15 // <10 messages but mean risk > 30
)

// RiskEngine computes deterministic, rule-based risk assessments at message
// and participant level. Assessments are additive-then-clamped; every rule
// that fires contributes one human-readable flag.
type RiskEngine struct {
	logger *logger.Logger
}

// NewRiskEngine creates a new risk engine
func NewRiskEngine(log *logger.Logger) *RiskEngine {
	return &RiskEngine{
		logger: log.WithComponent("risk-engine"),
	}
}

// ScoreMessage computes the risk assessment for one message. The sender may
// be nil when no participant context is available; sender-dependent rules
// are then skipped.
func (e *RiskEngine) ScoreMessage(msg *models.ParsedMessage, entities *models.ExtractedEntities, sender *models.ParsedParticipant) *models.RiskAssessment {
	score := 0
	flags := []string{}

	if n := len(entities.Keywords); n > 0 {
		score += weightPerKeyword * n
		flags = append(flags, fmt.Sprintf("contains %d suspicious keyword(s)", n))
	}

	if total := entities.TotalAmount(); total > 1000 {
		score += weightLargeAmount
		flags = append(flags, fmt.Sprintf("mentions large financial amount (%.2f)", total))
	} else if total > 100 {
		score += weightMediumAmount
		flags = append(flags, fmt.Sprintf("mentions financial amount (%.2f)", total))
	}

	if n := len(entities.WalletAddresses); n > 0 {
		score += weightPerWallet * n
		flags = append(flags, fmt.Sprintf("contains %d cryptocurrency wallet address(es)", n))
	}

	if n := len(entities.URLs); n > 2 {
		score += weightManyURLs
		flags = append(flags, fmt.Sprintf("contains %d URLs", n))
	} else if n >= 1 {
		score += weightFewURLs
		flags = append(flags, fmt.Sprintf("contains %d URL(s)", n))
	}

	if n := countUrgency(entities.Keywords); n > 0 {
		score += weightPerUrgency * n
		flags = append(flags, fmt.Sprintf("uses %d urgency/pressure word(s)", n))
	}

	if msg.Type == models.MessageTypeFile || msg.Type == models.MessageTypeDocument {
		score += weightFileMessage
		flags = append(flags, "file or document attachment")
	}

	if sender != nil && sender.MessageCount < 5 &&
		!sender.FirstMessage.IsZero() &&
		sender.LastMessage.Sub(sender.FirstMessage) <= time.Hour {
		score += weightColdSender
		flags = append(flags, "sender is new with low activity")
	}

	if n := len(entities.PhoneNumbers); n > 0 {
		score += weightPerPhone * n
		flags = append(flags, fmt.Sprintf("contains %d phone number(s)", n))
	}

	if len(msg.Content) > 500 && len(entities.Amounts) > 0 {
		score += weightLongWithAmount
		flags = append(flags, "long message combined with financial amount")
	}

	if isShouting(msg.Content) {
		score += weightShouting
		flags = append(flags, "mostly uppercase content")
	}

	return &models.RiskAssessment{
		Score: clampScore(score),
		Flags: flags,
	}
}

// ScoreParticipant aggregates one participant's statistics into a risk
// assessment. messageScores are the already-computed message-level scores
// for this participant; there is no other coupling between the two levels.
func (e *RiskEngine) ScoreParticipant(p *models.ParsedParticipant, messageScores []int) *models.RiskAssessment {
	score := 0
	flags := []string{}

	var mean float64
	riskyFraction := 0.0
	if len(messageScores) > 0 {
		sum, risky := 0, 0
		for _, s := range messageScores {
			sum += s
			if s > 30 {
				risky++
			}
		}
		mean = float64(sum) / float64(len(messageScores))
		riskyFraction = float64(risky) / float64(len(messageScores))
	}

	if mean > 50 {
		score += pWeightHighMeanRisk
		flags = append(flags, fmt.Sprintf("high mean message risk (%.1f)", mean))
	} else if mean > 25 {
		score += pWeightMedMeanRisk
		flags = append(flags, fmt.Sprintf("elevated mean message risk (%.1f)", mean))
	}

	if riskyFraction > 0.5 {
		score += pWeightManyRisky
		flags = append(flags, "majority of messages are high risk")
	} else if riskyFraction > 0.25 {
		score += pWeightSomeRisky
		flags = append(flags, "significant share of messages are high risk")
	}

	if p.PhoneNumber == "" && p.Username == "" {
		score += pWeightNoIdentity
		flags = append(flags, "no phone number or username on file")
	}

	if p.MessageCount >= 2 && p.LastMessage.After(p.FirstMessage) {
		hours := p.LastMessage.Sub(p.FirstMessage).Hours()
		rate := float64(p.MessageCount) / hours
		if rate > 50 {
			score += pWeightVeryHighRate
			flags = append(flags, fmt.Sprintf("very high message rate (%.1f/hour)", rate))
		} else if rate > 20 {
			score += pWeightHighRate
			flags = append(flags, fmt.Sprintf("high message rate (%.1f/hour)", rate))
		}
	}

	if p.MessageCount < 10 && mean > 30 {
		score += pWeightFewButLoud
		flags = append(flags, "few messages but high average risk")
	}

	return &models.RiskAssessment{
		Score: clampScore(score),
		Flags: flags,
	}
}

// countUrgency counts matched keywords in the urgency category
func countUrgency(keywords []models.KeywordMatch) int {
	n := 0
	for _, k := range keywords {
		if k.Category == models.KeywordUrgency {
			n++
		}
	}
	return n
}

// isShouting reports whether more than half the characters of a message over
// 50 characters are uppercase. All characters count toward the total, so
// digit- or punctuation-heavy content dilutes the ratio.
func isShouting(content string) bool {
	if len(content) <= 50 {
		return false
	}
	total, upper := 0, 0
	for _, r := range content {
		total++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return total > 0 && float64(upper)/float64(total) > 0.5
}

// clampScore clamps a score to [0, maxScore]
func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}
