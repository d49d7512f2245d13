package models

import (
	"time"
)

// DateRange spans the first and last message timestamps of a chat
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ChatStatistics are aggregate figures derived from the final message list
type ChatStatistics struct {
	TotalMessages    int                 `json:"total_messages"`
	ByType           map[MessageType]int `json:"by_type"`
	ByParticipant    map[string]int      `json:"by_participant"`
	PerDay           map[string]int      `json:"per_day"` // key: YYYY-MM-DD
	MostActiveHours  []int               `json:"most_active_hours"`
	AvgContentLength float64             `json:"avg_content_length"`
	URLMessages      int                 `json:"url_messages"`
	MediaMessages    int                 `json:"media_messages"`
	FileMessages     int                 `json:"file_messages"`
	DateRange        DateRange           `json:"date_range"`
}

// ParsedChatData is the canonical result every parser must produce
type ParsedChatData struct {
	Platform     Platform            `json:"platform"`
	ChatName     string              `json:"chat_name,omitempty"`
	Messages     []ParsedMessage     `json:"messages"`
	Participants []ParsedParticipant `json:"participants"`
	Statistics   ChatStatistics      `json:"statistics"`
	Warnings     []string            `json:"warnings,omitempty"`
}

// DeriveParticipants rebuilds the participant list from the final message
// list: first-seen order, then a second pass recomputing counts and
// first/last timestamps so out-of-order messages cannot skew them.
func (d *ParsedChatData) DeriveParticipants() {
	byID := make(map[string]*ParsedParticipant)
	order := make([]string, 0)

	for i := range d.Messages {
		msg := &d.Messages[i]
		if msg.SenderID == "" {
			continue
		}
		if _, ok := byID[msg.SenderID]; !ok {
			role := RoleMember
			if msg.Type == MessageTypeSystem {
				role = RoleUnknown
			}
			byID[msg.SenderID] = &ParsedParticipant{
				ID:   msg.SenderID,
				Name: msg.SenderName,
				Role: role,
			}
			order = append(order, msg.SenderID)
		}
	}

	// Second pass: counts and first/last message timestamps
	for i := range d.Messages {
		msg := &d.Messages[i]
		p, ok := byID[msg.SenderID]
		if !ok {
			continue
		}
		p.MessageCount++
		if p.FirstMessage.IsZero() || msg.Timestamp.Before(p.FirstMessage) {
			p.FirstMessage = msg.Timestamp
		}
		if msg.Timestamp.After(p.LastMessage) {
			p.LastMessage = msg.Timestamp
		}
	}

	d.Participants = make([]ParsedParticipant, 0, len(order))
	for _, id := range order {
		d.Participants = append(d.Participants, *byID[id])
	}
}

// DeriveStatistics computes aggregate statistics from the final message list
func (d *ParsedChatData) DeriveStatistics() {
	stats := ChatStatistics{
		TotalMessages: len(d.Messages),
		ByType:        make(map[MessageType]int),
		ByParticipant: make(map[string]int),
		PerDay:        make(map[string]int),
	}

	hourCounts := make(map[int]int)
	var contentLen int

	for i := range d.Messages {
		msg := &d.Messages[i]
		stats.ByType[msg.Type]++
		if msg.SenderID != "" {
			stats.ByParticipant[msg.SenderID]++
		}
		stats.PerDay[msg.Timestamp.Format("2006-01-02")]++
		hourCounts[msg.Timestamp.Hour()]++
		contentLen += len(msg.Content)

		if len(msg.Entities.URLs) > 0 {
			stats.URLMessages++
		}
		if msg.Type.IsMedia() {
			stats.MediaMessages++
		}
		if msg.Type == MessageTypeFile || msg.Type == MessageTypeDocument {
			stats.FileMessages++
		}

		if stats.DateRange.From.IsZero() || msg.Timestamp.Before(stats.DateRange.From) {
			stats.DateRange.From = msg.Timestamp
		}
		if msg.Timestamp.After(stats.DateRange.To) {
			stats.DateRange.To = msg.Timestamp
		}
	}

	if len(d.Messages) > 0 {
		stats.AvgContentLength = float64(contentLen) / float64(len(d.Messages))
	}

	stats.MostActiveHours = topHours(hourCounts, 3)
	d.Statistics = stats
}

// topHours returns the n busiest hours of day, busiest first
func topHours(counts map[int]int, n int) []int {
	hours := make([]int, 0, len(counts))
	for h := range counts {
		hours = append(hours, h)
	}
	// Selection by count, ties broken by earlier hour for determinism
	for i := 0; i < len(hours); i++ {
		for j := i + 1; j < len(hours); j++ {
			if counts[hours[j]] > counts[hours[i]] ||
				(counts[hours[j]] == counts[hours[i]] && hours[j] < hours[i]) {
				hours[i], hours[j] = hours[j], hours[i]
			}
		}
	}
	if len(hours) > n {
		hours = hours[:n]
	}
	return hours
}
