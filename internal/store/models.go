package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/actaso/reflecta-lab-sub001/internal/domain"
)

// Rows store instants as unix seconds (UTC) and device tokens as a JSON
// array, keeping the schema driver-agnostic.

type profileRow struct {
	UserID       string        `db:"user_id"`
	Enabled      int           `db:"enabled"`
	Frequency    string        `db:"frequency"`
	TimePref     string        `db:"time_preference"`
	Timezone     string        `db:"timezone"`
	DeviceTokens string        `db:"device_tokens"`
	LastSentAt   sql.NullInt64 `db:"last_message_sent_at"`
	NextDueAt    sql.NullInt64 `db:"next_due_at"`
	CreatedAt    int64         `db:"created_at"`
	UpdatedAt    int64         `db:"updated_at"`
}

type messageRow struct {
	ID               string `db:"id"`
	UserID           string `db:"user_id"`
	Status           string `db:"status"`
	Content          string `db:"content"`
	Type             string `db:"type"`
	NotificationText string `db:"short_notification_text"`
	Effectiveness    int    `db:"effectiveness_rating"`
	Action           string `db:"recommended_action"`
	WasSent          int    `db:"was_sent"`
	DeliveryEntryID  string `db:"delivery_target_entry_id"`
	ContextSnapshot  string `db:"context_snapshot"`
	AttemptNumber    int    `db:"attempt_number"`
	FailureReason    string `db:"failure_reason"`
	ScheduledFor     int64  `db:"scheduled_for"`
	CreatedAt        int64  `db:"created_at"`
	UpdatedAt        int64  `db:"updated_at"`
}

type entryRow struct {
	ID              string `db:"id"`
	UserID          string `db:"user_id"`
	Kind            string `db:"kind"`
	Title           string `db:"title"`
	Body            string `db:"body"`
	SourceMessageID string `db:"source_message_id"`
	CreatedAt       int64  `db:"created_at"`
}

type insightRow struct {
	ID          string `db:"id"`
	UserID      string `db:"user_id"`
	Category    string `db:"category"`
	Headline    string `db:"headline"`
	Description string `db:"description"`
	CreatedAt   int64  `db:"created_at"`
}

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}

func fromNullUnix(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := time.Unix(ns.Int64, 0).UTC()
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeTokens(tokens []string) string {
	if len(tokens) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tokens)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeTokens(s string) []string {
	if s == "" {
		return nil
	}
	var tokens []string
	if err := json.Unmarshal([]byte(s), &tokens); err != nil {
		return nil
	}
	return tokens
}

func (r profileRow) toDomain() domain.CoachingProfile {
	return domain.CoachingProfile{
		UserID:            r.UserID,
		Enabled:           r.Enabled != 0,
		Frequency:         domain.Frequency(r.Frequency),
		TimePreference:    domain.TimePreference(r.TimePref),
		Timezone:          r.Timezone,
		DeviceTokens:      decodeTokens(r.DeviceTokens),
		LastMessageSentAt: fromNullUnix(r.LastSentAt),
		NextDueAt:         fromNullUnix(r.NextDueAt),
		CreatedAt:         time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:         time.Unix(r.UpdatedAt, 0).UTC(),
	}
}

func profileToRow(p *domain.CoachingProfile, now time.Time) profileRow {
	created := p.CreatedAt
	if created.IsZero() {
		created = now
	}
	return profileRow{
		UserID:       p.UserID,
		Enabled:      boolToInt(p.Enabled),
		Frequency:    string(p.Frequency),
		TimePref:     string(p.TimePreference),
		Timezone:     p.Timezone,
		DeviceTokens: encodeTokens(p.DeviceTokens),
		LastSentAt:   toNullUnix(p.LastMessageSentAt),
		NextDueAt:    toNullUnix(p.NextDueAt),
		CreatedAt:    created.UTC().Unix(),
		UpdatedAt:    now.UTC().Unix(),
	}
}

func (r messageRow) toDomain() domain.MessageRecord {
	return domain.MessageRecord{
		ID:                    r.ID,
		UserID:                r.UserID,
		Status:                r.Status,
		Content:               r.Content,
		Type:                  domain.MessageType(r.Type),
		ShortNotificationText: r.NotificationText,
		EffectivenessRating:   r.Effectiveness,
		RecommendedAction:     domain.RecommendedAction(r.Action),
		WasSent:               r.WasSent != 0,
		DeliveryTargetEntryID: r.DeliveryEntryID,
		ContextSnapshot:       r.ContextSnapshot,
		AttemptNumber:         r.AttemptNumber,
		FailureReason:         domain.FailureReason(r.FailureReason),
		ScheduledFor:          time.Unix(r.ScheduledFor, 0).UTC(),
		CreatedAt:             time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:             time.Unix(r.UpdatedAt, 0).UTC(),
	}
}

func messageToRow(m *domain.MessageRecord, now time.Time) messageRow {
	created := m.CreatedAt
	if created.IsZero() {
		created = now
	}
	return messageRow{
		ID:               m.ID,
		UserID:           m.UserID,
		Status:           m.Status,
		Content:          m.Content,
		Type:             string(m.Type),
		NotificationText: m.ShortNotificationText,
		Effectiveness:    m.EffectivenessRating,
		Action:           string(m.RecommendedAction),
		WasSent:          boolToInt(m.WasSent),
		DeliveryEntryID:  m.DeliveryTargetEntryID,
		ContextSnapshot:  m.ContextSnapshot,
		AttemptNumber:    m.AttemptNumber,
		FailureReason:    string(m.FailureReason),
		ScheduledFor:     m.ScheduledFor.UTC().Unix(),
		CreatedAt:        created.UTC().Unix(),
		UpdatedAt:        now.UTC().Unix(),
	}
}

func (r entryRow) toDomain() domain.ReflectionEntry {
	return domain.ReflectionEntry{
		ID:              r.ID,
		UserID:          r.UserID,
		Kind:            r.Kind,
		Title:           r.Title,
		Body:            r.Body,
		SourceMessageID: r.SourceMessageID,
		CreatedAt:       time.Unix(r.CreatedAt, 0).UTC(),
	}
}

func (r insightRow) toDomain() domain.Insight {
	return domain.Insight{
		ID:          r.ID,
		UserID:      r.UserID,
		Category:    r.Category,
		Headline:    r.Headline,
		Description: r.Description,
		CreatedAt:   time.Unix(r.CreatedAt, 0).UTC(),
	}
}
