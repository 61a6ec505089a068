package domain

import "time"

// MessageType classifies a generated coaching message.
type MessageType string

const (
	TypeCheckIn             MessageType = "check_in"
	TypeEncouragement       MessageType = "encouragement"
	TypeChallenge           MessageType = "challenge"
	TypeReminder            MessageType = "reminder"
	TypeAlignmentReflection MessageType = "alignment_reflection"
	TypeGeneralReflection   MessageType = "general_reflection"
	TypePersonalInsight     MessageType = "personal_insight"
	TypeRelevantLesson      MessageType = "relevant_lesson"
	TypeUnknown             MessageType = "unknown"
)

// Message record status lifecycle: pending -> sent | failed.
const (
	MessageStatusPending = "pending"
	MessageStatusSent    = "sent"
	MessageStatusFailed  = "failed"
)

// RecommendedAction is the delivery decision recorded on a message.
type RecommendedAction string

const (
	ActionSend RecommendedAction = "SEND_MESSAGE"
	ActionSkip RecommendedAction = "SKIP_MESSAGE"
)

// FailureReason tags why a processing attempt did not deliver.
type FailureReason string

const (
	FailureContextFetch    FailureReason = "context-fetch-fatal"
	FailureDraftParse      FailureReason = "draft-parse-error"
	FailureSimulationParse FailureReason = "simulation-parse-error"
	FailureQualityGate     FailureReason = "quality-gate-rejected"
)

// MessageRecord is one generation attempt, successful or not. Records are
// append-only: after finalization only the delivery target link may change.
type MessageRecord struct {
	ID                    string
	UserID                string
	Status                string
	Content               string
	Type                  MessageType
	ShortNotificationText string
	EffectivenessRating   int // 0..10, 0 until rated
	RecommendedAction     RecommendedAction
	WasSent               bool
	DeliveryTargetEntryID string // reflection entry hosting the message, "" if none
	ContextSnapshot       string // exact text handed to the generation pipeline
	AttemptNumber         int
	FailureReason         FailureReason // "" on success
	ScheduledFor          time.Time     // the due-time that triggered this attempt
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ReflectionEntry is a document in the user's journal. Coaching messages are
// delivered as entries of kind "coaching_message".
type ReflectionEntry struct {
	ID              string
	UserID          string
	Kind            string // "reflection" | "coaching_message"
	Title           string
	Body            string
	SourceMessageID string // backlink to MessageRecord, "" for plain entries
	CreatedAt       time.Time
}

// Insight is a previously extracted behavioral observation about a user.
type Insight struct {
	ID          string
	UserID      string
	Category    string
	Headline    string
	Description string
	CreatedAt   time.Time
}
