package store

import (
	"context"
	"errors"
	"time"

	"github.com/actaso/reflecta-lab-sub001/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Repo defines storage operations for coaching profiles, message records and
// journal documents.
type Repo interface {
	GetProfile(ctx context.Context, userID string) (*domain.CoachingProfile, error)
	UpsertProfile(ctx context.Context, p *domain.CoachingProfile) error
	// ListDue returns up to limit enabled profiles with next_due_at <= now,
	// ordered by next_due_at ascending.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.CoachingProfile, error)
	// ListUnscheduled returns up to limit enabled profiles that have never
	// been assigned a due-time.
	ListUnscheduled(ctx context.Context, limit int) ([]domain.CoachingProfile, error)
	// SetNextDue performs a targeted update of next_due_at only.
	SetNextDue(ctx context.Context, userID string, next time.Time) error
	// MarkSent advances last_message_sent_at and next_due_at together after a
	// successful delivery.
	MarkSent(ctx context.Context, userID string, sentAt, next time.Time) error

	InsertMessage(ctx context.Context, m *domain.MessageRecord) error
	FinalizeMessage(ctx context.Context, m *domain.MessageRecord) error
	SetMessageDeliveryTarget(ctx context.Context, messageID, entryID string) error
	ListMessages(ctx context.Context, userID string, limit int) ([]domain.MessageRecord, error)
	// CountFailuresSinceLastSent counts failed attempts newer than the user's
	// latest sent message; used to derive the attempt number.
	CountFailuresSinceLastSent(ctx context.Context, userID string) (int, error)

	CreateEntry(ctx context.Context, e *domain.ReflectionEntry) error
	ListRecentEntries(ctx context.Context, userID string, limit int) ([]domain.ReflectionEntry, error)
	ListInsights(ctx context.Context, userID string) ([]domain.Insight, error)

	Close() error
}
