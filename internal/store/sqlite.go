package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/actaso/reflecta-lab-sub001/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sqlx.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// GetProfile returns a user's coaching profile or ErrNotFound.
func (r *SQLiteRepo) GetProfile(ctx context.Context, userID string) (*domain.CoachingProfile, error) {
	var row profileRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM coaching_profiles WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p := row.toDomain()
	return &p, nil
}

// UpsertProfile inserts or replaces a user's coaching profile.
func (r *SQLiteRepo) UpsertProfile(ctx context.Context, p *domain.CoachingProfile) error {
	if p == nil {
		return errors.New("nil profile")
	}
	row := profileToRow(p, time.Now())
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO coaching_profiles (
			user_id, enabled, frequency, time_preference, timezone,
			device_tokens, last_message_sent_at, next_due_at, created_at, updated_at
		) VALUES (
			:user_id, :enabled, :frequency, :time_preference, :timezone,
			:device_tokens, :last_message_sent_at, :next_due_at, :created_at, :updated_at
		)
		ON CONFLICT(user_id) DO UPDATE SET
			enabled              = excluded.enabled,
			frequency            = excluded.frequency,
			time_preference      = excluded.time_preference,
			timezone             = excluded.timezone,
			device_tokens        = excluded.device_tokens,
			last_message_sent_at = excluded.last_message_sent_at,
			next_due_at          = excluded.next_due_at,
			updated_at           = excluded.updated_at`,
		row)
	return err
}

// ListDue returns up to limit enabled profiles whose next_due_at has passed,
// ordered by next_due_at ascending. Backed by the partial index
// idx_profiles_due, so cost scales with the due set, not the user base.
func (r *SQLiteRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.CoachingProfile, error) {
	var rows []profileRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM coaching_profiles
		WHERE enabled = 1
		  AND next_due_at IS NOT NULL
		  AND next_due_at <= ?
		ORDER BY next_due_at ASC
		LIMIT ?`,
		now.UTC().Unix(), limit)
	if err != nil {
		return nil, err
	}
	return profilesToDomain(rows), nil
}

// ListUnscheduled returns up to limit enabled profiles that were never
// assigned a due-time (the bootstrap set).
func (r *SQLiteRepo) ListUnscheduled(ctx context.Context, limit int) ([]domain.CoachingProfile, error) {
	var rows []profileRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM coaching_profiles
		WHERE enabled = 1
		  AND next_due_at IS NULL
		LIMIT ?`,
		limit)
	if err != nil {
		return nil, err
	}
	return profilesToDomain(rows), nil
}

func profilesToDomain(rows []profileRow) []domain.CoachingProfile {
	res := make([]domain.CoachingProfile, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.toDomain())
	}
	return res
}

// SetNextDue updates only the schedule fields of a profile.
func (r *SQLiteRepo) SetNextDue(ctx context.Context, userID string, next time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE coaching_profiles
		SET next_due_at = ?, updated_at = ?
		WHERE user_id = ?`,
		next.UTC().Unix(), time.Now().UTC().Unix(), userID)
	return err
}

// MarkSent records a successful delivery and the next due-time in one write.
func (r *SQLiteRepo) MarkSent(ctx context.Context, userID string, sentAt, next time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE coaching_profiles
		SET last_message_sent_at = ?, next_due_at = ?, updated_at = ?
		WHERE user_id = ?`,
		sentAt.UTC().Unix(), next.UTC().Unix(), time.Now().UTC().Unix(), userID)
	return err
}

// InsertMessage appends a new message record, normally in pending status.
func (r *SQLiteRepo) InsertMessage(ctx context.Context, m *domain.MessageRecord) error {
	if m == nil {
		return errors.New("nil message")
	}
	row := messageToRow(m, time.Now())
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO coaching_messages (
			id, user_id, status, content, type, short_notification_text,
			effectiveness_rating, recommended_action, was_sent,
			delivery_target_entry_id, context_snapshot, attempt_number,
			failure_reason, scheduled_for, created_at, updated_at
		) VALUES (
			:id, :user_id, :status, :content, :type, :short_notification_text,
			:effectiveness_rating, :recommended_action, :was_sent,
			:delivery_target_entry_id, :context_snapshot, :attempt_number,
			:failure_reason, :scheduled_for, :created_at, :updated_at
		)`,
		row)
	return err
}

// FinalizeMessage writes the outcome of an attempt onto its pending record.
func (r *SQLiteRepo) FinalizeMessage(ctx context.Context, m *domain.MessageRecord) error {
	if m == nil {
		return errors.New("nil message")
	}
	row := messageToRow(m, time.Now())
	_, err := r.db.NamedExecContext(ctx, `
		UPDATE coaching_messages SET
			status                  = :status,
			content                 = :content,
			type                    = :type,
			short_notification_text = :short_notification_text,
			effectiveness_rating    = :effectiveness_rating,
			recommended_action      = :recommended_action,
			was_sent                = :was_sent,
			context_snapshot        = :context_snapshot,
			failure_reason          = :failure_reason,
			updated_at              = :updated_at
		WHERE id = :id`,
		row)
	return err
}

// SetMessageDeliveryTarget attaches the reflection entry hosting a delivered
// message. This is the only mutation allowed after finalization.
func (r *SQLiteRepo) SetMessageDeliveryTarget(ctx context.Context, messageID, entryID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE coaching_messages
		SET delivery_target_entry_id = ?, updated_at = ?
		WHERE id = ?`,
		entryID, time.Now().UTC().Unix(), messageID)
	return err
}

// ListMessages returns a user's message records, newest first.
func (r *SQLiteRepo) ListMessages(ctx context.Context, userID string, limit int) ([]domain.MessageRecord, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM coaching_messages
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	res := make([]domain.MessageRecord, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.toDomain())
	}
	return res, nil
}

// CountFailuresSinceLastSent counts failed attempts newer than the user's
// most recent sent message.
func (r *SQLiteRepo) CountFailuresSinceLastSent(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM coaching_messages
		WHERE user_id = ?
		  AND status = 'failed'
		  AND created_at > COALESCE(
			(SELECT MAX(created_at) FROM coaching_messages WHERE user_id = ? AND status = 'sent'), 0)`,
		userID, userID)
	return n, err
}

// CreateEntry inserts a journal entry (plain reflection or delivery target).
func (r *SQLiteRepo) CreateEntry(ctx context.Context, e *domain.ReflectionEntry) error {
	if e == nil {
		return errors.New("nil entry")
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reflection_entries (id, user_id, kind, title, body, source_message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Kind, e.Title, e.Body, e.SourceMessageID, created.UTC().Unix())
	return err
}

// ListRecentEntries returns a user's latest journal entries, newest first.
func (r *SQLiteRepo) ListRecentEntries(ctx context.Context, userID string, limit int) ([]domain.ReflectionEntry, error) {
	var rows []entryRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM reflection_entries
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	res := make([]domain.ReflectionEntry, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.toDomain())
	}
	return res, nil
}

// ListInsights returns all extracted insights for a user.
func (r *SQLiteRepo) ListInsights(ctx context.Context, userID string) ([]domain.Insight, error) {
	var rows []insightRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM user_insights
		WHERE user_id = ?
		ORDER BY category ASC, created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Insight, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.toDomain())
	}
	return res, nil
}
