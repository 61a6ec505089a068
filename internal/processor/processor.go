// Package processor runs the per-user coaching pipeline: one isolated
// execution per (user, due-time) pair, always ending with the due-time moved
// forward.
package processor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/actaso/reflecta-lab-sub001/internal/domain"
	"github.com/actaso/reflecta-lab-sub001/internal/gen"
	"github.com/actaso/reflecta-lab-sub001/internal/notify"
	"github.com/actaso/reflecta-lab-sub001/internal/store"
)

// ContextBuilder produces the text digest for one user.
type ContextBuilder interface {
	Build(ctx context.Context, p *domain.CoachingProfile, now time.Time) (string, error)
}

// GenerationPipeline is the two-stage draft + simulation run.
type GenerationPipeline interface {
	Run(ctx context.Context, userContext string) (*gen.Outcome, error)
}

// Processor orchestrates context building, generation, persistence, delivery
// and rescheduling for exactly one user.
type Processor struct {
	repo     store.Repo
	builder  ContextBuilder
	pipeline GenerationPipeline
	notifier notify.Notifier
	log      *zap.Logger
	now      func() time.Time
}

// New creates a Processor.
func New(repo store.Repo, builder ContextBuilder, pipeline GenerationPipeline, notifier notify.Notifier, log *zap.Logger) *Processor {
	return &Processor{
		repo:     repo,
		builder:  builder,
		pipeline: pipeline,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Process executes one attempt for userID. force bypasses the eligibility and
// stale-run checks (development tooling only).
//
// Recoverable failures are absorbed here: they are persisted as a failed
// message record plus a retry-mode reschedule, and Process returns nil. Only
// conditions that leave no trace (profile store unreachable, record insert
// failed) surface as errors.
func (p *Processor) Process(ctx context.Context, userID string, force bool) error {
	now := p.now()

	prof, err := p.repo.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		p.log.Debug("skipping unknown user", zap.String("userID", userID))
		return nil
	}
	if err != nil {
		return err
	}
	if !prof.Enabled && !force {
		p.log.Debug("skipping disabled user", zap.String("userID", userID))
		return nil
	}

	scheduledFor := now
	if prof.NextDueAt != nil {
		// Stale-run guard: if the due-time already moved past now, another
		// run for this user has completed since this one was dispatched.
		if prof.NextDueAt.After(now) && !force {
			p.log.Info("skipping stale dispatch",
				zap.String("userID", userID),
				zap.Time("nextDueAt", *prof.NextDueAt))
			return nil
		}
		scheduledFor = *prof.NextDueAt
	}

	attempt := 1
	if n, err := p.repo.CountFailuresSinceLastSent(ctx, userID); err == nil {
		attempt = n + 1
	} else {
		p.log.Warn("attempt count unavailable", zap.String("userID", userID), zap.Error(err))
	}

	rec := &domain.MessageRecord{
		ID:            uuid.NewString(),
		UserID:        userID,
		Status:        domain.MessageStatusPending,
		Type:          domain.TypeUnknown,
		AttemptNumber: attempt,
		ScheduledFor:  scheduledFor,
	}
	if err := p.repo.InsertMessage(ctx, rec); err != nil {
		return err
	}

	userContext, err := p.builder.Build(ctx, prof, now)
	if err != nil {
		p.fail(ctx, prof, rec, domain.FailureContextFetch, err, now)
		return nil
	}
	rec.ContextSnapshot = userContext

	out, err := p.pipeline.Run(ctx, userContext)
	if err != nil {
		reason := domain.FailureDraftParse
		if errors.Is(err, gen.ErrSimulationParse) {
			reason = domain.FailureSimulationParse
		}
		p.fail(ctx, prof, rec, reason, err, now)
		return nil
	}

	rec.Content = out.Draft.Message
	rec.Type = domain.MessageType(out.Draft.MessageType)
	rec.ShortNotificationText = out.Draft.NotificationText
	rec.EffectivenessRating = out.Simulation.OverallEffectiveness

	if !out.Accepted {
		rec.RecommendedAction = domain.ActionSkip
		p.fail(ctx, prof, rec, domain.FailureQualityGate, nil, now)
		return nil
	}

	rec.RecommendedAction = domain.ActionSend
	rec.Status = domain.MessageStatusSent
	if err := p.repo.FinalizeMessage(ctx, rec); err != nil {
		p.log.Error("finalize message failed", zap.String("messageID", rec.ID), zap.Error(err))
	}

	p.deliver(ctx, prof, rec, out)

	rec.WasSent = true
	if err := p.repo.FinalizeMessage(ctx, rec); err != nil {
		p.log.Error("mark sent failed", zap.String("messageID", rec.ID), zap.Error(err))
	}

	next := domain.NextDue(now, prof.Frequency, prof.TimePreference, prof.Timezone, domain.ModeNormal)
	if err := p.repo.MarkSent(ctx, userID, now, next); err != nil {
		// Accepted degradation: the user stays in the due set and is
		// reprocessed next cycle.
		p.log.Error("schedule write failed", zap.String("userID", userID), zap.Error(err))
	}

	p.log.Info("coaching message sent",
		zap.String("userID", userID),
		zap.String("messageID", rec.ID),
		zap.String("type", string(rec.Type)),
		zap.Int("effectiveness", rec.EffectivenessRating),
		zap.Time("nextDueAt", next),
	)
	return nil
}

// deliver creates the journal entry hosting the message and pushes the
// notification. Both halves are best-effort.
func (p *Processor) deliver(ctx context.Context, prof *domain.CoachingProfile, rec *domain.MessageRecord, out *gen.Outcome) {
	entry := &domain.ReflectionEntry{
		ID:              uuid.NewString(),
		UserID:          prof.UserID,
		Kind:            "coaching_message",
		Title:           out.Draft.NotificationText,
		Body:            out.Draft.Message,
		SourceMessageID: rec.ID,
		CreatedAt:       p.now(),
	}
	if err := p.repo.CreateEntry(ctx, entry); err != nil {
		p.log.Error("delivery target creation failed", zap.String("messageID", rec.ID), zap.Error(err))
	} else {
		rec.DeliveryTargetEntryID = entry.ID
		if err := p.repo.SetMessageDeliveryTarget(ctx, rec.ID, entry.ID); err != nil {
			p.log.Error("delivery target link failed", zap.String("messageID", rec.ID), zap.Error(err))
		}
	}

	if len(prof.DeviceTokens) == 0 {
		p.log.Debug("no device tokens, push skipped", zap.String("userID", prof.UserID))
		return
	}
	res, err := p.notifier.Send(ctx, prof.DeviceTokens, out.Draft.NotificationText, out.Draft.Message)
	if err != nil {
		p.log.Warn("push delivery failed",
			zap.String("userID", prof.UserID),
			zap.Int("failed", res.Failed),
			zap.Error(err))
		return
	}
	if res.Failed > 0 {
		p.log.Warn("push partially delivered",
			zap.String("userID", prof.UserID),
			zap.Int("delivered", res.Delivered),
			zap.Int("failed", res.Failed))
	}
}

// fail records the failed attempt and reschedules with the retry offset.
func (p *Processor) fail(ctx context.Context, prof *domain.CoachingProfile, rec *domain.MessageRecord, reason domain.FailureReason, cause error, now time.Time) {
	rec.Status = domain.MessageStatusFailed
	rec.WasSent = false
	rec.FailureReason = reason
	if err := p.repo.FinalizeMessage(ctx, rec); err != nil {
		p.log.Error("finalize failed record", zap.String("messageID", rec.ID), zap.Error(err))
	}

	next := domain.NextDue(now, prof.Frequency, prof.TimePreference, prof.Timezone, domain.ModeRetry)
	if err := p.repo.SetNextDue(ctx, prof.UserID, next); err != nil {
		p.log.Error("schedule write failed", zap.String("userID", prof.UserID), zap.Error(err))
	}

	p.log.Warn("coaching attempt failed",
		zap.String("userID", prof.UserID),
		zap.String("messageID", rec.ID),
		zap.String("reason", string(reason)),
		zap.Int("attempt", rec.AttemptNumber),
		zap.Time("nextDueAt", next),
		zap.Error(cause),
	)
}
