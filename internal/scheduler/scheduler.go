// Package scheduler decides, once per trigger, which users get a coaching
// attempt this cycle and fans the work out to independent processor
// invocations.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/actaso/reflecta-lab-sub001/internal/domain"
	"github.com/actaso/reflecta-lab-sub001/internal/store"
)

// listLimit caps how many profiles one cycle pulls from each query.
const listLimit = 500

// Dispatcher hands one user off to an isolated processor invocation. It must
// return quickly: acceptance of the job, not its completion.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string) error
}

// Summary is the aggregate result of one scheduler cycle.
type Summary struct {
	UsersDue          int `json:"usersDue"`
	UsersBootstrapped int `json:"usersBootstrapped"`
	JobsCreated       int `json:"jobsCreated"`
	Errors            int `json:"errors"`
}

// Scheduler runs one cycle per invocation: bootstrap never-scheduled users,
// defer out-of-window users, dispatch the rest.
type Scheduler struct {
	repo       store.Repo
	dispatcher Dispatcher
	log        *zap.Logger
	now        func() time.Time
	parallel   int64
}

// New creates a Scheduler. parallel bounds concurrent dispatches.
func New(repo store.Repo, dispatcher Dispatcher, parallel int, log *zap.Logger) *Scheduler {
	if parallel <= 0 {
		parallel = 16
	}
	return &Scheduler{
		repo:       repo,
		dispatcher: dispatcher,
		log:        log,
		now:        time.Now,
		parallel:   int64(parallel),
	}
}

// RunCycle performs one scheduling pass. Dispatches are awaited only to the
// point of acceptance, so the cycle's runtime stays flat regardless of how
// long individual processor runs take. Errors inside processor runs are
// invisible here; only dispatch-level failures are counted.
func (s *Scheduler) RunCycle(ctx context.Context) (Summary, error) {
	started := s.now()
	var sum Summary

	sum.UsersBootstrapped = s.bootstrap(ctx, started)

	due, err := s.repo.ListDue(ctx, started, listLimit)
	if err != nil {
		s.log.Error("due query failed", zap.Error(err))
		sum.Errors++
		return sum, err
	}
	sum.UsersDue = len(due)

	sem := semaphore.NewWeighted(s.parallel)
	var wg sync.WaitGroup
	var jobs, errs atomic.Int64

	for _, p := range due {
		localHour := started.In(p.Location()).Hour()
		if !domain.InWindow(localHour, p.TimePreference) {
			// Outside the user's window: defer to its next occurrence
			// without generating anything this cycle.
			next := domain.NextWindowStart(started, p.TimePreference, p.Timezone)
			if err := s.repo.SetNextDue(ctx, p.UserID, next); err != nil {
				s.log.Error("defer reschedule failed", zap.String("userID", p.UserID), zap.Error(err))
				errs.Add(1)
			}
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			errs.Add(1)
			break
		}
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			defer sem.Release(1)
			if err := s.dispatcher.Dispatch(ctx, userID); err != nil {
				s.log.Error("dispatch failed", zap.String("userID", userID), zap.Error(err))
				errs.Add(1)
				return
			}
			jobs.Add(1)
		}(p.UserID)
	}
	wg.Wait()

	sum.JobsCreated = int(jobs.Load())
	sum.Errors += int(errs.Load())

	s.log.Info("scheduler cycle complete",
		zap.Int("usersDue", sum.UsersDue),
		zap.Int("usersBootstrapped", sum.UsersBootstrapped),
		zap.Int("jobsCreated", sum.JobsCreated),
		zap.Int("errors", sum.Errors),
		zap.Duration("took", s.now().Sub(started)),
	)
	return sum, nil
}

// bootstrap assigns a first due-time to users who never had one. No message
// is generated this cycle; the random offset staggers the new cohort.
func (s *Scheduler) bootstrap(ctx context.Context, now time.Time) int {
	fresh, err := s.repo.ListUnscheduled(ctx, listLimit)
	if err != nil {
		s.log.Error("bootstrap query failed", zap.Error(err))
		return 0
	}

	n := 0
	for _, p := range fresh {
		next := domain.NextDue(now, p.Frequency, p.TimePreference, p.Timezone, domain.ModeBootstrap)
		if err := s.repo.SetNextDue(ctx, p.UserID, next); err != nil {
			s.log.Error("bootstrap write failed", zap.String("userID", p.UserID), zap.Error(err))
			continue
		}
		n++
	}
	return n
}
