package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/actaso/reflecta-lab-sub001/internal/domain"
	"github.com/actaso/reflecta-lab-sub001/internal/gen"
	"github.com/actaso/reflecta-lab-sub001/internal/notify"
	"github.com/actaso/reflecta-lab-sub001/internal/store"
)

// --- fakes ---

type fakeRepo struct {
	profile   *domain.CoachingProfile
	messages  map[string]*domain.MessageRecord
	order     []string
	entries   []*domain.ReflectionEntry
	nextDue   []time.Time
	markSent  []time.Time
	failCount int
}

func newFakeRepo(p *domain.CoachingProfile) *fakeRepo {
	return &fakeRepo{profile: p, messages: map[string]*domain.MessageRecord{}}
}

func (f *fakeRepo) GetProfile(_ context.Context, userID string) (*domain.CoachingProfile, error) {
	if f.profile == nil || f.profile.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *f.profile
	return &cp, nil
}

func (f *fakeRepo) UpsertProfile(_ context.Context, p *domain.CoachingProfile) error {
	f.profile = p
	return nil
}

func (f *fakeRepo) ListDue(context.Context, time.Time, int) ([]domain.CoachingProfile, error) {
	return nil, nil
}

func (f *fakeRepo) ListUnscheduled(context.Context, int) ([]domain.CoachingProfile, error) {
	return nil, nil
}

func (f *fakeRepo) SetNextDue(_ context.Context, _ string, next time.Time) error {
	f.nextDue = append(f.nextDue, next)
	return nil
}

func (f *fakeRepo) MarkSent(_ context.Context, _ string, _, next time.Time) error {
	f.markSent = append(f.markSent, next)
	return nil
}

func (f *fakeRepo) InsertMessage(_ context.Context, m *domain.MessageRecord) error {
	cp := *m
	f.messages[m.ID] = &cp
	f.order = append(f.order, m.ID)
	return nil
}

func (f *fakeRepo) FinalizeMessage(_ context.Context, m *domain.MessageRecord) error {
	cp := *m
	f.messages[m.ID] = &cp
	return nil
}

func (f *fakeRepo) SetMessageDeliveryTarget(_ context.Context, messageID, entryID string) error {
	if m, ok := f.messages[messageID]; ok {
		m.DeliveryTargetEntryID = entryID
	}
	return nil
}

func (f *fakeRepo) ListMessages(context.Context, string, int) ([]domain.MessageRecord, error) {
	return nil, nil
}

func (f *fakeRepo) CountFailuresSinceLastSent(context.Context, string) (int, error) {
	return f.failCount, nil
}

func (f *fakeRepo) CreateEntry(_ context.Context, e *domain.ReflectionEntry) error {
	cp := *e
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeRepo) ListRecentEntries(context.Context, string, int) ([]domain.ReflectionEntry, error) {
	return nil, nil
}

func (f *fakeRepo) ListInsights(context.Context, string) ([]domain.Insight, error) {
	return nil, nil
}

func (f *fakeRepo) Close() error { return nil }

type fakeBuilder struct {
	text string
	err  error
}

func (b *fakeBuilder) Build(context.Context, *domain.CoachingProfile, time.Time) (string, error) {
	return b.text, b.err
}

type fakePipeline struct {
	out *gen.Outcome
	err error
}

func (p *fakePipeline) Run(context.Context, string) (*gen.Outcome, error) {
	return p.out, p.err
}

type fakeNotifier struct {
	res   notify.Result
	err   error
	calls int
}

func (n *fakeNotifier) Send(context.Context, []string, string, string) (notify.Result, error) {
	n.calls++
	return n.res, n.err
}

// --- helpers ---

var testNow = time.Date(2025, time.June, 10, 7, 30, 0, 0, time.UTC) // 09:30 Berlin

func dueProfile() *domain.CoachingProfile {
	due := testNow.Add(-time.Hour)
	return &domain.CoachingProfile{
		UserID:         "u1",
		Enabled:        true,
		Frequency:      domain.FrequencyDaily,
		TimePreference: domain.TimeMorning,
		Timezone:       "Europe/Berlin",
		DeviceTokens:   []string{"tok-1"},
		NextDueAt:      &due,
	}
}

func acceptedOutcome() *gen.Outcome {
	return &gen.Outcome{
		Draft: gen.Draft{
			MessageType:      "check_in",
			NotificationText: "A quick check-in",
			Message:          "How did the week start for you? You wrote about wanting calmer mornings.",
		},
		Simulation: gen.Simulation{OverallEffectiveness: 8, RecommendedAction: gen.ActionKeepAsIs},
		Accepted:   true,
	}
}

func newProcessor(repo *fakeRepo, b ContextBuilder, pl GenerationPipeline, n notify.Notifier) *Processor {
	p := New(repo, b, pl, n, zap.NewNop())
	p.now = func() time.Time { return testNow }
	return p
}

func singleMessage(t *testing.T, repo *fakeRepo) *domain.MessageRecord {
	t.Helper()
	if len(repo.order) != 1 {
		t.Fatalf("want exactly one message record, got %d", len(repo.order))
	}
	return repo.messages[repo.order[0]]
}

// --- tests ---

func TestProcess_SuccessPath(t *testing.T) {
	repo := newFakeRepo(dueProfile())
	notifier := &fakeNotifier{res: notify.Result{Delivered: 1}}
	p := newProcessor(repo, &fakeBuilder{text: "ctx"}, &fakePipeline{out: acceptedOutcome()}, notifier)

	if err := p.Process(context.Background(), "u1", false); err != nil {
		t.Fatalf("process: %v", err)
	}

	rec := singleMessage(t, repo)
	if rec.Status != domain.MessageStatusSent || !rec.WasSent {
		t.Fatalf("record not sent: status=%s wasSent=%v", rec.Status, rec.WasSent)
	}
	if rec.RecommendedAction != domain.ActionSend {
		t.Fatalf("action: %s", rec.RecommendedAction)
	}
	if rec.ContextSnapshot != "ctx" {
		t.Fatalf("context snapshot: %q", rec.ContextSnapshot)
	}
	if len(repo.entries) != 1 || repo.entries[0].SourceMessageID != rec.ID {
		t.Fatal("delivery target entry missing or unlinked")
	}
	if rec.DeliveryTargetEntryID != repo.entries[0].ID {
		t.Fatal("record not linked to delivery target")
	}
	if notifier.calls != 1 {
		t.Fatalf("push calls: %d", notifier.calls)
	}
	if len(repo.markSent) != 1 {
		t.Fatalf("MarkSent calls: %d", len(repo.markSent))
	}
	// Daily + morning from 09:30 local lands on tomorrow 08:00 local.
	loc, _ := time.LoadLocation("Europe/Berlin")
	if got := repo.markSent[0].In(loc).Format("2006-01-02 15:04"); got != "2025-06-11 08:00" {
		t.Fatalf("next due: %s", got)
	}
}

func TestProcess_QualityGateRejection(t *testing.T) {
	out := acceptedOutcome()
	out.Accepted = false
	out.Simulation.OverallEffectiveness = 4
	repo := newFakeRepo(dueProfile())
	p := newProcessor(repo, &fakeBuilder{text: "ctx"}, &fakePipeline{out: out}, &fakeNotifier{})

	if err := p.Process(context.Background(), "u1", false); err != nil {
		t.Fatalf("process: %v", err)
	}

	rec := singleMessage(t, repo)
	if rec.Status != domain.MessageStatusFailed || rec.WasSent {
		t.Fatalf("rejected attempt must be failed/unsent: %+v", rec)
	}
	if rec.FailureReason != domain.FailureQualityGate {
		t.Fatalf("reason: %s", rec.FailureReason)
	}
	if rec.RecommendedAction != domain.ActionSkip {
		t.Fatalf("action: %s", rec.RecommendedAction)
	}
	if rec.EffectivenessRating != 4 {
		t.Fatalf("rating: %d", rec.EffectivenessRating)
	}
	if len(repo.entries) != 0 {
		t.Fatal("rejected attempt must not create a delivery target")
	}
	if len(repo.nextDue) != 1 {
		t.Fatalf("retry reschedule calls: %d", len(repo.nextDue))
	}
	if !repo.nextDue[0].After(testNow) {
		t.Fatal("retry due-time must be in the future")
	}
}

func TestProcess_DraftParseFailure(t *testing.T) {
	repo := newFakeRepo(dueProfile())
	p := newProcessor(repo, &fakeBuilder{text: "ctx"},
		&fakePipeline{err: gen.ErrDraftParse}, &fakeNotifier{})

	if err := p.Process(context.Background(), "u1", false); err != nil {
		t.Fatalf("process: %v", err)
	}
	rec := singleMessage(t, repo)
	if rec.FailureReason != domain.FailureDraftParse {
		t.Fatalf("reason: %s", rec.FailureReason)
	}
}

func TestProcess_SimulationParseFailure(t *testing.T) {
	repo := newFakeRepo(dueProfile())
	p := newProcessor(repo, &fakeBuilder{text: "ctx"},
		&fakePipeline{err: gen.ErrSimulationParse}, &fakeNotifier{})

	if err := p.Process(context.Background(), "u1", false); err != nil {
		t.Fatalf("process: %v", err)
	}
	if rec := singleMessage(t, repo); rec.FailureReason != domain.FailureSimulationParse {
		t.Fatalf("reason: %s", rec.FailureReason)
	}
}

func TestProcess_ContextFetchFatal(t *testing.T) {
	repo := newFakeRepo(dueProfile())
	p := newProcessor(repo, &fakeBuilder{err: errors.New("store down")},
		&fakePipeline{out: acceptedOutcome()}, &fakeNotifier{})

	if err := p.Process(context.Background(), "u1", false); err != nil {
		t.Fatalf("process: %v", err)
	}
	if rec := singleMessage(t, repo); rec.FailureReason != domain.FailureContextFetch {
		t.Fatalf("reason: %s", rec.FailureReason)
	}
}

func TestProcess_DisabledUserLeavesNoRecord(t *testing.T) {
	prof := dueProfile()
	prof.Enabled = false
	repo := newFakeRepo(prof)
	p := newProcessor(repo, &fakeBuilder{text: "ctx"}, &fakePipeline{out: acceptedOutcome()}, &fakeNotifier{})

	if err := p.Process(context.Background(), "u1", false); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(repo.order) != 0 {
		t.Fatal("disabled user must not produce a record")
	}
}

func TestProcess_UnknownUserLeavesNoRecord(t *testing.T) {
	repo := newFakeRepo(nil)
	p := newProcessor(repo, &fakeBuilder{text: "ctx"}, &fakePipeline{out: acceptedOutcome()}, &fakeNotifier{})

	if err := p.Process(context.Background(), "ghost", false); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(repo.order) != 0 {
		t.Fatal("unknown user must not produce a record")
	}
}

func TestProcess_StaleDispatchSkipped(t *testing.T) {
	prof := dueProfile()
	future := testNow.Add(20 * time.Hour)
	prof.NextDueAt = &future
	repo := newFakeRepo(prof)
	p := newProcessor(repo, &fakeBuilder{text: "ctx"}, &fakePipeline{out: acceptedOutcome()}, &fakeNotifier{})

	if err := p.Process(context.Background(), "u1", false); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(repo.order) != 0 {
		t.Fatal("stale dispatch must not produce a record")
	}
}

func TestProcess_DeliveryFailureDoesNotRevert(t *testing.T) {
	repo := newFakeRepo(dueProfile())
	notifier := &fakeNotifier{res: notify.Result{Failed: 1}, err: errors.New("gateway timeout")}
	p := newProcessor(repo, &fakeBuilder{text: "ctx"}, &fakePipeline{out: acceptedOutcome()}, notifier)

	if err := p.Process(context.Background(), "u1", false); err != nil {
		t.Fatalf("process: %v", err)
	}
	rec := singleMessage(t, repo)
	if !rec.WasSent || rec.Status != domain.MessageStatusSent {
		t.Fatal("delivery failure must not revert the sent record")
	}
	if len(repo.markSent) != 1 {
		t.Fatal("delivery failure must not block rescheduling")
	}
}

func TestProcess_AttemptNumberFromFailureCount(t *testing.T) {
	repo := newFakeRepo(dueProfile())
	repo.failCount = 2
	p := newProcessor(repo, &fakeBuilder{text: "ctx"}, &fakePipeline{out: acceptedOutcome()}, &fakeNotifier{})

	if err := p.Process(context.Background(), "u1", false); err != nil {
		t.Fatalf("process: %v", err)
	}
	if rec := singleMessage(t, repo); rec.AttemptNumber != 3 {
		t.Fatalf("attempt number: %d", rec.AttemptNumber)
	}
}
