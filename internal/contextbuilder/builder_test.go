package contextbuilder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/actaso/reflecta-lab-sub001/internal/domain"
)

type fakeSource struct {
	entries     []domain.ReflectionEntry
	insights    []domain.Insight
	entriesErr  error
	insightsErr error
}

func (f *fakeSource) ListRecentEntries(context.Context, string, int) ([]domain.ReflectionEntry, error) {
	return f.entries, f.entriesErr
}

func (f *fakeSource) ListInsights(context.Context, string) ([]domain.Insight, error) {
	return f.insights, f.insightsErr
}

func testProfile() *domain.CoachingProfile {
	return &domain.CoachingProfile{
		UserID:         "u1",
		Timezone:       "Europe/Berlin",
		Frequency:      domain.FrequencyDaily,
		TimePreference: domain.TimeMorning,
	}
}

func TestBuild_IncludesEntriesInsightsAndLocalTime(t *testing.T) {
	src := &fakeSource{
		entries: []domain.ReflectionEntry{
			{Title: "Long day", Body: "Too many meetings.", CreatedAt: time.Date(2025, time.June, 9, 20, 0, 0, 0, time.UTC)},
		},
		insights: []domain.Insight{
			{Category: "energy", Headline: "Afternoon slump", Description: "Often drained after 15:00."},
		},
	}
	b := New(src, zap.NewNop())

	now := time.Date(2025, time.June, 10, 7, 0, 0, 0, time.UTC) // 09:00 Berlin
	got, err := b.Build(context.Background(), testProfile(), now)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, want := range []string{"Long day", "Too many meetings.", "Afternoon slump", "Tuesday, June 10, 2025 at 09:00"} {
		if !strings.Contains(got, want) {
			t.Errorf("digest missing %q:\n%s", want, got)
		}
	}
}

func TestBuild_InsightsFailureDegrades(t *testing.T) {
	src := &fakeSource{
		entries:     []domain.ReflectionEntry{{Body: "Quiet morning."}},
		insightsErr: errors.New("insights store down"),
	}
	b := New(src, zap.NewNop())

	got, err := b.Build(context.Background(), testProfile(), time.Now())
	if err != nil {
		t.Fatalf("insights failure must not be fatal: %v", err)
	}
	if strings.Contains(got, "KNOWN INSIGHTS") {
		t.Fatal("degraded digest must not contain an insights section")
	}
	if !strings.Contains(got, "Quiet morning.") {
		t.Fatal("entries must survive insights failure")
	}
}

func TestBuild_EntriesFailureIsFatal(t *testing.T) {
	src := &fakeSource{entriesErr: errors.New("store down")}
	b := New(src, zap.NewNop())

	if _, err := b.Build(context.Background(), testProfile(), time.Now()); err == nil {
		t.Fatal("entries failure must abort the build")
	}
}

func TestBuild_EmptyJournal(t *testing.T) {
	b := New(&fakeSource{}, zap.NewNop())
	got, err := b.Build(context.Background(), testProfile(), time.Now())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(got, "no journal entries yet") {
		t.Fatalf("empty journal placeholder missing:\n%s", got)
	}
}
