// Package contextbuilder assembles the text digest handed to the generation
// pipeline: recent journal entries, extracted insights, and the user's local
// date/time.
package contextbuilder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/actaso/reflecta-lab-sub001/internal/domain"
)

// recentEntryLimit bounds how much journal history goes into the prompt.
const recentEntryLimit = 10

// Source is the slice of the store the builder reads from.
type Source interface {
	ListRecentEntries(ctx context.Context, userID string, limit int) ([]domain.ReflectionEntry, error)
	ListInsights(ctx context.Context, userID string) ([]domain.Insight, error)
}

// Builder produces per-user context digests.
type Builder struct {
	src Source
	log *zap.Logger
}

// New creates a Builder over the given source.
func New(src Source, log *zap.Logger) *Builder {
	return &Builder{src: src, log: log}
}

// Build returns the context digest for a profile at the given instant.
// A failed insights fetch degrades to a digest without that section; a failed
// entries fetch is fatal and aborts the attempt.
func (b *Builder) Build(ctx context.Context, p *domain.CoachingProfile, now time.Time) (string, error) {
	entries, err := b.src.ListRecentEntries(ctx, p.UserID, recentEntryLimit)
	if err != nil {
		return "", fmt.Errorf("fetch recent entries: %w", err)
	}

	var sb strings.Builder

	sb.WriteString("RECENT REFLECTIONS:\n")
	if len(entries) == 0 {
		sb.WriteString("(no journal entries yet)\n")
	}
	for _, e := range entries {
		day := e.CreatedAt.In(p.Location()).Format("Mon Jan 2")
		if e.Title != "" {
			sb.WriteString(fmt.Sprintf("- [%s] %s: %s\n", day, e.Title, e.Body))
		} else {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", day, e.Body))
		}
	}

	insights, err := b.src.ListInsights(ctx, p.UserID)
	if err != nil {
		// Non-fatal: a digest without insights still supports a useful draft.
		b.log.Warn("insights fetch failed, continuing without",
			zap.String("userID", p.UserID), zap.Error(err))
	} else if len(insights) > 0 {
		sb.WriteString("\nKNOWN INSIGHTS:\n")
		for _, in := range insights {
			sb.WriteString(fmt.Sprintf("- [%s] %s: %s\n", in.Category, in.Headline, in.Description))
		}
	}

	local := now.In(p.Location())
	sb.WriteString(fmt.Sprintf("\nCURRENT DATE AND TIME: %s\n", local.Format("Monday, January 2, 2006 at 15:04")))

	return sb.String(), nil
}
