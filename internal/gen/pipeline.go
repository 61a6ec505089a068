// Package gen implements the two-stage generation pipeline: a drafting call,
// a quality-simulation call, and the effectiveness gate between them and
// delivery.
package gen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/actaso/reflecta-lab-sub001/internal/domain"
	"github.com/actaso/reflecta-lab-sub001/internal/llm"
)

// EffectivenessThreshold is the minimum overall score a draft needs to pass
// the quality gate.
const EffectivenessThreshold = 6

// Simulation recommended actions.
const (
	ActionKeepAsIs         = "KEEP_AS_IS"
	ActionMinorAdjustments = "MINOR_ADJUSTMENTS"
	ActionMajorRevision    = "MAJOR_REVISION"
	ActionSkipMessage      = "SKIP_MESSAGE"
)

// Stage failures; the processor maps these onto the recorded failure reasons.
var (
	ErrDraftParse      = errors.New("draft stage produced no valid block")
	ErrSimulationParse = errors.New("simulation stage produced no valid block")
)

// Draft is the validated Stage A candidate.
type Draft struct {
	Reasoning        string `json:"reasoning"`
	MessageType      string `json:"message_type"`
	NotificationText string `json:"notification_text" validate:"required,max=120"`
	Message          string `json:"message" validate:"required,min=50"`
}

// Scores are the six Stage B sub-scores.
type Scores struct {
	Relevance            int `json:"relevance" validate:"min=1,max=10"`
	Timing               int `json:"timing" validate:"min=1,max=10"`
	Tone                 int `json:"tone" validate:"min=1,max=10"`
	Actionability        int `json:"actionability" validate:"min=1,max=10"`
	EmotionalImpact      int `json:"emotional_impact" validate:"min=1,max=10"`
	EngagementLikelihood int `json:"engagement_likelihood" validate:"min=1,max=10"`
}

// Simulation is the validated Stage B result.
type Simulation struct {
	SimulatedReception   string `json:"simulated_reception"`
	Scores               Scores `json:"scores"`
	OverallEffectiveness int    `json:"overall_effectiveness" validate:"min=1,max=10"`
	RecommendedAction    string `json:"recommended_action" validate:"required,oneof=KEEP_AS_IS MINOR_ADJUSTMENTS MAJOR_REVISION SKIP_MESSAGE"`
}

// Outcome is the combined pipeline result. Accepted is the quality-gate
// verdict; a rejected outcome is not an error.
type Outcome struct {
	Draft      Draft
	Simulation Simulation
	Accepted   bool
}

// Pipeline runs both stages against the text-generation collaborator.
type Pipeline struct {
	client   llm.Client
	validate *validator.Validate
	log      *zap.Logger
}

// New creates a generation pipeline.
func New(client llm.Client, log *zap.Logger) *Pipeline {
	return &Pipeline{
		client:   client,
		validate: validator.New(),
		log:      log,
	}
}

// Run drafts a message for the given user context, simulates its reception,
// and applies the quality gate.
func (p *Pipeline) Run(ctx context.Context, userContext string) (*Outcome, error) {
	draft, err := p.draft(ctx, userContext)
	if err != nil {
		return nil, err
	}

	sim, err := p.simulate(ctx, userContext, draft)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Draft:      draft,
		Simulation: sim,
		Accepted:   GatePasses(sim),
	}
	if !out.Accepted {
		p.log.Info("quality gate rejected draft",
			zap.Int("effectiveness", sim.OverallEffectiveness),
			zap.String("action", sim.RecommendedAction),
		)
	}
	return out, nil
}

// GatePasses applies the delivery gate: reject on SKIP_MESSAGE or an overall
// effectiveness below the threshold.
func GatePasses(sim Simulation) bool {
	if sim.RecommendedAction == ActionSkipMessage {
		return false
	}
	return sim.OverallEffectiveness >= EffectivenessThreshold
}

func (p *Pipeline) draft(ctx context.Context, userContext string) (Draft, error) {
	raw, err := p.client.Complete(ctx, draftSystemPrompt, userContext)
	if err != nil {
		return Draft{}, fmt.Errorf("%w: %w", ErrDraftParse, err)
	}

	var d Draft
	if err := p.decode(raw, &d); err != nil {
		return Draft{}, fmt.Errorf("%w: %w", ErrDraftParse, err)
	}
	// An unexpected type is not worth failing the whole attempt over.
	if !knownMessageType(d.MessageType) {
		d.MessageType = string(domain.TypeUnknown)
	}
	return d, nil
}

func (p *Pipeline) simulate(ctx context.Context, userContext string, d Draft) (Simulation, error) {
	prompt := fmt.Sprintf(simulationUserPromptFmt, userContext, d.MessageType, d.Message, d.NotificationText)
	raw, err := p.client.Complete(ctx, simulationSystemPrompt, prompt)
	if err != nil {
		return Simulation{}, fmt.Errorf("%w: %w", ErrSimulationParse, err)
	}

	var s Simulation
	if err := p.decode(raw, &s); err != nil {
		return Simulation{}, fmt.Errorf("%w: %w", ErrSimulationParse, err)
	}
	return s, nil
}

// decode extracts the JSON block from raw output, repairs common formatting
// slips, unmarshals into v and validates the result. It yields either a fully
// valid value or an error, never a partial object.
func (p *Pipeline) decode(raw string, v any) error {
	block, err := ExtractJSONBlock(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(block), v); err != nil {
		repaired := stripTrailingCommas(block)
		if err2 := json.Unmarshal([]byte(repaired), v); err2 != nil {
			return fmt.Errorf("unmarshal block: %w", err)
		}
	}
	return p.validate.Struct(v)
}

func knownMessageType(t string) bool {
	switch domain.MessageType(t) {
	case domain.TypeCheckIn, domain.TypeEncouragement, domain.TypeChallenge,
		domain.TypeReminder, domain.TypeAlignmentReflection, domain.TypeGeneralReflection,
		domain.TypePersonalInsight, domain.TypeRelevantLesson:
		return true
	}
	return false
}
