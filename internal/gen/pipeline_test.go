package gen

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

const testMessage = "Yesterday you wrote about feeling stretched thin. What is one commitment you could set down this week?"

// scriptedClient returns canned responses in order.
type scriptedClient struct {
	responses []string
	errs      []error
	calls     int
}

func (c *scriptedClient) Complete(_ context.Context, _, _ string) (string, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i >= len(c.responses) {
		return "", errors.New("no scripted response")
	}
	return c.responses[i], nil
}

func draftJSON(msgType string) string {
	return `Here you go:
{
  "reasoning": "user mentioned overcommitment",
  "message_type": "` + msgType + `",
  "notification_text": "A question about this week",
  "message": "` + testMessage + `"
}`
}

func simulationJSON(overall int, action string) string {
	return `{
  "simulated_reception": "would likely pause and consider it",
  "scores": {"relevance": 8, "timing": 7, "tone": 8, "actionability": 7, "emotional_impact": 6, "engagement_likelihood": 7},
  "overall_effectiveness": ` + itoa(overall) + `,
  "recommended_action": "` + action + `"
}`
}

func itoa(n int) string {
	return string(rune('0' + n))
}

func TestPipeline_AcceptedRun(t *testing.T) {
	client := &scriptedClient{responses: []string{
		draftJSON("check_in"),
		simulationJSON(7, ActionKeepAsIs),
	}}
	p := New(client, zap.NewNop())

	out, err := p.Run(context.Background(), "recent context")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.Accepted {
		t.Fatal("expected gate to accept score 7 / KEEP_AS_IS")
	}
	if out.Draft.MessageType != "check_in" {
		t.Fatalf("message type: %s", out.Draft.MessageType)
	}
	if out.Draft.Message != testMessage {
		t.Fatalf("message body changed: %q", out.Draft.Message)
	}
	if out.Simulation.Scores.Relevance != 8 {
		t.Fatalf("scores not decoded: %+v", out.Simulation.Scores)
	}
}

func TestPipeline_GateRejectsLowScore(t *testing.T) {
	client := &scriptedClient{responses: []string{
		draftJSON("encouragement"),
		simulationJSON(5, ActionMinorAdjustments),
	}}
	p := New(client, zap.NewNop())

	out, err := p.Run(context.Background(), "ctx")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Accepted {
		t.Fatal("score 5 with MINOR_ADJUSTMENTS must be rejected")
	}
}

func TestPipeline_GateRejectsSkipAction(t *testing.T) {
	client := &scriptedClient{responses: []string{
		draftJSON("reminder"),
		simulationJSON(9, ActionSkipMessage),
	}}
	p := New(client, zap.NewNop())

	out, err := p.Run(context.Background(), "ctx")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Accepted {
		t.Fatal("SKIP_MESSAGE must be rejected regardless of score")
	}
}

func TestPipeline_DraftParseError(t *testing.T) {
	client := &scriptedClient{responses: []string{"sorry, I cannot help with that"}}
	p := New(client, zap.NewNop())

	_, err := p.Run(context.Background(), "ctx")
	if !errors.Is(err, ErrDraftParse) {
		t.Fatalf("want ErrDraftParse, got %v", err)
	}
}

func TestPipeline_SimulationParseError(t *testing.T) {
	client := &scriptedClient{responses: []string{
		draftJSON("challenge"),
		`{"overall_effectiveness": "very good"}`,
	}}
	p := New(client, zap.NewNop())

	_, err := p.Run(context.Background(), "ctx")
	if !errors.Is(err, ErrSimulationParse) {
		t.Fatalf("want ErrSimulationParse, got %v", err)
	}
}

func TestPipeline_UnknownTypeCoerced(t *testing.T) {
	client := &scriptedClient{responses: []string{
		draftJSON("pep_talk"),
		simulationJSON(8, ActionKeepAsIs),
	}}
	p := New(client, zap.NewNop())

	out, err := p.Run(context.Background(), "ctx")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Draft.MessageType != "unknown" {
		t.Fatalf("want unknown, got %s", out.Draft.MessageType)
	}
}

func TestGatePasses_Threshold(t *testing.T) {
	sim := Simulation{OverallEffectiveness: EffectivenessThreshold, RecommendedAction: ActionMajorRevision}
	if !GatePasses(sim) {
		t.Fatal("score at threshold without SKIP must pass")
	}
	sim.OverallEffectiveness = EffectivenessThreshold - 1
	if GatePasses(sim) {
		t.Fatal("score below threshold must fail")
	}
}
