package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/medirun/medisuite/internal/claim"
	"github.com/medirun/medisuite/internal/inference"
	"github.com/medirun/medisuite/internal/triage"
)

// TriageAgent produces the final risk assessment. The decision, risk factors,
// and confidence always come from the deterministic rule engine; the remote
// capability is only used to write a richer justification narrative, so the
// outcome is identical whichever path ran. This stage cannot hard-fail: by
// the time it runs there is always enough context to assess.
type TriageAgent struct {
	fb     Fallback
	engine *triage.Engine
}

func NewTriageAgent(client inference.Client, timeout time.Duration, engine *triage.Engine) *TriageAgent {
	return &TriageAgent{
		fb:     Fallback{Client: client, Timeout: timeout},
		engine: engine,
	}
}

var _ StageAgent = (*TriageAgent)(nil)

func (a *TriageAgent) Stage() claim.Stage { return claim.StageTriage }

func (a *TriageAgent) Execute(ctx context.Context, run *claim.Run) *claim.StageResult {
	start := time.Now()

	assessment := a.engine.Evaluate(run.Context, run.Results[:claim.StageTriage])

	narrative, path, err := Resolve(ctx, a.fb,
		func(rctx context.Context) (string, error) {
			return a.narrateRemote(rctx, &assessment)
		},
		func() (string, error) {
			return assessment.Justification, nil
		},
	)
	if err != nil {
		// Cancellation mid-narration; the assessment itself is done, but the
		// run is being torn down.
		return hardFail(claim.StageTriage, fmt.Sprintf("triage: %v", err))
	}
	assessment.Justification = narrative

	status := claim.StatusSuccess
	if path == PathLocal {
		status = claim.StatusSuccessViaFallback
	}

	return &claim.StageResult{
		Stage:        claim.StageTriage,
		Status:       status,
		Duration:     time.Since(start),
		Detail:       fmt.Sprintf("%s (confidence %.2f)", assessment.Decision, assessment.Confidence),
		Contribution: &claim.Contribution{Assessment: &assessment},
	}
}

// narrateRemote asks the capability to restate the rule engine's findings as
// prose. The decision and factors are fixed inputs; only wording may differ.
func (a *TriageAgent) narrateRemote(ctx context.Context, assessment *claim.RiskAssessment) (string, error) {
	input, err := json.Marshal(assessment)
	if err != nil {
		return "", fmt.Errorf("triage: encode assessment: %w", err)
	}
	resp, err := a.fb.Client.Infer(ctx, inference.Request{
		System: "You are a claims triage reviewer. Restate the given decision and risk factors " +
			"as a short plain-language justification. Do not change the decision. Return plain text.",
		Prompt: string(input),
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("triage: empty narrative")
	}
	return text, nil
}
