// Package orchestrator drives a claim run through the fixed five-stage
// pipeline. The orchestrator owns the run for its lifetime: it is the only
// writer of run state and the only committer of stage contributions to the
// run context.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/medirun/medisuite/internal/agent"
	"github.com/medirun/medisuite/internal/audit"
	"github.com/medirun/medisuite/internal/claim"
)

// StageRunLevel is the audit stage id for run-level transitions that belong
// to no single stage.
const StageRunLevel = "orchestrator"

// Runner executes runs sequentially through the registered agents.
// It is safe for concurrent use: each Process call owns its run exclusively
// and the audit sink serializes appends.
type Runner struct {
	agents   [claim.StageCount]agent.StageAgent
	sink     audit.Sink
	progress *ProgressReporter
}

// NewRunner wires the five stage agents. Every pipeline slot must be filled
// and each agent must sit in its own slot.
func NewRunner(agents []agent.StageAgent, sink audit.Sink) (*Runner, error) {
	r := &Runner{
		sink:     sink,
		progress: NewProgressReporter(),
	}
	for _, a := range agents {
		s := a.Stage()
		if s < 0 || int(s) >= claim.StageCount {
			return nil, fmt.Errorf("orchestrator: agent for unknown stage %d", s)
		}
		if r.agents[s] != nil {
			return nil, fmt.Errorf("orchestrator: duplicate agent for stage %s", s)
		}
		r.agents[s] = a
	}
	for s := range claim.StageCount {
		if r.agents[s] == nil {
			return nil, fmt.Errorf("orchestrator: no agent for stage %s", claim.Stage(s))
		}
	}
	return r, nil
}

// Progress returns a channel that emits progress events across all runs.
func (r *Runner) Progress() <-chan ProgressEvent {
	return r.progress.Subscribe()
}

// Close shuts down the progress reporter. Call when no Process call is in
// flight.
func (r *Runner) Close() {
	r.progress.Close()
}

// Process executes the run to a terminal status. Stage failures never come
// back as an error: they halt or degrade the run and the run record tells
// the story. The returned error covers infrastructure faults only, such as
// an unreachable audit sink.
func (r *Runner) Process(ctx context.Context, run *claim.Run) error {
	if err := run.Transition(claim.RunRunning); err != nil {
		return err
	}
	if err := r.append(ctx, audit.NewEntry(run.ID, StageRunLevel, string(claim.RunRunning))); err != nil {
		return err
	}

	for s := range claim.StageCount {
		stage := claim.Stage(s)
		res := r.runStage(ctx, stage, run)

		if res.Status.Completed() && res.Contribution != nil {
			if err := run.Context.Apply(res.Contribution); err != nil {
				res = &claim.StageResult{
					Stage:    stage,
					Status:   claim.StatusHardFail,
					Duration: res.Duration,
					Err:      err.Error(),
				}
			}
		}
		if err := run.Record(res); err != nil {
			return err
		}
		if err := r.auditStage(ctx, run, res); err != nil {
			return err
		}

		if res.Status == claim.StatusHardFail {
			r.progress.Emit(ProgressEvent{RunID: run.ID, Stage: stage, Status: ProgressFailed, Message: res.Err})
			return r.finish(ctx, run, claim.RunHalted, res.Err)
		}
		r.progress.Emit(ProgressEvent{RunID: run.ID, Stage: stage, Status: ProgressComplete})
	}

	if assessment, ok := run.Context.Assessment(); ok {
		run.Assessment = assessment
	}
	return r.finish(ctx, run, claim.RunCompleted, "")
}

// runStage invokes the stage agent, guarding against cancellation on both
// sides of the call. A contribution from a cancelled stage is never
// committed, keeping the context free of partial writes.
func (r *Runner) runStage(ctx context.Context, stage claim.Stage, run *claim.Run) *claim.StageResult {
	if err := ctx.Err(); err != nil {
		return &claim.StageResult{
			Stage:  stage,
			Status: claim.StatusHardFail,
			Err:    fmt.Sprintf("run cancelled before %s: %v", stage, err),
		}
	}

	r.progress.Emit(ProgressEvent{RunID: run.ID, Stage: stage, Status: ProgressWorking})
	start := time.Now()
	res := r.agents[stage].Execute(ctx, run)
	if res == nil {
		res = &claim.StageResult{
			Stage:  stage,
			Status: claim.StatusHardFail,
			Err:    fmt.Sprintf("stage %s returned no result", stage),
		}
	}
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}

	if err := ctx.Err(); err != nil {
		return &claim.StageResult{
			Stage:    stage,
			Status:   claim.StatusHardFail,
			Duration: res.Duration,
			Err:      fmt.Sprintf("run cancelled during %s: %v", stage, err),
		}
	}
	return res
}

func (r *Runner) finish(ctx context.Context, run *claim.Run, to claim.RunStatus, reason string) error {
	if err := run.Transition(to); err != nil {
		return err
	}
	e := audit.NewEntry(run.ID, StageRunLevel, string(to))
	e.Err = reason
	if err := r.append(ctx, e); err != nil {
		return err
	}
	log.Printf("orchestrator: run %s %s", run.ID, to)
	return nil
}

func (r *Runner) auditStage(ctx context.Context, run *claim.Run, res *claim.StageResult) error {
	e := audit.NewEntry(run.ID, res.Stage.String(), string(res.Status))
	e.InputSummary = stageInput(run, res.Stage)
	e.OutputSummary = res.Detail
	e.Err = res.Err
	return r.append(ctx, e)
}

// append writes to the sink with a background-derived context so a cancelled
// run still leaves a complete trail.
func (r *Runner) append(ctx context.Context, e audit.Entry) error {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	if err := r.sink.Append(ctx, e); err != nil {
		return fmt.Errorf("orchestrator: audit append: %w", err)
	}
	return nil
}

// stageInput summarizes what the stage consumed, for the audit trail.
func stageInput(run *claim.Run, stage claim.Stage) string {
	switch stage {
	case claim.StagePatientData:
		return fmt.Sprintf("submission for patient %s (%d bytes of notes)",
			run.Submission.PatientID, len(run.Submission.ClinicalNotes))
	case claim.StageDocumentCode:
		if p, ok := run.Context.Patient(); ok {
			return fmt.Sprintf("%d diagnoses, %d procedures", len(p.Diagnoses), len(p.Procedures))
		}
	case claim.StageCoverageValidation:
		if c, ok := run.Context.Coding(); ok {
			return fmt.Sprintf("policy %s, %d CPT-4 codes", run.Submission.Insurance.PolicyNumber, len(c.CPT4))
		}
	case claim.StageClaimGeneration:
		if cov, ok := run.Context.Coverage(); ok {
			return fmt.Sprintf("coverage %s, policy %s", cov.Status, cov.PolicyNumber)
		}
	case claim.StageTriage:
		statuses := make([]string, 0, claim.StageCount)
		for _, res := range run.Results {
			if res != nil {
				statuses = append(statuses, string(res.Status))
			}
		}
		return fmt.Sprintf("stage statuses: %v", statuses)
	}
	return ""
}
