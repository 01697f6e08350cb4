// Package agent implements the five pipeline stages. Each agent reads the
// facts earlier stages committed to the run context and returns a StageResult
// carrying its own contribution; it never writes the context itself.
package agent

import (
	"context"

	"github.com/medirun/medisuite/internal/claim"
)

// StageAgent is one stage of the claim pipeline.
type StageAgent interface {
	// Stage identifies which pipeline slot this agent fills.
	Stage() claim.Stage

	// Execute runs the stage against the current run state. Failures are
	// reported through the result status, never as a Go error: the
	// orchestrator decides what a SoftFail or HardFail means for the run.
	Execute(ctx context.Context, run *claim.Run) *claim.StageResult
}

func hardFail(stage claim.Stage, errMsg string) *claim.StageResult {
	return &claim.StageResult{Stage: stage, Status: claim.StatusHardFail, Err: errMsg}
}
