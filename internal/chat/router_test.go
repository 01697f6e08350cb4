package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medirun/medisuite/internal/agent"
	"github.com/medirun/medisuite/internal/artifact"
	"github.com/medirun/medisuite/internal/audit"
	"github.com/medirun/medisuite/internal/claim"
	"github.com/medirun/medisuite/internal/orchestrator"
	"github.com/medirun/medisuite/internal/refdata"
	"github.com/medirun/medisuite/internal/service"
	"github.com/medirun/medisuite/internal/triage"
)

func newRouter(t *testing.T) (*Router, *service.Service) {
	t.Helper()
	tables, err := refdata.Load("")
	require.NoError(t, err)

	sink := audit.NewMemorySink()
	agents := []agent.StageAgent{
		agent.NewPatientDataAgent(nil, 0),
		agent.NewDocumentCodeAgent(nil, 0, tables),
		agent.NewCoverageValidationAgent(tables),
		agent.NewClaimGenerationAgent(artifact.NewMemStore(), false),
		agent.NewTriageAgent(nil, 0, triage.NewEngine(triage.Config{})),
	}
	runner, err := orchestrator.NewRunner(agents, sink)
	require.NoError(t, err)
	t.Cleanup(runner.Close)
	svc := service.New(runner, sink)
	return NewRouter(tables, svc), svc
}

func submitOne(t *testing.T, svc *service.Service, policy string) *claim.Run {
	t.Helper()
	run, err := svc.Submit(context.Background(), claim.Submission{
		PatientID:     "PT-1001",
		Name:          "Jane Doe",
		DOB:           "1985-04-12",
		Insurance:     claim.InsuranceDetails{PolicyNumber: policy, Provider: ""},
		ClinicalNotes: "Fever and cough. Rapid influenza test positive. Office visit.",
	})
	require.NoError(t, err)
	return run
}

func TestReplyICD10Lookup(t *testing.T) {
	r, _ := newRouter(t)

	assert.Contains(t, r.Reply("what is J10.1?"), "Influenza")
	assert.Contains(t, r.Reply("what is Z99.9?"), "not in the code table")
}

func TestReplyCPT4Lookup(t *testing.T) {
	r, _ := newRouter(t)

	got := r.Reply("rate for 99213")

	assert.Contains(t, got, "Office")
	assert.Contains(t, got, "$125.00")
}

func TestReplyPolicyLookup(t *testing.T) {
	r, _ := newRouter(t)

	got := r.Reply("is HCI834512 active?")

	assert.Contains(t, got, "HealthCare Inc.")
	assert.Contains(t, got, "Valid")
}

func TestReplyClaimStatus(t *testing.T) {
	r, svc := newRouter(t)
	run := submitOne(t, svc, "HCI834512")
	ref, ok := run.Context.Artifact()
	require.True(t, ok)

	got := r.Reply("status of " + ref.ClaimID)

	assert.Contains(t, got, ref.ClaimID)
	assert.Contains(t, got, "Approve")
}

func TestReplyClaimsByDecision(t *testing.T) {
	r, svc := newRouter(t)
	submitOne(t, svc, "HCI834512") // approves
	submitOne(t, svc, "AET221009") // expired policy denies

	denied := r.Reply("show denied claims")
	assert.Contains(t, denied, "Deny")
	assert.Contains(t, denied, "PT-1001")

	review := r.Reply("show claims under review")
	assert.Contains(t, review, "No claims with decision Review")
}

func TestReplySummary(t *testing.T) {
	r, svc := newRouter(t)
	submitOne(t, svc, "HCI834512")
	submitOne(t, svc, "AET221009")

	got := r.Reply("summary")

	assert.Contains(t, got, "2 runs processed")
	assert.Contains(t, got, "1 approved")
	assert.Contains(t, got, "1 denied")
}

func TestReplyHelpAndUnknown(t *testing.T) {
	r, _ := newRouter(t)

	assert.Contains(t, r.Reply("help"), "ICD-10")
	assert.Contains(t, r.Reply(""), "ICD-10")
	assert.Contains(t, r.Reply("sing me a song"), "did not understand")
}
