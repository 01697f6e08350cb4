package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medirun/medisuite/internal/agent"
	"github.com/medirun/medisuite/internal/artifact"
	"github.com/medirun/medisuite/internal/audit"
	"github.com/medirun/medisuite/internal/claim"
	"github.com/medirun/medisuite/internal/kb"
	"github.com/medirun/medisuite/internal/orchestrator"
	"github.com/medirun/medisuite/internal/refdata"
	"github.com/medirun/medisuite/internal/triage"
)

const testNotes = `Patient presents with fever. Rapid influenza test positive. Office visit.
Provider: Dr. Sarah Chen
NPI: 1234567890`

func newService(t *testing.T) *Service {
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
	return New(runner, sink)
}

func validSubmission(patientID string) claim.Submission {
	return claim.Submission{
		PatientID:     patientID,
		Name:          "Jane Doe",
		DOB:           "1985-04-12",
		Insurance:     claim.InsuranceDetails{PolicyNumber: "HCI834512", Provider: "HealthCare Inc."},
		ClinicalNotes: testNotes,
	}
}

func TestSubmitProcessesToTerminalState(t *testing.T) {
	svc := newService(t)

	run, err := svc.Submit(context.Background(), validSubmission("PT-1001"))

	require.NoError(t, err)
	assert.Equal(t, claim.RunCompleted, run.Status)
	require.NotNil(t, run.Assessment)

	got, err := svc.GetRun(run.ID)
	require.NoError(t, err)
	assert.Same(t, run, got)
}

func TestSubmitRejectsInvalidSubmission(t *testing.T) {
	svc := newService(t)

	_, err := svc.Submit(context.Background(), claim.Submission{ClinicalNotes: "notes"})

	var verr *claim.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Missing, "patient_id")
	assert.Contains(t, verr.Missing, "name")
	// No run record exists for a rejected submission.
	assert.Equal(t, 0, len(svc.ListRuns()))
}

func TestGetRunUnknownID(t *testing.T) {
	svc := newService(t)

	_, err := svc.GetRun("nope")

	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSubmitBatchPreservesInputOrder(t *testing.T) {
	svc := newService(t)
	subs := make([]claim.Submission, 6)
	for i := range subs {
		subs[i] = validSubmission(fmt.Sprintf("PT-%04d", i))
	}

	runs, err := svc.SubmitBatch(context.Background(), subs)

	require.NoError(t, err)
	require.Len(t, runs, 6)
	for i, run := range runs {
		assert.Equal(t, fmt.Sprintf("PT-%04d", i), run.Submission.PatientID)
		assert.Equal(t, claim.RunCompleted, run.Status)
	}
	assert.Equal(t, 6, len(svc.ListRuns()))
}

func TestSubmitBatchRejectsOnAnyInvalidEntry(t *testing.T) {
	svc := newService(t)
	subs := []claim.Submission{validSubmission("PT-0001"), {}}

	_, err := svc.SubmitBatch(context.Background(), subs)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch entry 1")
	// Nothing ran: validation is all-or-nothing.
	assert.Equal(t, 0, len(svc.ListRuns()))
}

func TestSubmitIndexesKnowledgeBase(t *testing.T) {
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
	store := kb.NewStore()
	svc := New(runner, sink, WithKnowledgeBase(store))

	run, err := svc.Submit(context.Background(), validSubmission("PT-1001"))
	require.NoError(t, err)

	assert.Equal(t, 1, store.Count(kb.DocPatientData))
	assert.Equal(t, 1, store.Count(kb.DocTriageDecision))
	assert.Positive(t, store.Count(kb.DocICD10Code))

	docs := svc.SearchKB("influenza", kb.DocICD10Code, 3)
	require.NotEmpty(t, docs)
	assert.Equal(t, run.ID, docs[0].Fields["run_id"])
}

func TestSearchKBWithoutKnowledgeBase(t *testing.T) {
	svc := newService(t)

	assert.Nil(t, svc.SearchKB("anything", "", 3))
}

func TestAuditTrailSurvivesHaltedRuns(t *testing.T) {
	svc := newService(t)

	run, err := svc.Submit(context.Background(), validSubmission("PT-1001"))
	require.NoError(t, err)

	trail, err := svc.AuditTrail(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, trail, 7)
	for _, e := range trail {
		assert.Equal(t, run.ID, e.RunID)
	}
}
