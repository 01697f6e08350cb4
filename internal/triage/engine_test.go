package triage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medirun/medisuite/internal/claim"
)

func contextWith(t *testing.T, contrib *claim.Contribution) *claim.Context {
	t.Helper()
	ec := claim.NewContext()
	require.NoError(t, ec.Apply(contrib))
	return ec
}

func validCoverage() *claim.CoverageDetermination {
	return &claim.CoverageDetermination{
		Status:       claim.CoverageCovered,
		PolicyFound:  true,
		PolicyNumber: "HCI834512",
		Provider:     "HealthCare Inc.",
		FullCoverage: true,
		Reason:       "Policy active and all service categories covered.",
	}
}

func coding(charge int64) *claim.Coding {
	return &claim.Coding{
		ICD10:  []claim.Code{{Value: "J10.1", Description: "Influenza with respiratory manifestations"}},
		CPT4:   []claim.Code{{Value: "99213", Description: "Office visit, established patient"}},
		Charge: decimal.NewFromInt(charge),
	}
}

func success(stage claim.Stage) *claim.StageResult {
	return &claim.StageResult{Stage: stage, Status: claim.StatusSuccess}
}

func TestEvaluateCleanApprove(t *testing.T) {
	ec := contextWith(t, &claim.Contribution{Coverage: validCoverage(), Coding: coding(170)})
	results := []*claim.StageResult{
		success(claim.StagePatientData),
		success(claim.StageDocumentCode),
		success(claim.StageCoverageValidation),
		success(claim.StageClaimGeneration),
	}

	got := NewEngine(Config{}).Evaluate(ec, results)

	assert.Equal(t, claim.DecisionApprove, got.Decision)
	assert.Empty(t, got.RiskFactors)
	assert.InDelta(t, 0.95, got.Confidence, 1e-9)
	assert.Contains(t, got.Justification, "All validations passed")
	assert.Len(t, got.ContributingStatuses, 4)
}

func TestEvaluateApproveViaFallbackKeepsHighConfidence(t *testing.T) {
	ec := contextWith(t, &claim.Contribution{Coverage: validCoverage(), Coding: coding(170)})
	results := []*claim.StageResult{
		{Stage: claim.StagePatientData, Status: claim.StatusSuccessViaFallback},
		{Stage: claim.StageDocumentCode, Status: claim.StatusSuccessViaFallback},
		success(claim.StageCoverageValidation),
		success(claim.StageClaimGeneration),
	}

	got := NewEngine(Config{}).Evaluate(ec, results)

	assert.Equal(t, claim.DecisionApprove, got.Decision)
	assert.InDelta(t, 0.85, got.Confidence, 1e-9)
	assert.GreaterOrEqual(t, got.Confidence, 0.8)
}

func TestEvaluateExpiredCoverageDenies(t *testing.T) {
	cov := validCoverage()
	cov.Status = claim.CoverageExpired
	cov.FullCoverage = false
	cov.Reason = "Policy AET221009 expired on 2023-12-31."
	ec := contextWith(t, &claim.Contribution{Coverage: cov, Coding: coding(170)})

	got := NewEngine(Config{}).Evaluate(ec, []*claim.StageResult{success(claim.StageCoverageValidation)})

	assert.Equal(t, claim.DecisionDeny, got.Decision)
	require.Len(t, got.RiskFactors, 1)
	assert.Equal(t, "coverage-expired", got.RiskFactors[0].Name)
	assert.Equal(t, RuleCoverageDeny, got.RiskFactors[0].RuleID)
	assert.InDelta(t, 0.90, got.Confidence, 1e-9)
}

func TestEvaluateUnknownPolicyDenies(t *testing.T) {
	cov := &claim.CoverageDetermination{
		Status:       claim.CoverageNotCovered,
		PolicyFound:  false,
		PolicyNumber: "ZZZ000000",
		Reason:       "Policy ZZZ000000 not found.",
	}
	ec := contextWith(t, &claim.Contribution{Coverage: cov, Coding: coding(170)})

	got := NewEngine(Config{}).Evaluate(ec, []*claim.StageResult{success(claim.StageCoverageValidation)})

	assert.Equal(t, claim.DecisionDeny, got.Decision)
	require.Len(t, got.RiskFactors, 1)
	assert.Equal(t, "coverage-not-found", got.RiskFactors[0].Name)
}

func TestEvaluateHighCostTriggersReview(t *testing.T) {
	ec := contextWith(t, &claim.Contribution{Coverage: validCoverage(), Coding: coding(28525)})

	got := NewEngine(Config{}).Evaluate(ec, []*claim.StageResult{success(claim.StageCoverageValidation)})

	assert.Equal(t, claim.DecisionReview, got.Decision)
	require.Len(t, got.RiskFactors, 1)
	assert.Equal(t, "high-cost", got.RiskFactors[0].Name)
	assert.Equal(t, RuleHighCost, got.RiskFactors[0].RuleID)
	assert.InDelta(t, 0.75, got.Confidence, 1e-9)
}

func TestEvaluateHighCostThresholdIsExclusive(t *testing.T) {
	cfg := Config{HighCostThreshold: decimal.NewFromInt(200)}
	ec := contextWith(t, &claim.Contribution{Coverage: validCoverage(), Coding: coding(200)})

	got := NewEngine(cfg).Evaluate(ec, nil)

	assert.Equal(t, claim.DecisionApprove, got.Decision)
}

func TestEvaluateSoftFailsForceReviewAndAreNamed(t *testing.T) {
	ec := contextWith(t, &claim.Contribution{Coverage: validCoverage(), Coding: coding(170)})
	results := []*claim.StageResult{
		{Stage: claim.StagePatientData, Status: claim.StatusSoftFail, Err: "clinical notes missing"},
		{Stage: claim.StageDocumentCode, Status: claim.StatusSoftFail, Err: "no procedure codes matched"},
		success(claim.StageCoverageValidation),
	}

	got := NewEngine(Config{}).Evaluate(ec, results)

	assert.Equal(t, claim.DecisionReview, got.Decision)
	require.Len(t, got.RiskFactors, 2)
	assert.Equal(t, "patient-data-softfail", got.RiskFactors[0].Name)
	assert.Equal(t, "document-code-softfail", got.RiskFactors[1].Name)
	assert.Contains(t, got.Justification, "clinical notes missing")
	// One rule fired, so only the review base applies.
	assert.InDelta(t, 0.75, got.Confidence, 1e-9)
}

func TestEvaluateMostRestrictiveWins(t *testing.T) {
	cov := validCoverage()
	cov.Status = claim.CoverageExpired
	cov.Reason = "Policy expired."
	ec := contextWith(t, &claim.Contribution{Coverage: cov, Coding: coding(28525)})
	results := []*claim.StageResult{
		{Stage: claim.StagePatientData, Status: claim.StatusSoftFail, Err: "clinical notes missing"},
	}

	got := NewEngine(Config{}).Evaluate(ec, results)

	assert.Equal(t, claim.DecisionDeny, got.Decision)
	assert.Len(t, got.RiskFactors, 3)
	// Deny base minus two extra rules: 0.90 - 2*0.05.
	assert.InDelta(t, 0.80, got.Confidence, 1e-9)
}

func TestEvaluatePartialCoverage(t *testing.T) {
	cov := validCoverage()
	cov.FullCoverage = false
	cov.Reason = "Policy does not cover surgery."
	ec := contextWith(t, &claim.Contribution{Coverage: cov, Coding: coding(170)})

	got := NewEngine(Config{}).Evaluate(ec, nil)

	assert.Equal(t, claim.DecisionReview, got.Decision)
	require.Len(t, got.RiskFactors, 1)
	assert.Equal(t, "partial-code-coverage", got.RiskFactors[0].Name)
}

func TestEvaluateMissingCoverageReviews(t *testing.T) {
	got := NewEngine(Config{}).Evaluate(claim.NewContext(), nil)

	assert.Equal(t, claim.DecisionReview, got.Decision)
	require.Len(t, got.RiskFactors, 1)
	assert.Equal(t, "coverage-missing", got.RiskFactors[0].Name)
}

func TestConfidenceFloor(t *testing.T) {
	cfg := Config{RulePenalty: 0.40}
	cov := validCoverage()
	cov.Status = claim.CoverageExpired
	ec := contextWith(t, &claim.Contribution{Coverage: cov, Coding: coding(28525)})
	results := []*claim.StageResult{
		{Stage: claim.StagePatientData, Status: claim.StatusSoftFail, Err: "notes missing"},
	}

	got := NewEngine(cfg).Evaluate(ec, results)

	assert.InDelta(t, 0.10, got.Confidence, 1e-9)
}
