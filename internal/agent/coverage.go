package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/medirun/medisuite/internal/claim"
	"github.com/medirun/medisuite/internal/refdata"
)

// CoverageValidationAgent checks the submission's policy against the policy
// database. It is fully deterministic and never uses an inference capability:
// coverage is a lookup problem, not an extraction problem. Unknown or invalid
// policies are business data for triage, not stage failures.
type CoverageValidationAgent struct {
	tables *refdata.Tables
	now    func() time.Time
}

func NewCoverageValidationAgent(tables *refdata.Tables) *CoverageValidationAgent {
	return &CoverageValidationAgent{tables: tables, now: time.Now}
}

var _ StageAgent = (*CoverageValidationAgent)(nil)

func (a *CoverageValidationAgent) Stage() claim.Stage { return claim.StageCoverageValidation }

func (a *CoverageValidationAgent) Execute(ctx context.Context, run *claim.Run) *claim.StageResult {
	start := time.Now()

	coding, ok := run.Context.Coding()
	if !ok {
		return hardFail(claim.StageCoverageValidation, "coverage validation: coding absent from run context")
	}

	det := a.determine(run.Submission.Insurance, coding)

	return &claim.StageResult{
		Stage:        claim.StageCoverageValidation,
		Status:       claim.StatusSuccess,
		Duration:     time.Since(start),
		Detail:       fmt.Sprintf("policy %s: %s", det.PolicyNumber, det.Status),
		Contribution: &claim.Contribution{Coverage: det},
	}
}

func (a *CoverageValidationAgent) determine(ins claim.InsuranceDetails, coding *claim.Coding) *claim.CoverageDetermination {
	number := strings.TrimSpace(ins.PolicyNumber)

	pol, found := a.tables.Policy(number)
	if !found {
		return &claim.CoverageDetermination{
			Status:       claim.CoverageNotCovered,
			PolicyFound:  false,
			PolicyNumber: number,
			Reason:       fmt.Sprintf("Policy %s not found in the policy database.", number),
		}
	}

	det := &claim.CoverageDetermination{
		PolicyFound:  true,
		PolicyNumber: pol.PolicyNumber,
		Provider:     pol.Provider,
		PlanType:     pol.PlanType,
	}

	now := a.now().UTC()
	active := pol.ActiveAt(now)
	det.Checks = append(det.Checks, claim.CoverageCheck{
		Name:   "policy-active",
		Passed: active,
		Detail: fmt.Sprintf("effective %s through %s", pol.Effective.Format("2006-01-02"), pol.Expiry.Format("2006-01-02")),
	})

	covValid := pol.CoverageValid()
	det.Checks = append(det.Checks, claim.CoverageCheck{
		Name:   "coverage-valid",
		Passed: covValid,
		Detail: fmt.Sprintf("coverage marked %q", pol.Coverage),
	})

	providerMatch := ins.Provider == "" || strings.EqualFold(strings.TrimSpace(ins.Provider), pol.Provider)
	det.Checks = append(det.Checks, claim.CoverageCheck{
		Name:   "provider-match",
		Passed: providerMatch,
		Detail: fmt.Sprintf("submitted %q, on file %q", ins.Provider, pol.Provider),
	})

	var uncovered []string
	for _, c := range coding.CPT4 {
		ref, ok := a.tables.CPT4(c.Value)
		if !ok || !pol.Covers(ref.Category) {
			uncovered = append(uncovered, c.Value)
		}
	}
	det.FullCoverage = len(uncovered) == 0
	det.Checks = append(det.Checks, claim.CoverageCheck{
		Name:   "services-covered",
		Passed: det.FullCoverage,
		Detail: servicesDetail(uncovered),
	})

	switch {
	case !active && now.After(pol.Expiry):
		det.Status = claim.CoverageExpired
		det.Reason = fmt.Sprintf("Policy %s expired on %s.", pol.PolicyNumber, pol.Expiry.Format("2006-01-02"))
	case !active:
		det.Status = claim.CoverageNotCovered
		det.Reason = fmt.Sprintf("Policy %s is not yet effective (starts %s).", pol.PolicyNumber, pol.Effective.Format("2006-01-02"))
	case !covValid:
		det.Status = claim.CoverageNotCovered
		det.Reason = fmt.Sprintf("Policy %s coverage is marked %q.", pol.PolicyNumber, pol.Coverage)
	case !providerMatch:
		det.Status = claim.CoverageNotCovered
		det.Reason = fmt.Sprintf("Submitted provider %q does not match %q on file.", ins.Provider, pol.Provider)
	case !det.FullCoverage:
		det.Status = claim.CoverageCovered
		det.Reason = fmt.Sprintf("Policy is active but does not cover: %s.", strings.Join(uncovered, ", "))
	default:
		det.Status = claim.CoverageCovered
		det.Reason = "Policy is active and all billed service categories are covered."
	}
	return det
}

func servicesDetail(uncovered []string) string {
	if len(uncovered) == 0 {
		return "all billed service categories covered"
	}
	return "not covered: " + strings.Join(uncovered, ", ")
}
