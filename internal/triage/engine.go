// Package triage holds the deterministic rule engine that turns the
// accumulated run context and stage history into the final decision.
package triage

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/medirun/medisuite/internal/claim"
)

// Rule identifiers attached to every risk factor they trigger.
const (
	RuleCoverageDeny    = "coverage-deny"
	RuleStageSoftFail   = "stage-softfail"
	RuleHighCost        = "high-cost"
	RulePartialCoverage = "partial-coverage"
	RuleCleanApprove    = "clean-approve"
)

// Config tunes the engine. Zero values are replaced by defaults.
type Config struct {
	// HighCostThreshold is the charge above which a claim is flagged for
	// review even with valid coverage.
	HighCostThreshold decimal.Decimal

	// FallbackPenalty is subtracted from confidence when any stage used its
	// local fallback instead of the remote capability.
	FallbackPenalty float64

	// RulePenalty is subtracted from confidence for every triggered rule
	// beyond the first.
	RulePenalty float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		HighCostThreshold: decimal.NewFromInt(10000),
		FallbackPenalty:   0.10,
		RulePenalty:       0.05,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HighCostThreshold.IsZero() {
		c.HighCostThreshold = def.HighCostThreshold
	}
	if c.FallbackPenalty == 0 {
		c.FallbackPenalty = def.FallbackPenalty
	}
	if c.RulePenalty == 0 {
		c.RulePenalty = def.RulePenalty
	}
	return c
}

// Engine evaluates the triage rules. It is stateless and safe for concurrent
// use across runs.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine with the given config.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Evaluate applies the rule set to the final context plus the stage history.
// It always produces an assessment; missing data degrades the decision and
// confidence rather than erroring. Multiple triggered rules accumulate risk
// factors and the most restrictive decision wins (Deny > Review > Approve).
func (e *Engine) Evaluate(ec *claim.Context, results []*claim.StageResult) claim.RiskAssessment {
	decision := claim.DecisionApprove
	var factors []claim.RiskFactor
	var reasons []string
	rulesFired := 0

	apply := func(d claim.Decision, reason string, fs ...claim.RiskFactor) {
		rulesFired++
		if d.MoreRestrictive(decision) {
			decision = d
		}
		reasons = append(reasons, reason)
		factors = append(factors, fs...)
	}

	// Coverage rules: not covered or expired denies outright, regardless of
	// other factors.
	coverage, hasCoverage := ec.Coverage()
	switch {
	case !hasCoverage:
		apply(claim.DecisionReview, "No coverage determination available.", claim.RiskFactor{
			Name:     "coverage-missing",
			RuleID:   RuleCoverageDeny,
			Severity: "high",
			Detail:   "Coverage validation never produced a determination.",
		})
	case coverage.Status == claim.CoverageExpired:
		apply(claim.DecisionDeny, fmt.Sprintf("Coverage validation failed: %s", coverage.Reason), claim.RiskFactor{
			Name:     "coverage-expired",
			RuleID:   RuleCoverageDeny,
			Severity: "high",
			Detail:   coverage.Reason,
		})
	case coverage.Status == claim.CoverageNotCovered:
		name := "coverage-invalid"
		if !coverage.PolicyFound {
			name = "coverage-not-found"
		}
		apply(claim.DecisionDeny, fmt.Sprintf("Coverage validation failed: %s", coverage.Reason), claim.RiskFactor{
			Name:     name,
			RuleID:   RuleCoverageDeny,
			Severity: "high",
			Detail:   coverage.Reason,
		})
	case !coverage.FullCoverage:
		apply(claim.DecisionReview, "Some billed services fall outside covered categories.", claim.RiskFactor{
			Name:     "partial-code-coverage",
			RuleID:   RulePartialCoverage,
			Severity: "medium",
			Detail:   coverage.Reason,
		})
	}

	// Any SoftFail anywhere forces Review, each one named.
	var softFactors []claim.RiskFactor
	anyFallback := false
	var statuses []claim.StageStatus
	for _, res := range results {
		if res == nil {
			continue
		}
		statuses = append(statuses, res.Status)
		if res.Status == claim.StatusSuccessViaFallback {
			anyFallback = true
		}
		if res.Status == claim.StatusSoftFail {
			softFactors = append(softFactors, claim.RiskFactor{
				Name:     fmt.Sprintf("%s-softfail", res.Stage),
				RuleID:   RuleStageSoftFail,
				Severity: "medium",
				Detail:   res.Err,
			})
		}
	}
	if len(softFactors) > 0 {
		details := make([]string, 0, len(softFactors))
		for _, f := range softFactors {
			details = append(details, f.Detail)
		}
		apply(claim.DecisionReview, strings.Join(details, " | "), softFactors...)
	}

	// High-cost claims get a human look even with valid coverage.
	if coding, ok := ec.Coding(); ok && coding.Charge.GreaterThan(e.cfg.HighCostThreshold) {
		apply(claim.DecisionReview, fmt.Sprintf("High-cost claim ($%s).", coding.Charge.StringFixed(2)), claim.RiskFactor{
			Name:     "high-cost",
			RuleID:   RuleHighCost,
			Severity: "high",
			Detail:   fmt.Sprintf("Charge $%s exceeds threshold $%s.", coding.Charge.StringFixed(2), e.cfg.HighCostThreshold.StringFixed(2)),
		})
	}

	justification := strings.Join(reasons, " | ")
	if rulesFired == 0 {
		justification = "All validations passed: coverage is active, codes are present, and the charge is within the normal range."
	}

	return claim.RiskAssessment{
		Decision:             decision,
		Confidence:           e.confidence(decision, rulesFired, anyFallback),
		Justification:        justification,
		RiskFactors:          factors,
		ContributingStatuses: statuses,
	}
}

// confidence derives the score from the decision's base, the number of
// triggered rules, and whether any fact came from a local fallback.
func (e *Engine) confidence(decision claim.Decision, rulesFired int, anyFallback bool) float64 {
	var conf float64
	switch decision {
	case claim.DecisionDeny:
		conf = 0.90
	case claim.DecisionReview:
		conf = 0.75
	default:
		conf = 0.95
	}
	if rulesFired > 1 {
		conf -= e.cfg.RulePenalty * float64(rulesFired-1)
	}
	if anyFallback {
		conf -= e.cfg.FallbackPenalty
	}
	if conf < 0.1 {
		conf = 0.1
	}
	return conf
}
