// Package chat answers free-text questions about codes, policies, and
// processed claims. Routing is a small set of regex intents; there is no
// dialogue state.
package chat

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/medirun/medisuite/internal/claim"
	"github.com/medirun/medisuite/internal/refdata"
	"github.com/medirun/medisuite/internal/service"
)

// Router matches a message against the known intents, most specific first.
type Router struct {
	tables *refdata.Tables
	svc    *service.Service
}

func NewRouter(tables *refdata.Tables, svc *service.Service) *Router {
	return &Router{tables: tables, svc: svc}
}

var (
	claimIDRe  = regexp.MustCompile(`\bCLM-[A-F0-9]{8}\b`)
	policyRe   = regexp.MustCompile(`\b[A-Z]{3}\d{6}\b`)
	icd10Re    = regexp.MustCompile(`\b[A-Z]\d{2}(?:\.\d{1,4})?\b`)
	cpt4Re     = regexp.MustCompile(`\b\d{5}\b`)
	decisionRe = regexp.MustCompile(`(?i)\b(denied|deny|approved|approve|review)\b`)
)

// Reply produces the answer for one message.
func (r *Router) Reply(msg string) string {
	msg = strings.TrimSpace(msg)
	lower := strings.ToLower(msg)

	switch {
	case msg == "" || strings.Contains(lower, "help"):
		return helpText

	case claimIDRe.MatchString(msg):
		return r.claimStatus(claimIDRe.FindString(msg))

	case policyRe.MatchString(msg):
		return r.policyLookup(policyRe.FindString(msg))

	case icd10Re.MatchString(msg):
		return r.icd10Lookup(icd10Re.FindString(msg))

	case cpt4Re.MatchString(msg):
		return r.cpt4Lookup(cpt4Re.FindString(msg))

	case strings.Contains(lower, "claim") && decisionRe.MatchString(msg):
		return r.claimsByDecision(decisionRe.FindString(lower))

	case strings.Contains(lower, "summary") || strings.Contains(lower, "status"):
		return r.summary()
	}

	return "I did not understand that. Ask \"help\" to see what I can look up."
}

const helpText = `I can look up:
  - an ICD-10 code (e.g. "what is J10.1")
  - a CPT-4 code (e.g. "rate for 99213")
  - a policy (e.g. "is HCI834512 active")
  - a claim (e.g. "status of CLM-1A2B3C4D")
  - processed claims by decision (e.g. "show denied claims")
  - an overall summary ("summary")`

func (r *Router) icd10Lookup(code string) string {
	c, ok := r.tables.ICD10(code)
	if !ok {
		return fmt.Sprintf("ICD-10 code %s is not in the code table.", code)
	}
	return fmt.Sprintf("%s: %s", c.Code, c.Description)
}

func (r *Router) cpt4Lookup(code string) string {
	c, ok := r.tables.CPT4(code)
	if !ok {
		return fmt.Sprintf("CPT-4 code %s is not in the code table.", code)
	}
	return fmt.Sprintf("%s: %s (%s, base rate $%s)", c.Code, c.Description, c.Category, c.BaseRate.StringFixed(2))
}

func (r *Router) policyLookup(number string) string {
	p, ok := r.tables.Policy(number)
	if !ok {
		return fmt.Sprintf("Policy %s is not in the policy database.", number)
	}
	return fmt.Sprintf("Policy %s (%s, %s): coverage %s, effective %s through %s, covers %s.",
		p.PolicyNumber, p.Provider, p.PlanType, p.Coverage,
		p.Effective.Format("2006-01-02"), p.Expiry.Format("2006-01-02"),
		strings.Join(p.CoveredServices, ", "))
}

func (r *Router) claimStatus(claimID string) string {
	for _, run := range r.svc.ListRuns() {
		ref, ok := run.Context.Artifact()
		if !ok || ref.ClaimID != claimID {
			continue
		}
		if run.Assessment != nil {
			return fmt.Sprintf("Claim %s: run %s is %s, decision %s (confidence %.2f).",
				claimID, run.ID, run.Status, run.Assessment.Decision, run.Assessment.Confidence)
		}
		return fmt.Sprintf("Claim %s: run %s is %s.", claimID, run.ID, run.Status)
	}
	return fmt.Sprintf("No processed claim with id %s.", claimID)
}

func (r *Router) claimsByDecision(word string) string {
	want := normalizeDecision(word)
	var lines []string
	for _, run := range r.svc.ListRuns() {
		if run.Assessment == nil || run.Assessment.Decision != want {
			continue
		}
		id := run.ID
		if ref, ok := run.Context.Artifact(); ok {
			id = ref.ClaimID
		}
		lines = append(lines, fmt.Sprintf("  %s — patient %s, confidence %.2f",
			id, run.Submission.PatientID, run.Assessment.Confidence))
	}
	if len(lines) == 0 {
		return fmt.Sprintf("No claims with decision %s.", want)
	}
	return fmt.Sprintf("Claims with decision %s:\n%s", want, strings.Join(lines, "\n"))
}

func (r *Router) summary() string {
	runs := r.svc.ListRuns()
	counts := map[claim.Decision]int{}
	halted := 0
	for _, run := range runs {
		if run.Status == claim.RunHalted {
			halted++
			continue
		}
		if run.Assessment != nil {
			counts[run.Assessment.Decision]++
		}
	}
	return fmt.Sprintf("%d runs processed: %d approved, %d denied, %d for review, %d halted.",
		len(runs), counts[claim.DecisionApprove], counts[claim.DecisionDeny], counts[claim.DecisionReview], halted)
}

func normalizeDecision(word string) claim.Decision {
	switch strings.ToLower(word) {
	case "denied", "deny":
		return claim.DecisionDeny
	case "review":
		return claim.DecisionReview
	default:
		return claim.DecisionApprove
	}
}
