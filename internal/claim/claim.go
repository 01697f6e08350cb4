// Package claim defines the data model for a single claim-processing run:
// the immutable submission, the run record with its stage results, and the
// final risk assessment.
package claim

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage identifies a pipeline stage (0–4).
type Stage int

const (
	StagePatientData        Stage = 0
	StageDocumentCode       Stage = 1
	StageCoverageValidation Stage = 2
	StageClaimGeneration    Stage = 3
	StageTriage             Stage = 4
)

// StageCount is the number of stages in the fixed pipeline.
const StageCount = 5

func (s Stage) String() string {
	names := [...]string{
		"patient-data",
		"document-code",
		"coverage-validation",
		"claim-generation",
		"triage",
	}
	if s >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// StageStatus is the outcome of one stage execution.
type StageStatus string

const (
	// StatusSuccess means the stage completed using its remote path.
	StatusSuccess StageStatus = "success"

	// StatusSuccessViaFallback means the stage completed using its local
	// fallback after the remote attempt failed or was not configured.
	StatusSuccessViaFallback StageStatus = "success_via_fallback"

	// StatusSoftFail means a business-data gap: the run continues with
	// reduced confidence and the gap is surfaced as a risk factor.
	StatusSoftFail StageStatus = "soft_fail"

	// StatusHardFail means the run cannot meaningfully continue.
	StatusHardFail StageStatus = "hard_fail"
)

// Completed reports whether the stage produced a usable contribution.
func (s StageStatus) Completed() bool {
	return s == StatusSuccess || s == StatusSuccessViaFallback || s == StatusSoftFail
}

// StageResult is the immutable record of one stage execution.
type StageResult struct {
	Stage    Stage         `json:"stage"`
	Status   StageStatus   `json:"status"`
	Duration time.Duration `json:"duration"`

	// Detail is a short human-readable summary of what the stage did.
	Detail string `json:"detail,omitempty"`

	// Err carries failure detail for SoftFail and HardFail results.
	Err string `json:"error,omitempty"`

	// Contribution is the stage's addition to the run Context. It is nil on
	// HardFail and is committed by the orchestrator only after the stage
	// returns, never while it is in flight.
	Contribution *Contribution `json:"-"`
}

// InsuranceDetails identifies the patient's policy.
type InsuranceDetails struct {
	PolicyNumber string `json:"policy_number"`
	Provider     string `json:"provider"`
}

// Submission is the immutable input to one run: structured patient fields
// plus free-text clinical notes. It is never mutated after creation.
type Submission struct {
	PatientID     string           `json:"patient_id"`
	Name          string           `json:"name"`
	DOB           string           `json:"dob"`
	Gender        string           `json:"gender,omitempty"`
	Phone         string           `json:"phone,omitempty"`
	Address       string           `json:"address,omitempty"`
	Insurance     InsuranceDetails `json:"insurance_details"`
	ClinicalNotes string           `json:"clinical_notes"`
}

// ValidationError reports a malformed submission rejected before a run is
// created.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("claim: invalid submission: missing %s", strings.Join(e.Missing, ", "))
}

// Validate rejects submissions that are structurally unusable. Business-data
// gaps (empty notes, unknown policy) are not validation faults; they are
// handled by the stages.
func (s Submission) Validate() error {
	var missing []string
	if strings.TrimSpace(s.PatientID) == "" {
		missing = append(missing, "patient_id")
	}
	if strings.TrimSpace(s.Name) == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// RunStatus is the overall state of a ClaimRun.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunHalted    RunStatus = "halted_on_failure"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunHalted
}

// CanTransition reports whether to is a legal successor of s.
func (s RunStatus) CanTransition(to RunStatus) bool {
	switch s {
	case RunPending:
		return to == RunRunning
	case RunRunning:
		return to == RunCompleted || to == RunHalted
	default:
		return false
	}
}

// Run is one execution instance bound to a Submission. It is owned
// exclusively by the orchestrator for the run's lifetime and becomes
// read-only once it reaches a terminal status.
type Run struct {
	ID         string                   `json:"id"`
	Submission Submission               `json:"submission"`
	Status     RunStatus                `json:"status"`
	Results    [StageCount]*StageResult `json:"results"`
	Assessment *RiskAssessment          `json:"assessment,omitempty"`
	Context    *Context                 `json:"-"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// NewRun creates a pending run for the given submission.
func NewRun(sub Submission) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:         uuid.NewString(),
		Submission: sub,
		Status:     RunPending,
		Context:    NewContext(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Transition moves the run to the given status, enforcing the state machine
// Pending → Running → {Completed, HaltedOnFailure}.
func (r *Run) Transition(to RunStatus) error {
	if !r.Status.CanTransition(to) {
		return fmt.Errorf("claim: illegal run transition %s → %s", r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Record fills the result slot for the result's stage. Slots for stages that
// never executed remain nil, not defaulted.
func (r *Run) Record(res *StageResult) error {
	if res.Stage < 0 || int(res.Stage) >= StageCount {
		return fmt.Errorf("claim: result for unknown stage %d", res.Stage)
	}
	if r.Results[res.Stage] != nil {
		return fmt.Errorf("claim: result for stage %s already recorded", res.Stage)
	}
	r.Results[res.Stage] = res
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Decision is the final triage outcome.
type Decision string

const (
	DecisionApprove Decision = "Approve"
	DecisionDeny    Decision = "Deny"
	DecisionReview  Decision = "Review"
)

// MoreRestrictive reports whether d outranks other, ordered
// Deny > Review > Approve.
func (d Decision) MoreRestrictive(other Decision) bool {
	return decisionRank(d) > decisionRank(other)
}

func decisionRank(d Decision) int {
	switch d {
	case DecisionDeny:
		return 2
	case DecisionReview:
		return 1
	default:
		return 0
	}
}

// RiskFactor is a named, rule-attributed signal contributing to the triage
// decision.
type RiskFactor struct {
	Name     string `json:"name"`
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
	Detail   string `json:"detail,omitempty"`
}

// RiskAssessment is the final triage output.
type RiskAssessment struct {
	Decision      Decision      `json:"decision"`
	Confidence    float64       `json:"confidence"`
	Justification string        `json:"justification"`
	RiskFactors   []RiskFactor  `json:"risk_factors"`

	// ContributingStatuses is the set of stage statuses that fed the
	// decision, in stage order.
	ContributingStatuses []StageStatus `json:"contributing_statuses"`
}
