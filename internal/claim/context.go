package claim

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrFieldSet is returned when a stage attempts to overwrite a Context field
// that an earlier stage already populated. Fields are write-once per run:
// recomputation must be recorded as new data, never as a mutation.
var ErrFieldSet = errors.New("claim: context field already set")

// PatientFacts is the PatientData stage's contribution.
type PatientFacts struct {
	Valid            bool     `json:"valid"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
	NotesPresent     bool     `json:"notes_present"`
	Diagnoses        []string `json:"diagnoses"`
	Procedures       []string `json:"procedures"`
}

// Code is a standardized diagnosis or procedure code with its description.
type Code struct {
	Value       string `json:"code"`
	Description string `json:"description,omitempty"`
}

// Coding is the DocumentCode stage's contribution: matched codes, terms that
// could not be coded, and the computed total charge.
type Coding struct {
	ICD10     []Code          `json:"icd10_codes"`
	CPT4      []Code          `json:"cpt4_codes"`
	Unmatched []string        `json:"unmatched_terms,omitempty"`
	Charge    decimal.Decimal `json:"charge"`
}

// CoverageStatus is the outcome of coverage validation.
type CoverageStatus string

const (
	CoverageCovered    CoverageStatus = "covered"
	CoverageNotCovered CoverageStatus = "not_covered"
	CoverageExpired    CoverageStatus = "expired"
)

// CoverageCheck is one named validation check against the policy.
type CoverageCheck struct {
	Name   string `json:"check"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// CoverageDetermination is the CoverageValidation stage's contribution.
// An unknown policy is recorded here as NotCovered business data; it never
// halts the run.
type CoverageDetermination struct {
	Status       CoverageStatus  `json:"status"`
	PolicyFound  bool            `json:"policy_found"`
	PolicyNumber string          `json:"policy_number,omitempty"`
	Provider     string          `json:"provider,omitempty"`
	PlanType     string          `json:"plan_type,omitempty"`
	Checks       []CoverageCheck `json:"checks,omitempty"`
	FullCoverage bool            `json:"full_code_coverage"`
	Reason       string          `json:"reason"`
}

// ArtifactRef is the ClaimGeneration stage's contribution: the generated
// claim id and the storage reference of the rendered claim form.
type ArtifactRef struct {
	ClaimID string `json:"claim_id"`
	Ref     string `json:"ref"`
}

// Context is the per-run accumulator of extracted and derived facts. It is
// owned exclusively by the orchestrator and handed to each stage in turn;
// within a run it is never touched by more than one goroutine. Every field
// is write-once.
type Context struct {
	patient    *PatientFacts
	coding     *Coding
	coverage   *CoverageDetermination
	artifact   *ArtifactRef
	assessment *RiskAssessment
}

// NewContext returns an empty accumulator.
func NewContext() *Context {
	return &Context{}
}

// Contribution is the typed set of Context fields a single stage produced.
// Exactly the fields owned by that stage are non-nil.
type Contribution struct {
	Patient    *PatientFacts
	Coding     *Coding
	Coverage   *CoverageDetermination
	Artifact   *ArtifactRef
	Assessment *RiskAssessment
}

// Apply commits a stage contribution, enforcing the write-once invariant.
// A second write to any populated field fails the whole apply.
func (c *Context) Apply(contrib *Contribution) error {
	if contrib == nil {
		return nil
	}
	if contrib.Patient != nil {
		if c.patient != nil {
			return fmt.Errorf("%w: patient facts", ErrFieldSet)
		}
		c.patient = contrib.Patient
	}
	if contrib.Coding != nil {
		if c.coding != nil {
			return fmt.Errorf("%w: coding", ErrFieldSet)
		}
		c.coding = contrib.Coding
	}
	if contrib.Coverage != nil {
		if c.coverage != nil {
			return fmt.Errorf("%w: coverage determination", ErrFieldSet)
		}
		c.coverage = contrib.Coverage
	}
	if contrib.Artifact != nil {
		if c.artifact != nil {
			return fmt.Errorf("%w: artifact reference", ErrFieldSet)
		}
		c.artifact = contrib.Artifact
	}
	if contrib.Assessment != nil {
		if c.assessment != nil {
			return fmt.Errorf("%w: risk assessment", ErrFieldSet)
		}
		c.assessment = contrib.Assessment
	}
	return nil
}

// Patient returns the patient facts, if populated.
func (c *Context) Patient() (*PatientFacts, bool) {
	return c.patient, c.patient != nil
}

// Coding returns the coding result, if populated.
func (c *Context) Coding() (*Coding, bool) {
	return c.coding, c.coding != nil
}

// Coverage returns the coverage determination, if populated.
func (c *Context) Coverage() (*CoverageDetermination, bool) {
	return c.coverage, c.coverage != nil
}

// Artifact returns the claim artifact reference, if populated.
func (c *Context) Artifact() (*ArtifactRef, bool) {
	return c.artifact, c.artifact != nil
}

// Assessment returns the triage assessment, if populated.
func (c *Context) Assessment() (*RiskAssessment, bool) {
	return c.assessment, c.assessment != nil
}
