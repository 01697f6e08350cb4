package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/medirun/medisuite/internal/claim"
	"github.com/medirun/medisuite/internal/inference"
)

// PatientDataAgent validates the structured submission fields and extracts
// diagnosis and procedure mentions from the free-text clinical notes.
type PatientDataAgent struct {
	fb Fallback
}

// NewPatientDataAgent creates the stage-0 agent. client may be nil, in which
// case extraction always uses the keyword fallback.
func NewPatientDataAgent(client inference.Client, timeout time.Duration) *PatientDataAgent {
	return &PatientDataAgent{fb: Fallback{Client: client, Timeout: timeout}}
}

var _ StageAgent = (*PatientDataAgent)(nil)

func (a *PatientDataAgent) Stage() claim.Stage { return claim.StagePatientData }

// extraction is the contract both the remote and local branches satisfy.
type extraction struct {
	Diagnoses  []string `json:"diagnoses"`
	Procedures []string `json:"procedures"`
}

func (a *PatientDataAgent) Execute(ctx context.Context, run *claim.Run) *claim.StageResult {
	start := time.Now()
	sub := run.Submission

	facts := &claim.PatientFacts{
		ValidationErrors: validateDemographics(sub),
		NotesPresent:     strings.TrimSpace(sub.ClinicalNotes) != "",
	}
	facts.Valid = len(facts.ValidationErrors) == 0

	status := claim.StatusSuccess
	var errMsg string

	if facts.NotesPresent {
		ext, path, err := Resolve(ctx, a.fb,
			func(rctx context.Context) (extraction, error) {
				return a.extractRemote(rctx, sub.ClinicalNotes)
			},
			func() (extraction, error) {
				return extractKeywords(sub.ClinicalNotes), nil
			},
		)
		if err != nil {
			return hardFail(claim.StagePatientData, fmt.Sprintf("patient data extraction: %v", err))
		}
		facts.Diagnoses = ext.Diagnoses
		facts.Procedures = ext.Procedures
		if path == PathLocal {
			status = claim.StatusSuccessViaFallback
		}
	} else {
		status = claim.StatusSoftFail
		errMsg = "clinical notes missing: nothing to extract"
	}

	if !facts.Valid {
		status = claim.StatusSoftFail
		if errMsg != "" {
			errMsg += "; "
		}
		errMsg += "incomplete demographics: " + strings.Join(facts.ValidationErrors, ", ")
	}

	return &claim.StageResult{
		Stage:        claim.StagePatientData,
		Status:       status,
		Duration:     time.Since(start),
		Detail:       fmt.Sprintf("extracted %d diagnoses and %d procedures", len(facts.Diagnoses), len(facts.Procedures)),
		Err:          errMsg,
		Contribution: &claim.Contribution{Patient: facts},
	}
}

// validateDemographics flags missing structured fields. These are
// business-data gaps, not submission faults: the run continues.
func validateDemographics(sub claim.Submission) []string {
	var missing []string
	if strings.TrimSpace(sub.DOB) == "" {
		missing = append(missing, "dob")
	}
	if strings.TrimSpace(sub.Insurance.PolicyNumber) == "" {
		missing = append(missing, "insurance_details.policy_number")
	}
	if strings.TrimSpace(sub.Insurance.Provider) == "" {
		missing = append(missing, "insurance_details.provider")
	}
	return missing
}

func (a *PatientDataAgent) extractRemote(ctx context.Context, notes string) (extraction, error) {
	const system = "You are a clinical information extractor. " +
		"Return a JSON object with two string arrays, \"diagnoses\" and \"procedures\", " +
		"listing the conditions and the services mentioned in the notes. Return JSON only."

	resp, err := a.fb.Client.Infer(ctx, inference.Request{
		System: system,
		Prompt: notes,
	})
	if err != nil {
		return extraction{}, err
	}
	var ext extraction
	if err := inference.Decode(resp.Text, &ext); err != nil {
		return extraction{}, fmt.Errorf("patient data: bad extraction payload: %w", err)
	}
	return ext, nil
}

// Keyword vocabularies for the deterministic fallback. Matching is
// case-insensitive substring search; each canonical term is reported once.
var diagnosisKeywords = []struct{ keyword, term string }{
	{"influenza", "influenza"},
	{"flu symptoms", "influenza"},
	{"the flu", "influenza"},
	{"bronchitis", "acute bronchitis"},
	{"pneumonia", "pneumonia"},
	{"covid", "COVID-19"},
	{"hypertension", "essential hypertension"},
	{"high blood pressure", "essential hypertension"},
	{"diabetes", "type 2 diabetes"},
	{"fever", "fever"},
	{"cough", "cough"},
	{"respiratory infection", "upper respiratory infection"},
	{"osteoarthritis", "osteoarthritis of knee"},
	{"knee pain", "osteoarthritis of knee"},
}

var procedureKeywords = []struct{ keyword, term string }{
	{"office visit", "office visit"},
	{"follow-up visit", "office visit"},
	{"rapid influenza", "rapid influenza test"},
	{"rapid flu", "rapid influenza test"},
	{"blood draw", "venipuncture"},
	{"venipuncture", "venipuncture"},
	{"cbc", "complete blood count"},
	{"blood count", "complete blood count"},
	{"chest x-ray", "chest x-ray"},
	{"flu vaccine", "influenza vaccine"},
	{"vaccination", "influenza vaccine"},
	{"knee replacement", "total knee arthroplasty"},
	{"arthroplasty", "total knee arthroplasty"},
}

var diagnosedWithRe = regexp.MustCompile(`(?i)diagnosed with ([^.;\n]+)`)

func extractKeywords(notes string) extraction {
	lower := strings.ToLower(notes)
	var ext extraction
	seen := map[string]bool{}

	for _, kw := range diagnosisKeywords {
		if strings.Contains(lower, kw.keyword) && !seen[kw.term] {
			seen[kw.term] = true
			ext.Diagnoses = append(ext.Diagnoses, kw.term)
		}
	}
	// "diagnosed with X" captures conditions the vocabulary misses.
	for _, m := range diagnosedWithRe.FindAllStringSubmatch(notes, -1) {
		term := strings.ToLower(strings.TrimSpace(m[1]))
		if term != "" && !seen[term] {
			seen[term] = true
			ext.Diagnoses = append(ext.Diagnoses, term)
		}
	}
	for _, kw := range procedureKeywords {
		if strings.Contains(lower, kw.keyword) && !seen[kw.term] {
			seen[kw.term] = true
			ext.Procedures = append(ext.Procedures, kw.term)
		}
	}
	return ext
}
