package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medirun/medisuite/internal/claim"
	"github.com/medirun/medisuite/internal/inference"
	"github.com/medirun/medisuite/internal/refdata"
)

// DocumentCodeAgent maps the extracted clinical terms to ICD-10 diagnosis
// codes and CPT-4 procedure codes and computes the total charge from the
// procedure base rates. Every emitted code is validated against the loaded
// code tables; nothing outside them ever reaches a claim.
type DocumentCodeAgent struct {
	fb     Fallback
	tables *refdata.Tables
}

func NewDocumentCodeAgent(client inference.Client, timeout time.Duration, tables *refdata.Tables) *DocumentCodeAgent {
	return &DocumentCodeAgent{
		fb:     Fallback{Client: client, Timeout: timeout},
		tables: tables,
	}
}

var _ StageAgent = (*DocumentCodeAgent)(nil)

func (a *DocumentCodeAgent) Stage() claim.Stage { return claim.StageDocumentCode }

// codeSet is the contract both branches satisfy: raw code values, validated
// against the tables afterwards.
type codeSet struct {
	ICD10 []string `json:"icd10_codes"`
	CPT4  []string `json:"cpt4_codes"`
}

func (a *DocumentCodeAgent) Execute(ctx context.Context, run *claim.Run) *claim.StageResult {
	start := time.Now()

	patient, ok := run.Context.Patient()
	if !ok {
		return hardFail(claim.StageDocumentCode, "document coding: patient facts absent from run context")
	}

	set, path, err := Resolve(ctx, a.fb,
		func(rctx context.Context) (codeSet, error) {
			return a.codeRemote(rctx, run.Submission.ClinicalNotes, patient)
		},
		func() (codeSet, error) {
			return a.codeLocal(patient), nil
		},
	)
	if err != nil {
		return hardFail(claim.StageDocumentCode, fmt.Sprintf("document coding: %v", err))
	}

	coding := a.validate(set)
	status := claim.StatusSuccess
	if path == PathLocal {
		status = claim.StatusSuccessViaFallback
	}

	var errMsg string
	if len(coding.ICD10) == 0 || len(coding.CPT4) == 0 {
		status = claim.StatusSoftFail
		var gaps []string
		if len(coding.ICD10) == 0 {
			gaps = append(gaps, "no diagnosis codes matched")
		}
		if len(coding.CPT4) == 0 {
			gaps = append(gaps, "no procedure codes matched")
		}
		errMsg = strings.Join(gaps, "; ")
	}

	return &claim.StageResult{
		Stage:    claim.StageDocumentCode,
		Status:   status,
		Duration: time.Since(start),
		Detail: fmt.Sprintf("%d ICD-10, %d CPT-4, charge $%s",
			len(coding.ICD10), len(coding.CPT4), coding.Charge.StringFixed(2)),
		Err:          errMsg,
		Contribution: &claim.Contribution{Coding: coding},
	}
}

func (a *DocumentCodeAgent) codeRemote(ctx context.Context, notes string, patient *claim.PatientFacts) (codeSet, error) {
	var sb strings.Builder
	sb.WriteString("Known ICD-10 codes:\n")
	for _, c := range a.tables.ICD10Codes() {
		fmt.Fprintf(&sb, "  %s: %s\n", c.Code, c.Description)
	}
	sb.WriteString("Known CPT-4 codes:\n")
	for _, c := range a.tables.CPT4Codes() {
		fmt.Fprintf(&sb, "  %s: %s\n", c.Code, c.Description)
	}
	fmt.Fprintf(&sb, "Diagnoses: %s\n", strings.Join(patient.Diagnoses, "; "))
	fmt.Fprintf(&sb, "Procedures: %s\n", strings.Join(patient.Procedures, "; "))
	fmt.Fprintf(&sb, "Clinical notes:\n%s\n", notes)

	resp, err := a.fb.Client.Infer(ctx, inference.Request{
		System: "You are a medical coder. Using only the known code lists, return a JSON object " +
			"with string arrays \"icd10_codes\" and \"cpt4_codes\" for the documented services. Return JSON only.",
		Prompt: sb.String(),
	})
	if err != nil {
		return codeSet{}, err
	}
	var set codeSet
	if err := inference.Decode(resp.Text, &set); err != nil {
		return codeSet{}, fmt.Errorf("document coding: bad code payload: %w", err)
	}
	return set, nil
}

// codeLocal matches each extracted term against the code-table descriptions
// by significant-word overlap; the best-scoring code wins, first table entry
// on ties. Terms that match nothing are preserved so the triage trail shows
// what the coder could not place.
func (a *DocumentCodeAgent) codeLocal(patient *claim.PatientFacts) codeSet {
	var set codeSet
	for _, term := range patient.Diagnoses {
		if code, ok := bestMatch(term, a.tables.ICD10Codes()); ok {
			set.ICD10 = append(set.ICD10, code)
		} else {
			set.ICD10 = append(set.ICD10, term)
		}
	}
	matchedAny := false
	for _, term := range patient.Procedures {
		if code, ok := bestMatch(term, a.tables.CPT4Codes()); ok {
			set.CPT4 = append(set.CPT4, code)
			matchedAny = true
		} else {
			set.CPT4 = append(set.CPT4, term)
		}
	}
	// Documented procedures that all defied matching still billed a visit.
	if len(patient.Procedures) > 0 && !matchedAny {
		set.CPT4 = append(set.CPT4, "99213")
	}
	return set
}

func bestMatch(term string, codes []refdata.Code) (string, bool) {
	termWords := significantWords(term)
	if len(termWords) == 0 {
		return "", false
	}
	best, bestScore := "", 0
	for _, c := range codes {
		score := 0
		descWords := significantWords(c.Description)
		for w := range termWords {
			if descWords[w] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = c.Code, score
		}
	}
	return best, bestScore > 0
}

func significantWords(s string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(w) > 3 {
			words[w] = true
		}
	}
	return words
}

// validate resolves raw code values against the tables, dropping duplicates
// and diverting unknown values to Unmatched.
func (a *DocumentCodeAgent) validate(set codeSet) *claim.Coding {
	coding := &claim.Coding{Charge: decimal.Zero}
	seen := map[string]bool{}

	for _, v := range set.ICD10 {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		if c, ok := a.tables.ICD10(strings.ToUpper(v)); ok {
			coding.ICD10 = append(coding.ICD10, claim.Code{Value: c.Code, Description: c.Description})
		} else {
			coding.Unmatched = append(coding.Unmatched, v)
		}
	}
	for _, v := range set.CPT4 {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		if c, ok := a.tables.CPT4(v); ok {
			coding.CPT4 = append(coding.CPT4, claim.Code{Value: c.Code, Description: c.Description})
			coding.Charge = coding.Charge.Add(c.BaseRate)
		} else {
			coding.Unmatched = append(coding.Unmatched, v)
		}
	}
	return coding
}
