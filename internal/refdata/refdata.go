// Package refdata holds the process-wide read-only reference data: the
// ICD-10 and CPT-4 code tables and the insurance policy database. Tables are
// loaded once at startup and never mutated afterwards, so unsynchronized
// concurrent reads from any number of runs are safe.
package refdata

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed data/icd10_codes.yaml data/cpt4_codes.yaml data/policies.yaml
var defaults embed.FS

// Kind selects a lookup table.
type Kind string

const (
	KindICD10  Kind = "icd10"
	KindCPT4   Kind = "cpt4"
	KindPolicy Kind = "policy"
)

// Code is one entry of a code table. BaseRate is zero for diagnosis codes.
type Code struct {
	Code        string
	Description string
	Category    string
	BaseRate    decimal.Decimal
}

// Policy is one entry of the policy database.
type Policy struct {
	PolicyNumber    string
	Provider        string
	PlanType        string
	Coverage        string
	Effective       time.Time
	Expiry          time.Time
	CoveredServices []string
	Copay           decimal.Decimal
	Deductible      decimal.Decimal
	DeductibleMet   bool
}

// ActiveAt reports whether the policy is within its effective window at t.
func (p Policy) ActiveAt(t time.Time) bool {
	return !t.Before(p.Effective) && !t.After(p.Expiry)
}

// CoverageValid reports whether the coverage field marks the policy usable.
func (p Policy) CoverageValid() bool {
	return strings.EqualFold(p.Coverage, "valid")
}

// Covers reports whether the given service category is covered.
func (p Policy) Covers(category string) bool {
	for _, s := range p.CoveredServices {
		if strings.EqualFold(s, category) {
			return true
		}
	}
	return false
}

// Tables is the loaded, immutable reference data set.
type Tables struct {
	icd10      map[string]Code
	cpt4       map[string]Code
	policies   map[string]Policy
	icd10Order []string
	cpt4Order  []string
}

// Load reads the reference tables from dir, or from the embedded defaults
// when dir is empty.
func Load(dir string) (*Tables, error) {
	read := func(name string) ([]byte, error) {
		if dir == "" {
			return defaults.ReadFile("data/" + name)
		}
		return os.ReadFile(filepath.Join(dir, name))
	}

	t := &Tables{
		icd10:    make(map[string]Code),
		cpt4:     make(map[string]Code),
		policies: make(map[string]Policy),
	}

	var rawICD []rawCode
	if err := loadYAML(read, "icd10_codes.yaml", &rawICD); err != nil {
		return nil, err
	}
	for _, rc := range rawICD {
		c := rc.code()
		t.icd10[c.Code] = c
		t.icd10Order = append(t.icd10Order, c.Code)
	}

	var rawCPT []rawCode
	if err := loadYAML(read, "cpt4_codes.yaml", &rawCPT); err != nil {
		return nil, err
	}
	for _, rc := range rawCPT {
		c := rc.code()
		t.cpt4[c.Code] = c
		t.cpt4Order = append(t.cpt4Order, c.Code)
	}

	var rawPolicies []rawPolicy
	if err := loadYAML(read, "policies.yaml", &rawPolicies); err != nil {
		return nil, err
	}
	for _, rp := range rawPolicies {
		p, err := rp.policy()
		if err != nil {
			return nil, fmt.Errorf("refdata: policy %s: %w", rp.PolicyNumber, err)
		}
		t.policies[p.PolicyNumber] = p
	}

	return t, nil
}

// ICD10 looks up a diagnosis code.
func (t *Tables) ICD10(code string) (Code, bool) {
	c, ok := t.icd10[code]
	return c, ok
}

// CPT4 looks up a procedure code.
func (t *Tables) CPT4(code string) (Code, bool) {
	c, ok := t.cpt4[code]
	return c, ok
}

// Policy looks up a policy by number.
func (t *Tables) Policy(number string) (Policy, bool) {
	p, ok := t.policies[number]
	return p, ok
}

// ICD10Codes returns all diagnosis codes in table order.
func (t *Tables) ICD10Codes() []Code {
	out := make([]Code, 0, len(t.icd10Order))
	for _, k := range t.icd10Order {
		out = append(out, t.icd10[k])
	}
	return out
}

// CPT4Codes returns all procedure codes in table order.
func (t *Tables) CPT4Codes() []Code {
	out := make([]Code, 0, len(t.cpt4Order))
	for _, k := range t.cpt4Order {
		out = append(out, t.cpt4[k])
	}
	return out
}

// Lookup is the generic read-only contract: a record by kind and key, or
// not-found.
func (t *Tables) Lookup(kind Kind, key string) (any, bool) {
	switch kind {
	case KindICD10:
		return asAny(t.ICD10(key))
	case KindCPT4:
		return asAny(t.CPT4(key))
	case KindPolicy:
		return asAny(t.Policy(key))
	default:
		return nil, false
	}
}

func asAny[T any](v T, ok bool) (any, bool) {
	if !ok {
		return nil, false
	}
	return v, true
}

// --- raw YAML forms ---

type rawCode struct {
	Code        string  `yaml:"code"`
	Description string  `yaml:"description"`
	Category    string  `yaml:"category"`
	BaseRate    float64 `yaml:"base_rate"`
}

func (r rawCode) code() Code {
	return Code{
		Code:        r.Code,
		Description: r.Description,
		Category:    r.Category,
		BaseRate:    decimal.NewFromFloat(r.BaseRate),
	}
}

type rawPolicy struct {
	PolicyNumber    string   `yaml:"policy_number"`
	Provider        string   `yaml:"provider"`
	PlanType        string   `yaml:"plan_type"`
	EffectiveDate   string   `yaml:"effective_date"`
	ExpiryDate      string   `yaml:"expiry_date"`
	Coverage        string   `yaml:"coverage"`
	CoveredServices []string `yaml:"covered_services"`
	Copay           float64  `yaml:"copay"`
	Deductible      float64  `yaml:"deductible"`
	DeductibleMet   bool     `yaml:"deductible_met"`
}

func (r rawPolicy) policy() (Policy, error) {
	effective, err := time.Parse("2006-01-02", r.EffectiveDate)
	if err != nil {
		return Policy{}, fmt.Errorf("parse effective_date: %w", err)
	}
	expiry, err := time.Parse("2006-01-02", r.ExpiryDate)
	if err != nil {
		return Policy{}, fmt.Errorf("parse expiry_date: %w", err)
	}
	return Policy{
		PolicyNumber:    r.PolicyNumber,
		Provider:        r.Provider,
		PlanType:        r.PlanType,
		Coverage:        r.Coverage,
		Effective:       effective,
		Expiry:          expiry,
		CoveredServices: r.CoveredServices,
		Copay:           decimal.NewFromFloat(r.Copay),
		Deductible:      decimal.NewFromFloat(r.Deductible),
		DeductibleMet:   r.DeductibleMet,
	}, nil
}

func loadYAML(read func(string) ([]byte, error), name string, v any) error {
	data, err := read(name)
	if err != nil {
		return fmt.Errorf("refdata: read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("refdata: parse %s: %w", name, err)
	}
	return nil
}
