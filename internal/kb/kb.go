// Package kb is the run-shared knowledge base: agents insert typed documents
// as they work and later stages (and the chat router) retrieve them by
// keyword. Retrieval is best-effort context, never load-bearing for the
// pipeline's decisions.
package kb

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DocType categorizes stored documents.
type DocType string

const (
	DocPatientData      DocType = "patient_data"
	DocClinicalNotes    DocType = "clinical_notes"
	DocICD10Code        DocType = "icd10_code"
	DocCPT4Code         DocType = "cpt4_code"
	DocClaim            DocType = "claim"
	DocValidationResult DocType = "validation_result"
	DocTriageDecision   DocType = "triage_decision"
	DocMetadata         DocType = "document_metadata"
)

// Document is one knowledge base entry.
type Document struct {
	ID        string            `json:"id"`
	Type      DocType           `json:"doc_type"`
	Fields    map[string]string `json:"fields"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store is a concurrency-safe in-memory document store with keyword
// retrieval. Documents are kept in insertion order.
type Store struct {
	mu   sync.RWMutex
	docs []Document
}

// NewStore returns an empty knowledge base.
func NewStore() *Store {
	return &Store{}
}

// Insert stores a document and returns it with id and timestamp assigned.
// The field map is copied; callers may reuse theirs.
func (s *Store) Insert(docType DocType, fields map[string]string) Document {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	doc := Document{
		ID:        uuid.NewString(),
		Type:      docType,
		Fields:    copied,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	return doc
}

// Retrieve returns up to topK documents of the given type scored by query
// term overlap, best first. Ties keep insertion order. An empty docType
// matches all types.
func (s *Store) Retrieve(query string, docType DocType, topK int) []Document {
	terms := tokenize(query)
	if topK <= 0 {
		topK = 3
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		doc   Document
		score int
		pos   int
	}
	var candidates []scored
	for i, doc := range s.docs {
		if docType != "" && doc.Type != docType {
			continue
		}
		score := overlap(terms, doc)
		if score == 0 && len(terms) > 0 {
			continue
		}
		candidates = append(candidates, scored{doc: doc, score: score, pos: i})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].pos < candidates[j].pos
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]Document, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.doc)
	}
	return out
}

// Count reports how many documents of the given type are stored. An empty
// docType counts everything.
func (s *Store) Count(docType DocType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if docType == "" {
		return len(s.docs)
	}
	n := 0
	for _, doc := range s.docs {
		if doc.Type == docType {
			n++
		}
	}
	return n
}

func tokenize(q string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(q)) {
		if len(w) > 2 {
			terms = append(terms, w)
		}
	}
	return terms
}

func overlap(terms []string, doc Document) int {
	score := 0
	for _, term := range terms {
		for _, v := range doc.Fields {
			if strings.Contains(strings.ToLower(v), term) {
				score++
				break
			}
		}
	}
	return score
}
