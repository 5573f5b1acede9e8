// Package fact holds the durable memory fact value object.
package fact

import (
	"errors"
	"fmt"
)

// Fact is one durable (owner, subject, attribute) → value record.
// The store never holds two facts for the same triple.
type Fact struct {
	owner      string
	subject    string
	attribute  string
	value      string
	confidence float64
	provenance string
	createdAt  int64 // unix millis
}

// New validates and creates a fact.
func New(
	owner, subject, attribute, value string,
	confidence float64, provenance string, createdAt int64,
) (Fact, error) {
	if owner == "" {
		return Fact{}, errors.New("owner is required")
	}
	if subject == "" {
		return Fact{}, errors.New("subject is required")
	}
	if attribute == "" {
		return Fact{}, errors.New("attribute is required")
	}
	if confidence < 0 || confidence > 1 {
		return Fact{}, fmt.Errorf("confidence must be in [0,1], got %v", confidence)
	}
	return Fact{
		owner:      owner,
		subject:    subject,
		attribute:  attribute,
		value:      value,
		confidence: confidence,
		provenance: provenance,
		createdAt:  createdAt,
	}, nil
}

// Owner returns the fact owner identity.
func (f *Fact) Owner() string { return f.owner }

// Subject returns the fact subject.
func (f *Fact) Subject() string { return f.subject }

// Attribute returns the fact attribute.
func (f *Fact) Attribute() string { return f.attribute }

// Value returns the stored value.
func (f *Fact) Value() string { return f.value }

// Confidence returns the extraction confidence in [0,1].
func (f *Fact) Confidence() float64 { return f.confidence }

// Provenance returns where the fact came from.
func (f *Fact) Provenance() string { return f.provenance }

// CreatedAt returns the creation time in unix milliseconds.
func (f *Fact) CreatedAt() int64 { return f.createdAt }

// Key returns the dedup key within an owner's fact set.
func (f *Fact) Key() string { return f.subject + "|" + f.attribute }

// Supersedes reports whether this fact should replace an existing record
// for the same triple: equal or higher confidence wins.
func (f *Fact) Supersedes(old Fact) bool {
	return f.confidence >= old.confidence
}
