package models

import (
	"strconv"

	"github.com/google/uuid"
)

// Concept is a terminology graph node
// A concept exists as active on a branch iff the branch-visible view returns
// it with Active=true.
type Concept struct {
	ConceptID     int64  `db:"concept_id" json:"conceptId"`
	Active        bool   `db:"active" json:"active"`
	ModuleID      int64  `db:"module_id" json:"moduleId"`
	EffectiveTime string `db:"effective_time" json:"effectiveTime,omitempty"`
	Released      bool   `db:"released" json:"released"`
}

// Relationship links a source concept to a destination concept (or to a
// concrete value) through a type concept
type Relationship struct {
	RelationshipID    int64  `db:"relationship_id" json:"relationshipId"`
	SourceID          int64  `db:"source_id" json:"sourceId"`
	TypeID            int64  `db:"type_id" json:"typeId"`
	DestinationID     int64  `db:"destination_id" json:"destinationId,omitempty"`
	Value             string `db:"value" json:"value,omitempty"`
	RelationshipGroup int    `db:"relationship_group" json:"relationshipGroup"`

	// STATED, INFERRED or ADDITIONAL characteristic type concept
	CharacteristicTypeID int64 `db:"characteristic_type_id" json:"characteristicTypeId"`

	Active        bool   `db:"active" json:"active"`
	ModuleID      int64  `db:"module_id" json:"moduleId"`
	EffectiveTime string `db:"effective_time" json:"effectiveTime,omitempty"`
	Released      bool   `db:"released" json:"released"`
}

// Concrete reports whether the relationship carries a concrete value
// instead of a destination concept. Concrete relationships are never
// checked for destination integrity.
func (r *Relationship) Concrete() bool {
	return r.Value != ""
}

// OWLExpressionField is the additional-field key carrying the class
// expression on axiom reference-set members
const OWLExpressionField = "owlExpression"

// ReferenceSetMember is a row in a reference set. OWL axiom members carry
// the class expression in an additional field.
type ReferenceSetMember struct {
	MemberID              string            `db:"member_id" json:"memberId"`
	RefsetID              int64             `db:"refset_id" json:"refsetId"`
	ReferencedComponentID int64             `db:"referenced_component_id" json:"referencedComponentId"`
	Active                bool              `db:"active" json:"active"`
	ModuleID              int64             `db:"module_id" json:"moduleId"`
	EffectiveTime         string            `db:"effective_time" json:"effectiveTime,omitempty"`
	Released              bool              `db:"released" json:"released"`
	AdditionalFields      map[string]string `db:"additional_fields" json:"additionalFields,omitempty"`
}

// NewAxiomMember creates an active axiom member with a generated member ID
func NewAxiomMember(refsetID, referencedComponentID int64, owlExpression string) *ReferenceSetMember {
	return &ReferenceSetMember{
		MemberID:              uuid.NewString(),
		RefsetID:              refsetID,
		ReferencedComponentID: referencedComponentID,
		Active:                true,
		AdditionalFields: map[string]string{
			OWLExpressionField: owlExpression,
		},
	}
}

// OWLExpression returns the class expression additional field, empty when absent
func (m *ReferenceSetMember) OWLExpression() string {
	return m.AdditionalFields[OWLExpressionField]
}

// QueryConcept is a semantic index entry: a precomputed projection of a
// concept's transitive/attribute closure in one form (stated or inferred).
// Entries may be stale relative to the components they were derived from, so
// they are only ever used as a coarse prefilter.
type QueryConcept struct {
	ConceptIDL int64             `db:"concept_id" json:"conceptIdL"`
	Stated     bool              `db:"stated" json:"stated"`
	Parents    []int64           `db:"parents" json:"parents,omitempty"`
	Ancestors  []int64           `db:"ancestors" json:"ancestors,omitempty"`
	Attr       map[int64][]int64 `db:"attr" json:"attr,omitempty"`
}

// AttrValues returns every attribute value across all attribute types
func (q *QueryConcept) AttrValues() []int64 {
	var out []int64
	for _, values := range q.Attr {
		out = append(out, values...)
	}
	return out
}

// Description is a human-readable term for a concept
type Description struct {
	DescriptionID int64  `db:"description_id" json:"descriptionId"`
	ConceptID     int64  `db:"concept_id" json:"conceptId"`
	Term          string `db:"term" json:"term"`
	TypeID        int64  `db:"type_id" json:"typeId"`
	Lang          string `db:"lang" json:"lang"`
	Active        bool   `db:"active" json:"active"`
	Preferred     bool   `db:"preferred" json:"preferred"`
}

// ConceptMini is a lightweight concept descriptor used in reports.
// MissingOrInactiveConcepts carries the offending referenced IDs for the
// axiom whose subject this concept is.
type ConceptMini struct {
	ConceptID                 int64   `json:"conceptId"`
	FSN                       string  `json:"fsn,omitempty"`
	PT                        string  `json:"pt,omitempty"`
	MissingOrInactiveConcepts []int64 `json:"missingOrInactiveConcepts,omitempty"`
}

// AddMissingOrInactive records an offending referenced concept, ignoring duplicates
func (c *ConceptMini) AddMissingOrInactive(conceptID int64) {
	for _, existing := range c.MissingOrInactiveConcepts {
		if existing == conceptID {
			return
		}
	}
	c.MissingOrInactiveConcepts = append(c.MissingOrInactiveConcepts, conceptID)
}

// ParseConceptID parses a string concept identifier
func ParseConceptID(value string) (int64, error) {
	return strconv.ParseInt(value, 10, 64)
}
