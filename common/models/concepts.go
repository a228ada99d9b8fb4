package models

// Well-known concept identifiers of the International Edition. These are
// data values rather than language constants; the config layer lets
// deployments override the ones the integrity core filters on.
const (
	// Root concept
	SnomedRoot int64 = 138875005

	// Is-a relationship type
	IsA int64 = 116680003

	// Characteristic types
	StatedRelationship     int64 = 900000000000010007
	InferredRelationship   int64 = 900000000000011006
	AdditionalRelationship int64 = 900000000000227009

	// OWL axiom reference set
	OWLAxiomReferenceSet int64 = 733073007

	// Description types
	FSNType     int64 = 900000000000003001
	SynonymType int64 = 900000000000013009
)
