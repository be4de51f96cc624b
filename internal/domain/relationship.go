package domain

import "time"

// RelationshipType names a directed edge between two tickets.
type RelationshipType string

const (
	RelationshipParentOf    RelationshipType = "parent_of"
	RelationshipChildOf     RelationshipType = "child_of"
	RelationshipBlocks      RelationshipType = "blocks"
	RelationshipBlockedBy   RelationshipType = "blocked_by"
	RelationshipRelatedTo   RelationshipType = "related_to"
	RelationshipMergedInto  RelationshipType = "merged_into"
	RelationshipDuplicateOf RelationshipType = "duplicate_of"
	RelationshipSplitFrom   RelationshipType = "split_from"
)

var relationshipInverses = map[RelationshipType]RelationshipType{
	RelationshipParentOf:  RelationshipChildOf,
	RelationshipChildOf:   RelationshipParentOf,
	RelationshipBlocks:    RelationshipBlockedBy,
	RelationshipBlockedBy: RelationshipBlocks,
}

// Valid reports whether t is a known relationship type.
func (t RelationshipType) Valid() bool {
	switch t {
	case RelationshipParentOf, RelationshipChildOf, RelationshipBlocks, RelationshipBlockedBy,
		RelationshipRelatedTo, RelationshipMergedInto, RelationshipDuplicateOf, RelationshipSplitFrom:
		return true
	}
	return false
}

// Inverse returns the type stored for the reverse edge. related_to is self-inverse and
// is stored once, so it reports no inverse.
func (t RelationshipType) Inverse() (RelationshipType, bool) {
	inv, ok := relationshipInverses[t]
	return inv, ok
}

// AuditCritical reports whether edges of this type are protected from removal when system generated.
func (t RelationshipType) AuditCritical() bool {
	switch t {
	case RelationshipParentOf, RelationshipChildOf, RelationshipMergedInto, RelationshipSplitFrom:
		return true
	}
	return false
}

// RelationshipOrigin records who created an edge.
type RelationshipOrigin string

const (
	OriginSystem RelationshipOrigin = "system"
	OriginManual RelationshipOrigin = "manual"
)

// TicketRelationship is one directed, typed edge. Symmetric pairs are stored as two rows
// pointing at each other through PairID.
type TicketRelationship struct {
	ID               string
	TenantID         string
	SourceTicketID   string
	TargetTicketID   string
	RelationshipType RelationshipType
	Origin           RelationshipOrigin
	PairID           *string
	CreatedByID      string
	CreatedByName    string
	Description      string
	CreatedAt        time.Time
}

// Inverted returns the reverse edge for symmetric types.
func (r *TicketRelationship) Inverted() (*TicketRelationship, bool) {
	inv, ok := r.RelationshipType.Inverse()
	if !ok {
		return nil, false
	}
	return &TicketRelationship{
		TenantID:         r.TenantID,
		SourceTicketID:   r.TargetTicketID,
		TargetTicketID:   r.SourceTicketID,
		RelationshipType: inv,
		Origin:           r.Origin,
		CreatedByID:      r.CreatedByID,
		CreatedByName:    r.CreatedByName,
		Description:      r.Description,
		CreatedAt:        r.CreatedAt,
	}, true
}
