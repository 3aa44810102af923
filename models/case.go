package models

import (
	"time"

	"github.com/linesmerrill/sos-dispatch-api/geo"
)

// CaseStatus is the lifecycle stage of a case
type CaseStatus string

// Case lifecycle stages, in canonical order
const (
	CaseCreated      CaseStatus = "CREATED"
	CaseAssigned     CaseStatus = "ASSIGNED"
	CaseAcknowledged CaseStatus = "ACKNOWLEDGED"
	CaseEnRoute      CaseStatus = "EN_ROUTE"
	CaseOnScene      CaseStatus = "ON_SCENE"
	CaseActionTaken  CaseStatus = "ACTION_TAKEN"
	CaseClosed       CaseStatus = "CLOSED"
)

// CaseStatuses lists every case status in lifecycle order
var CaseStatuses = []CaseStatus{
	CaseCreated,
	CaseAssigned,
	CaseAcknowledged,
	CaseEnRoute,
	CaseOnScene,
	CaseActionTaken,
	CaseClosed,
}

// Valid reports whether s is one of the known case statuses
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseCreated, CaseAssigned, CaseAcknowledged, CaseEnRoute, CaseOnScene, CaseActionTaken, CaseClosed:
		return true
	}
	return false
}

// Case holds the structure for the cases collection in mongo
type Case struct {
	ID           string     `json:"_id" bson:"_id"`
	CaseNumber   string     `json:"caseNumber" bson:"caseNumber"`
	ReporterID   string     `json:"reporterId" bson:"reporterId"`
	Position     geo.Point  `json:"position" bson:"position"`
	AccuracyM    *float64   `json:"accuracyM,omitempty" bson:"accuracyM,omitempty"`
	Description  string     `json:"description" bson:"description"`
	Priority     int        `json:"priority" bson:"priority"`
	Status       CaseStatus `json:"status" bson:"status"`
	OfficerID    string     `json:"officerId,omitempty" bson:"officerId,omitempty"`
	AssignedBy   string     `json:"assignedBy,omitempty" bson:"assignedBy,omitempty"`
	AssignedAt   *time.Time `json:"assignedAt,omitempty" bson:"assignedAt,omitempty"`
	ClosedAt     *time.Time `json:"closedAt,omitempty" bson:"closedAt,omitempty"`
	ClosureNotes string     `json:"closureNotes,omitempty" bson:"closureNotes,omitempty"`
	CreatedAt    time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// CaseFilter narrows a case listing
type CaseFilter struct {
	Status     CaseStatus
	OfficerID  string
	ReporterID string
	// Unassigned only matches cases without an officer
	Unassigned bool
	// OldestFirst flips the default newest-first ordering
	OldestFirst bool
	Page        int
	Limit       int
}

// CaseAssignment is the set of fields written when a case gets an officer.
// PreviousOfficerID is the officer observed before the write, empty for none.
type CaseAssignment struct {
	PreviousOfficerID string
	OfficerID         string
	Status            CaseStatus
	AssignedBy        string
	AssignedAt        time.Time
}

// CaseStatusChange is the set of fields written when a case moves stage
type CaseStatusChange struct {
	To           CaseStatus
	At           time.Time
	ClosureNotes string
}
