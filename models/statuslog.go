package models

import "time"

// SystemActor is recorded as the actor of automated transitions
const SystemActor = "SYSTEM"

// StatusLogEntry holds the structure for the casestatuslogs collection in
// mongo. Entries are append-only.
type StatusLogEntry struct {
	ID         string     `json:"_id" bson:"_id"`
	CaseID     string     `json:"caseId" bson:"caseId"`
	FromStatus CaseStatus `json:"fromStatus,omitempty" bson:"fromStatus,omitempty"`
	ToStatus   CaseStatus `json:"toStatus" bson:"toStatus"`
	ChangedBy  string     `json:"changedBy" bson:"changedBy"`
	Notes      string     `json:"notes,omitempty" bson:"notes,omitempty"`
	Timestamp  time.Time  `json:"timestamp" bson:"timestamp"`
}
