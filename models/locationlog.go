package models

import (
	"time"

	"github.com/linesmerrill/sos-dispatch-api/geo"
)

// LocationLog holds the structure for the officerlocationlogs collection in mongo
type LocationLog struct {
	ID        string    `json:"_id" bson:"_id"`
	OfficerID string    `json:"officerId" bson:"officerId"`
	CaseID    string    `json:"caseId,omitempty" bson:"caseId,omitempty"`
	Position  geo.Point `json:"position" bson:"position"`
	AccuracyM *float64  `json:"accuracyM,omitempty" bson:"accuracyM,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}
