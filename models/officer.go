package models

import (
	"time"

	"github.com/linesmerrill/sos-dispatch-api/geo"
)

// OfficerStatus is the availability of an officer
type OfficerStatus string

// Officer availability states
const (
	OfficerAvailable OfficerStatus = "AVAILABLE"
	OfficerOnDuty    OfficerStatus = "ON_DUTY"
	OfficerBusy      OfficerStatus = "BUSY"
	OfficerOffDuty   OfficerStatus = "OFF_DUTY"
)

// Valid reports whether s is one of the known officer statuses
func (s OfficerStatus) Valid() bool {
	switch s {
	case OfficerAvailable, OfficerOnDuty, OfficerBusy, OfficerOffDuty:
		return true
	}
	return false
}

// Officer holds the structure for the officers collection in mongo.
// StationID is a weak reference, stations do not embed their officers.
type Officer struct {
	ID                string        `json:"_id" bson:"_id"`
	UserID            string        `json:"userId" bson:"userId"`
	OfficerCode       string        `json:"officerCode" bson:"officerCode"`
	Name              string        `json:"name" bson:"name"`
	Status            OfficerStatus `json:"status" bson:"status"`
	StationID         string        `json:"stationId,omitempty" bson:"stationId,omitempty"`
	Position          *geo.Point    `json:"position,omitempty" bson:"position,omitempty"`
	PositionUpdatedAt *time.Time    `json:"positionUpdatedAt,omitempty" bson:"positionUpdatedAt,omitempty"`
	CreatedAt         time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// PositionFresh reports whether the officer has a fix no older than maxAge.
// A zero maxAge accepts any known fix.
func (o Officer) PositionFresh(now time.Time, maxAge time.Duration) bool {
	if o.Position == nil {
		return false
	}
	if maxAge <= 0 {
		return true
	}
	if o.PositionUpdatedAt == nil {
		return false
	}
	return now.Sub(*o.PositionUpdatedAt) <= maxAge
}

// OfficerFilter narrows an officer query
type OfficerFilter struct {
	Statuses    []OfficerStatus
	StationIDs  []string
	HasPosition bool
}
