package models

import (
	"time"

	"github.com/linesmerrill/sos-dispatch-api/geo"
)

// Station holds the structure for the stations collection in mongo
type Station struct {
	ID        string    `json:"_id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Address   string    `json:"address,omitempty" bson:"address,omitempty"`
	District  string    `json:"district,omitempty" bson:"district,omitempty"`
	State     string    `json:"state,omitempty" bson:"state,omitempty"`
	Position  geo.Point `json:"position" bson:"position"`
	Active    bool      `json:"active" bson:"active"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
