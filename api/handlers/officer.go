package handlers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/linesmerrill/sos-dispatch-api/databases"
	"github.com/linesmerrill/sos-dispatch-api/dispatch"
	"github.com/linesmerrill/sos-dispatch-api/geo"
	"github.com/linesmerrill/sos-dispatch-api/models"
	"github.com/linesmerrill/sos-dispatch-api/tracking"
)

// Officer exported for testing purposes
type Officer struct {
	Engine        *dispatch.Engine
	Tracker       *tracking.Tracker
	Officers      databases.OfficerDatabase
	RetentionDays int
}

// LocationRequest is a position report from the calling officer's device
type LocationRequest struct {
	tracking.Fix
	CaseID string `json:"caseId,omitempty"`
}

// NearbyOfficersHandler lists available and on duty officers around lat/lng
func (o Officer) NearbyOfficersHandler(w http.ResponseWriter, r *http.Request) {
	position, limit, err := nearbyParams(r)
	if err != nil {
		writeError(w, "invalid nearby query", err)
		return
	}
	list, err := o.Engine.NearbyOfficers(r.Context(), position, limit)
	if err != nil {
		writeError(w, "failed to get nearby officers", err)
		return
	}
	writeResponse(w, http.StatusOK, list)
}

// NearbyOfficersByStationHandler lists the stations around lat/lng with their
// available officers
func (o Officer) NearbyOfficersByStationHandler(w http.ResponseWriter, r *http.Request) {
	position, limit, err := nearbyParams(r)
	if err != nil {
		writeError(w, "invalid nearby query", err)
		return
	}
	list, err := o.Engine.NearbyOfficersByStation(r.Context(), position, limit)
	if err != nil {
		writeError(w, "failed to get nearby stations", err)
		return
	}
	writeResponse(w, http.StatusOK, list)
}

// ActiveLocationsHandler returns the last known position of every on-shift officer
func (o Officer) ActiveLocationsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := o.Tracker.ActiveLocations(r.Context())
	if err != nil {
		writeError(w, "failed to get active locations", err)
		return
	}
	writeResponse(w, http.StatusOK, list)
}

// PurgeLocationHistoryHandler deletes location rows older than days (query)
// that are not tied to a case
func (o Officer) PurgeLocationHistoryHandler(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r.URL.Query().Get("days"), o.RetentionDays)
	if err != nil {
		writeError(w, "invalid days", err)
		return
	}
	deleted, err := o.Tracker.PurgeStaleHistory(r.Context(), days)
	if err != nil {
		writeError(w, "failed to purge location history", err)
		return
	}
	writeResponse(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// UpdateLocationHandler stores the calling officer's position
func (o Officer) UpdateLocationHandler(w http.ResponseWriter, r *http.Request) {
	var body LocationRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, "failed to decode location", err)
		return
	}

	officer, err := o.Officers.FindByUserID(r.Context(), actor(r).ID)
	if err != nil {
		writeError(w, "failed to get officer for account", err)
		return
	}
	if err := o.Tracker.UpdateLocation(r.Context(), officer.ID, body.Fix, body.CaseID); err != nil {
		writeError(w, "failed to update location", err)
		return
	}
	writeResponse(w, http.StatusOK, map[string]string{"officerId": officer.ID})
}

// LocationHistoryHandler returns recent location rows of an officer. Officers
// may only read their own.
func (o Officer) LocationHistoryHandler(w http.ResponseWriter, r *http.Request) {
	officerID := mux.Vars(r)["officer_id"]
	caller := actor(r)

	if !caller.IsAdmin() {
		officer, err := o.Officers.FindByID(r.Context(), officerID)
		if err != nil {
			writeError(w, "failed to get officer by ID", err)
			return
		}
		if officer.UserID != caller.ID {
			writeError(w, "not allowed to read this officer's history", models.ErrForbidden)
			return
		}
	}

	logs, err := o.Tracker.History(r.Context(), officerID, r.URL.Query().Get("caseId"))
	if err != nil {
		writeError(w, "failed to get location history", err)
		return
	}
	writeResponse(w, http.StatusOK, logs)
}

func nearbyParams(r *http.Request) (geo.Point, int, error) {
	q := r.URL.Query()
	lat, err := floatParam(q.Get("lat"))
	if err != nil {
		return geo.Point{}, 0, err
	}
	lng, err := floatParam(q.Get("lng"))
	if err != nil {
		return geo.Point{}, 0, err
	}
	p := geo.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return geo.Point{}, 0, fmt.Errorf("coordinates %v out of range: %w", p, models.ErrInvalidInput)
	}
	limit, err := intParam(q.Get("limit"), dispatch.DefaultNearbyLimit)
	if err != nil {
		return geo.Point{}, 0, err
	}
	if limit < 1 {
		return geo.Point{}, 0, fmt.Errorf("limit must be positive: %w", models.ErrInvalidInput)
	}
	return p, limit, nil
}

func invalidParam(raw string, err error) error {
	return fmt.Errorf("invalid value %q: %v: %w", raw, err, models.ErrInvalidInput)
}
