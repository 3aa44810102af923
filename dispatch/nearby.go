package dispatch

import (
	"context"
	"fmt"

	"github.com/linesmerrill/sos-dispatch-api/geo"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

// DefaultNearbyLimit caps nearby listings when the caller passes no limit
const DefaultNearbyLimit = 10

// NearbyOfficer is an officer with their distance from the query point
type NearbyOfficer struct {
	Officer    models.Officer `json:"officer"`
	DistanceKm float64        `json:"distanceKm"`
}

// StationOfficers is a station in range with its available officers
type StationOfficers struct {
	Station    models.Station  `json:"station"`
	DistanceKm float64         `json:"distanceKm"`
	Officers   []NearbyOfficer `json:"officers"`
}

// NearbyOfficers lists AVAILABLE and ON_DUTY officers with a known position
// inside the assignment radius, nearest first.
func (e *Engine) NearbyOfficers(ctx context.Context, position geo.Point, limit int) ([]NearbyOfficer, error) {
	if limit <= 0 {
		limit = DefaultNearbyLimit
	}
	officers, err := e.store.Officers.Find(ctx, models.OfficerFilter{
		Statuses:    []models.OfficerStatus{models.OfficerAvailable, models.OfficerOnDuty},
		HasPosition: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load officers: %w", err)
	}

	ranked := geo.WithinRadius(geo.RankByDistance(position, officers, officerPosition), e.cfg.MaxAssignmentDistanceKm)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return toNearby(ranked), nil
}

// NearbyOfficersByStation lists active stations inside the assignment radius,
// nearest first, each with its AVAILABLE officers ranked the way AutoAssign
// ranks them. limit caps the number of stations.
func (e *Engine) NearbyOfficersByStation(ctx context.Context, position geo.Point, limit int) ([]StationOfficers, error) {
	if limit <= 0 {
		limit = DefaultNearbyLimit
	}
	stations, err := e.store.Stations.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stations: %w", err)
	}

	groups, err := e.stationGroups(ctx, position, stations)
	if err != nil {
		return nil, err
	}
	if len(groups) > limit {
		groups = groups[:limit]
	}

	out := make([]StationOfficers, 0, len(groups))
	for _, g := range groups {
		out = append(out, StationOfficers{
			Station:    g.station.Item,
			DistanceKm: g.station.DistanceKm,
			Officers:   toNearby(g.officers),
		})
	}
	return out, nil
}

func toNearby(ranked []geo.Ranked[models.Officer]) []NearbyOfficer {
	out := make([]NearbyOfficer, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, NearbyOfficer{Officer: r.Item, DistanceKm: r.DistanceKm})
	}
	return out
}
