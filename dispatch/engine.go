// Package dispatch matches cases to officers. It ranks stations and officers
// by distance and reserves one officer per case inside a single transaction.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linesmerrill/sos-dispatch-api/config"
	"github.com/linesmerrill/sos-dispatch-api/databases"
	"github.com/linesmerrill/sos-dispatch-api/geo"
	"github.com/linesmerrill/sos-dispatch-api/lifecycle"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

// Outcome is the non-error result of an auto-assignment
type Outcome string

// Auto-assignment outcomes
const (
	OutcomeAssigned            Outcome = "ASSIGNED"
	OutcomeNoOfficersAvailable Outcome = "NO_OFFICERS_AVAILABLE"
	OutcomeSkipped             Outcome = "SKIPPED"
)

// AssignResult describes what AutoAssign did. Log is the committed status
// log row when an officer was assigned.
type AssignResult struct {
	Outcome     Outcome                `json:"outcome"`
	CaseID      string                 `json:"caseId"`
	OfficerID   string                 `json:"officerId,omitempty"`
	OfficerCode string                 `json:"officerCode,omitempty"`
	StationID   string                 `json:"stationId,omitempty"`
	DistanceKm  float64                `json:"distanceKm,omitempty"`
	Log         *models.StatusLogEntry `json:"log,omitempty"`
}

// Engine ranks and reserves officers for cases
type Engine struct {
	cfg   config.Dispatch
	store *databases.Store
}

// New creates an Engine over store
func New(cfg config.Dispatch, store *databases.Store) *Engine {
	if cfg.MaxCommitAttempts < 1 {
		cfg.MaxCommitAttempts = 1
	}
	return &Engine{cfg: cfg, store: store}
}

// candidate is an officer considered for a case, with the distance used to rank it
type candidate struct {
	officer    models.Officer
	station    *models.Station
	distanceKm float64
}

func (c candidate) note() string {
	if c.station != nil {
		return fmt.Sprintf("Auto-assigned to %s from %s (%.2fkm away)", c.officer.OfficerCode, c.station.Name, c.distanceKm)
	}
	return fmt.Sprintf("Auto-assigned to %s (%.2fkm away)", c.officer.OfficerCode, c.distanceKm)
}

// AutoAssign reserves the nearest available officer for the case at position.
// No officer in range is reported as OutcomeNoOfficersAvailable and leaves
// the case untouched.
func (e *Engine) AutoAssign(ctx context.Context, caseID string, position geo.Point) (AssignResult, error) {
	if !e.cfg.AutoAssignEnabled {
		zap.S().Infow("auto-assignment is disabled", "caseId", caseID)
		assignmentOutcomes.WithLabelValues(string(OutcomeSkipped)).Inc()
		return AssignResult{Outcome: OutcomeSkipped, CaseID: caseID}, nil
	}

	sos, err := e.store.Cases.FindByID(ctx, caseID)
	if err != nil {
		return AssignResult{}, fmt.Errorf("failed to load case %s: %w", caseID, err)
	}
	if err := checkAssignable(sos); err != nil {
		return AssignResult{}, err
	}

	candidates, err := e.rankCandidates(ctx, position)
	if err != nil {
		return AssignResult{}, err
	}

	attempts := 0
	for _, c := range candidates {
		if attempts == e.cfg.MaxCommitAttempts {
			break
		}
		attempts++

		entry, err := e.commit(ctx, caseID, c)
		if errors.Is(err, models.ErrConcurrencyConflict) {
			commitConflicts.Inc()
			zap.S().Warnw("assignment commit lost a race, trying next officer",
				"caseId", caseID, "officerId", c.officer.ID, "attempt", attempts, "error", err)
			continue
		}
		if err != nil {
			return AssignResult{}, err
		}

		zap.S().Infow("auto-assigned officer",
			"caseId", caseID, "officerCode", c.officer.OfficerCode, "distanceKm", c.distanceKm)
		assignmentOutcomes.WithLabelValues(string(OutcomeAssigned)).Inc()

		res := AssignResult{
			Outcome:     OutcomeAssigned,
			CaseID:      caseID,
			OfficerID:   c.officer.ID,
			OfficerCode: c.officer.OfficerCode,
			DistanceKm:  c.distanceKm,
			Log:         entry,
		}
		if c.station != nil {
			res.StationID = c.station.ID
		}
		return res, nil
	}

	zap.S().Warnw("no officers available for case",
		"caseId", caseID, "candidates", len(candidates), "attempts", attempts,
		"maxDistanceKm", e.cfg.MaxAssignmentDistanceKm)
	assignmentOutcomes.WithLabelValues(string(OutcomeNoOfficersAvailable)).Inc()
	return AssignResult{Outcome: OutcomeNoOfficersAvailable, CaseID: caseID}, nil
}

func checkAssignable(sos *models.Case) error {
	if sos.OfficerID != "" {
		return fmt.Errorf("case %s is already assigned to officer %s: %w", sos.ID, sos.OfficerID, models.ErrPreconditionFailed)
	}
	return lifecycle.ValidateTransition(sos.Status, models.CaseAssigned)
}

// commit reserves c.officer for the case. The case is re-read inside the
// transaction and every write is conditional on what was read, so a lost
// race rolls the whole commit back with models.ErrConcurrencyConflict.
func (e *Engine) commit(ctx context.Context, caseID string, c candidate) (*models.StatusLogEntry, error) {
	var entry models.StatusLogEntry
	err := e.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		sos, err := e.store.Cases.FindByID(ctx, caseID)
		if err != nil {
			return fmt.Errorf("failed to load case %s: %w", caseID, err)
		}
		if err := checkAssignable(sos); err != nil {
			return err
		}

		ok, err := e.store.Officers.CompareAndSetStatus(ctx, c.officer.ID, models.OfficerAvailable, models.OfficerBusy)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("officer %s is no longer available: %w", c.officer.ID, models.ErrConcurrencyConflict)
		}

		now := time.Now().UTC()
		ok, err = e.store.Cases.Assign(ctx, caseID, sos.Status, models.CaseAssignment{
			OfficerID:  c.officer.ID,
			Status:     models.CaseAssigned,
			AssignedBy: models.SystemActor,
			AssignedAt: now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("case %s changed during assignment: %w", caseID, models.ErrConcurrencyConflict)
		}

		entry = models.StatusLogEntry{
			ID:         uuid.NewString(),
			CaseID:     caseID,
			FromStatus: sos.Status,
			ToStatus:   models.CaseAssigned,
			ChangedBy:  models.SystemActor,
			Notes:      c.note(),
			Timestamp:  now,
		}
		if err := e.store.StatusLogs.InsertOne(ctx, entry); err != nil {
			return fmt.Errorf("failed to write status log for case %s: %w", caseID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// rankCandidates walks active stations nearest first. Without any station it
// falls back to ranking every available officer by their own position.
func (e *Engine) rankCandidates(ctx context.Context, position geo.Point) ([]candidate, error) {
	stations, err := e.store.Stations.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stations: %w", err)
	}
	if len(stations) == 0 {
		return e.rankFallback(ctx, position)
	}

	groups, err := e.stationGroups(ctx, position, stations)
	if err != nil {
		return nil, err
	}
	var candidates []candidate
	for _, g := range groups {
		for _, o := range g.officers {
			candidates = append(candidates, candidate{officer: o.Item, station: &g.station.Item, distanceKm: o.DistanceKm})
		}
	}
	return candidates, nil
}

type stationGroup struct {
	station  geo.Ranked[models.Station]
	officers []geo.Ranked[models.Officer]
}

// stationGroups ranks the in-radius stations and their AVAILABLE officers.
// Officers are fetched with one query for every station in range. An officer
// without a fresh fix is ranked as if standing at their station.
func (e *Engine) stationGroups(ctx context.Context, position geo.Point, stations []models.Station) ([]stationGroup, error) {
	inRange := geo.WithinRadius(geo.RankByDistance(position, stations, stationPosition), e.cfg.MaxAssignmentDistanceKm)
	if len(inRange) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(inRange))
	for _, s := range inRange {
		ids = append(ids, s.Item.ID)
	}
	officers, err := e.store.Officers.Find(ctx, models.OfficerFilter{
		Statuses:   []models.OfficerStatus{models.OfficerAvailable},
		StationIDs: ids,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load station officers: %w", err)
	}
	byStation := make(map[string][]models.Officer, len(inRange))
	for _, o := range officers {
		byStation[o.StationID] = append(byStation[o.StationID], o)
	}

	now := time.Now()
	groups := make([]stationGroup, 0, len(inRange))
	for _, s := range inRange {
		station := s.Item
		members := byStation[station.ID]
		if len(members) == 0 {
			continue
		}
		ranked := geo.RankByDistance(position, members, func(o models.Officer) geo.Point {
			if o.PositionFresh(now, e.cfg.OfficerLocationStaleAfter) {
				return *o.Position
			}
			return station.Position
		})
		groups = append(groups, stationGroup{station: s, officers: ranked})
	}
	return groups, nil
}

func (e *Engine) rankFallback(ctx context.Context, position geo.Point) ([]candidate, error) {
	officers, err := e.store.Officers.Find(ctx, models.OfficerFilter{
		Statuses:    []models.OfficerStatus{models.OfficerAvailable},
		HasPosition: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load available officers: %w", err)
	}

	ranked := geo.WithinRadius(geo.RankByDistance(position, officers, officerPosition), e.cfg.MaxAssignmentDistanceKm)
	candidates := make([]candidate, 0, len(ranked))
	for _, r := range ranked {
		candidates = append(candidates, candidate{officer: r.Item, distanceKm: r.DistanceKm})
	}
	return candidates, nil
}

func stationPosition(s models.Station) geo.Point { return s.Position }

// officerPosition must only be used on officers filtered with HasPosition
func officerPosition(o models.Officer) geo.Point { return *o.Position }
