// Package tracking records officer positions and their location history
package tracking

import (
	"context"
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

// HistoryLimit caps the rows returned by History
const HistoryLimit = 100

// Fix is a single position report from an officer's device
type Fix struct {
	Position  geo.Point `json:"position"`
	AccuracyM *float64  `json:"accuracyM,omitempty"`
}

// ActiveLocation is the last known position of an on-shift officer
type ActiveLocation struct {
	OfficerID   string               `json:"officerId"`
	OfficerCode string               `json:"officerCode"`
	Name        string               `json:"name"`
	Status      models.OfficerStatus `json:"status"`
	StationID   string               `json:"stationId,omitempty"`
	Position    geo.Point            `json:"position"`
	UpdatedAt   *time.Time           `json:"updatedAt,omitempty"`
	Stale       bool                 `json:"stale"`
}

// Tracker updates officer positions
type Tracker struct {
	cfg   config.Dispatch
	store *databases.Store
}

// New creates a Tracker over store
func New(cfg config.Dispatch, store *databases.Store) *Tracker {
	return &Tracker{cfg: cfg, store: store}
}

// UpdateLocation stores the officer's latest position. With a case id the
// fix is also appended to the location history while the case is open and
// held by this officer.
func (t *Tracker) UpdateLocation(ctx context.Context, officerID string, fix Fix, caseID string) error {
	if !fix.Position.Valid() {
		return fmt.Errorf("coordinates %v out of range: %w", fix.Position, models.ErrInvalidInput)
	}
	if fix.AccuracyM != nil && *fix.AccuracyM < 0 {
		return fmt.Errorf("negative accuracy: %w", models.ErrInvalidInput)
	}

	return t.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		logHistory := false
		if caseID != "" {
			sos, err := t.store.Cases.FindByID(ctx, caseID)
			if err != nil {
				return fmt.Errorf("failed to load case %s: %w", caseID, err)
			}
			logHistory = !lifecycle.IsTerminal(sos.Status) && sos.OfficerID == officerID
			if !logHistory && sos.OfficerID != officerID {
				zap.S().Warnw("location for a case held by another officer, history skipped",
					"officerId", officerID, "caseId", caseID, "holder", sos.OfficerID)
			}
		}

		now := time.Now().UTC()
		if err := t.store.Officers.UpdatePosition(ctx, officerID, fix.Position, now); err != nil {
			return err
		}
		if !logHistory {
			zap.S().Debugw("officer location updated", "officerId", officerID)
			return nil
		}

		err := t.store.LocationLogs.InsertOne(ctx, models.LocationLog{
			ID:        uuid.NewString(),
			OfficerID: officerID,
			CaseID:    caseID,
			Position:  fix.Position,
			AccuracyM: fix.AccuracyM,
			Timestamp: now,
		})
		if err != nil {
			return fmt.Errorf("failed to append location history: %w", err)
		}
		zap.S().Debugw("officer location updated", "officerId", officerID, "caseId", caseID)
		return nil
	})
}

// History returns the officer's most recent location rows, newest first,
// optionally only those recorded against caseID.
func (t *Tracker) History(ctx context.Context, officerID, caseID string) ([]models.LocationLog, error) {
	logs, err := t.store.LocationLogs.FindRecent(ctx, officerID, caseID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load location history for officer %s: %w", officerID, err)
	}
	return logs, nil
}

// ActiveLocations lists every officer who is not off duty and has a known
// position. Positions older than the staleness window are flagged.
func (t *Tracker) ActiveLocations(ctx context.Context) ([]ActiveLocation, error) {
	officers, err := t.store.Officers.Find(ctx, models.OfficerFilter{
		Statuses:    []models.OfficerStatus{models.OfficerAvailable, models.OfficerOnDuty, models.OfficerBusy},
		HasPosition: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load officers: %w", err)
	}

	now := time.Now()
	out := make([]ActiveLocation, 0, len(officers))
	for _, o := range officers {
		out = append(out, ActiveLocation{
			OfficerID:   o.ID,
			OfficerCode: o.OfficerCode,
			Name:        o.Name,
			Status:      o.Status,
			StationID:   o.StationID,
			Position:    *o.Position,
			UpdatedAt:   o.PositionUpdatedAt,
			Stale:       !o.PositionFresh(now, t.cfg.OfficerLocationStaleAfter),
		})
	}
	return out, nil
}

// PurgeStaleHistory deletes history rows older than retentionDays that are
// not linked to a case and returns how many were removed.
func (t *Tracker) PurgeStaleHistory(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, fmt.Errorf("retention of %d days: %w", retentionDays, models.ErrInvalidInput)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	n, err := t.store.LocationLogs.DeleteUnlinkedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge location history: %w", err)
	}
	zap.S().Infow("purged stale location history", "deleted", n, "cutoff", cutoff)
	return n, nil
}
