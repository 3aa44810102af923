// Package cases handles case intake, lookups and status updates
package cases

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linesmerrill/sos-dispatch-api/databases"
	"github.com/linesmerrill/sos-dispatch-api/geo"
	"github.com/linesmerrill/sos-dispatch-api/lifecycle"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

const (
	// DefaultPriority is given to every new case
	DefaultPriority = 1
	// DefaultListLimit and MaxListLimit bound case listings
	DefaultListLimit = 20
	MaxListLimit     = 100

	caseNumberAttempts = 5
)

// NewCase is a distress signal as reported by a citizen
type NewCase struct {
	ReporterID  string
	Position    geo.Point
	AccuracyM   *float64
	Description string
}

// Service creates cases and moves them through their lifecycle
type Service struct {
	store *databases.Store
}

// New creates a Service over store
func New(store *databases.Store) *Service {
	return &Service{store: store}
}

// NewCaseNumber formats a case number as SOS-YYYYMMDD-HHMMSS-NNNN with four
// random digits
func NewCaseNumber(at time.Time) string {
	return fmt.Sprintf("SOS-%s-%04d", at.Format("20060102-150405"), 1000+rand.IntN(9000))
}

// Create stores a new case in the initial status together with its creation
// log row. The case number is regenerated when it collides.
func (s *Service) Create(ctx context.Context, nc NewCase) (*models.Case, *models.StatusLogEntry, error) {
	if !nc.Position.Valid() {
		return nil, nil, fmt.Errorf("coordinates %v out of range: %w", nc.Position, models.ErrInvalidInput)
	}
	if nc.ReporterID == "" {
		return nil, nil, fmt.Errorf("missing reporter: %w", models.ErrInvalidInput)
	}

	for attempt := 1; ; attempt++ {
		now := time.Now().UTC()
		sos := models.Case{
			ID:          uuid.NewString(),
			CaseNumber:  NewCaseNumber(now),
			ReporterID:  nc.ReporterID,
			Position:    nc.Position,
			AccuracyM:   nc.AccuracyM,
			Description: nc.Description,
			Priority:    DefaultPriority,
			Status:      lifecycle.InitialStatus(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		entry := models.StatusLogEntry{
			ID:        uuid.NewString(),
			CaseID:    sos.ID,
			ToStatus:  sos.Status,
			ChangedBy: nc.ReporterID,
			Notes:     "SOS created",
			Timestamp: now,
		}

		err := s.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
			if err := s.store.Cases.InsertOne(ctx, sos); err != nil {
				return err
			}
			return s.store.StatusLogs.InsertOne(ctx, entry)
		})
		if errors.Is(err, models.ErrDuplicateKey) && attempt < caseNumberAttempts {
			zap.S().Warnw("case number collision, regenerating", "caseNumber", sos.CaseNumber, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create case: %w", err)
		}

		zap.S().Infow("case created", "caseId", sos.ID, "caseNumber", sos.CaseNumber)
		return &sos, &entry, nil
	}
}

// Get returns the case when actor is an admin, its reporter or its assigned officer
func (s *Service) Get(ctx context.Context, caseID string, actor models.Actor) (*models.Case, error) {
	sos, err := s.store.Cases.FindByID(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case %s: %w", caseID, err)
	}
	if err := s.authorize(ctx, sos, actor); err != nil {
		return nil, err
	}
	return sos, nil
}

func (s *Service) authorize(ctx context.Context, sos *models.Case, actor models.Actor) error {
	if actor.IsAdmin() || sos.ReporterID == actor.ID {
		return nil
	}
	assigned, err := s.isAssignedOfficer(ctx, sos, actor)
	if err != nil {
		return err
	}
	if !assigned {
		return fmt.Errorf("case %s: %w", sos.ID, models.ErrForbidden)
	}
	return nil
}

// isAssignedOfficer reports whether actor is the account behind the case's officer
func (s *Service) isAssignedOfficer(ctx context.Context, sos *models.Case, actor models.Actor) (bool, error) {
	if sos.OfficerID == "" || actor.Role != models.RoleOfficer {
		return false, nil
	}
	officer, err := s.store.Officers.FindByID(ctx, sos.OfficerID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load officer %s: %w", sos.OfficerID, err)
	}
	return officer.UserID == actor.ID, nil
}

// List returns cases matching f, newest first unless f asks otherwise
func (s *Service) List(ctx context.Context, f models.CaseFilter) ([]models.Case, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", f.Status, models.ErrInvalidInput)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	f.Limit = min(f.Limit, MaxListLimit)

	list, err := s.store.Cases.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	if list == nil {
		list = []models.Case{}
	}
	return list, nil
}

// History returns the status log of a case, oldest first
func (s *Service) History(ctx context.Context, caseID string, actor models.Actor) ([]models.StatusLogEntry, error) {
	if _, err := s.Get(ctx, caseID, actor); err != nil {
		return nil, err
	}
	entries, err := s.store.StatusLogs.FindByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history of case %s: %w", caseID, err)
	}
	if entries == nil {
		entries = []models.StatusLogEntry{}
	}
	return entries, nil
}

// UpdateStatus moves a case to next on behalf of actor. Closing a case
// releases its officer. The case is read and checked inside the
// transaction and the write is conditional on the status and officer that
// were read, so a concurrent reassignment rolls it back.
func (s *Service) UpdateStatus(ctx context.Context, caseID string, next models.CaseStatus, notes string, actor models.Actor) (*models.Case, *models.StatusLogEntry, error) {
	var (
		sos   *models.Case
		entry models.StatusLogEntry
	)
	err := s.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		sos, err = s.store.Cases.FindByID(ctx, caseID)
		if err != nil {
			return fmt.Errorf("failed to load case %s: %w", caseID, err)
		}
		assigned, err := s.isAssignedOfficer(ctx, sos, actor)
		if err != nil {
			return err
		}
		err = lifecycle.ValidateWithContext(sos.Status, next, lifecycle.TransitionContext{
			HasOfficerAssigned:     sos.OfficerID != "",
			ActorIsAssignedOfficer: assigned,
			ActorIsAdmin:           actor.IsAdmin(),
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		entry = models.StatusLogEntry{
			ID:         uuid.NewString(),
			CaseID:     caseID,
			FromStatus: sos.Status,
			ToStatus:   next,
			ChangedBy:  actor.ID,
			Notes:      notes,
			Timestamp:  now,
		}
		change := models.CaseStatusChange{To: next, At: now}
		if next == models.CaseClosed {
			change.ClosureNotes = notes
		}

		ok, err := s.store.Cases.UpdateStatus(ctx, caseID, sos.Status, sos.OfficerID, change)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("case %s changed while updating status: %w", caseID, models.ErrConcurrencyConflict)
		}
		if err := s.store.StatusLogs.InsertOne(ctx, entry); err != nil {
			return fmt.Errorf("failed to write status log for case %s: %w", caseID, err)
		}
		if next == models.CaseClosed && sos.Status != models.CaseClosed && sos.OfficerID != "" {
			if _, err := s.store.Officers.CompareAndSetStatus(ctx, sos.OfficerID, models.OfficerBusy, models.OfficerAvailable); err != nil {
				return fmt.Errorf("failed to release officer %s: %w", sos.OfficerID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	updated, err := s.store.Cases.FindByID(ctx, caseID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reload case %s: %w", caseID, err)
	}
	zap.S().Infow("case status updated", "caseNumber", sos.CaseNumber, "from", sos.Status, "to", next, "by", actor.ID)
	return updated, &entry, nil
}
