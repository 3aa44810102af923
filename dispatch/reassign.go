package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linesmerrill/sos-dispatch-api/lifecycle"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

// ReassignResult describes a completed reassignment
type ReassignResult struct {
	CaseID            string                `json:"caseId"`
	PreviousOfficerID string                `json:"previousOfficerId,omitempty"`
	Officer           models.Officer        `json:"officer"`
	// Log keeps the case status unless it was CREATED, in which case
	// ToStatus is ASSIGNED.
	Log               models.StatusLogEntry `json:"log"`
}

// Reassign moves a case to newOfficerID on behalf of actorID. The previous
// officer, if any, is released. A case still in CREATED is promoted to
// ASSIGNED since it now has an officer.
func (e *Engine) Reassign(ctx context.Context, caseID, newOfficerID, actorID string) (ReassignResult, error) {
	sos, err := e.store.Cases.FindByID(ctx, caseID)
	if err != nil {
		return ReassignResult{}, fmt.Errorf("failed to load case %s: %w", caseID, err)
	}
	officer, err := e.store.Officers.FindByID(ctx, newOfficerID)
	if err != nil {
		return ReassignResult{}, fmt.Errorf("failed to load officer %s: %w", newOfficerID, err)
	}
	if err := checkReassignable(sos, officer); err != nil {
		return ReassignResult{}, err
	}

	var res ReassignResult
	err = e.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		sos, err := e.store.Cases.FindByID(ctx, caseID)
		if err != nil {
			return fmt.Errorf("failed to load case %s: %w", caseID, err)
		}
		if err := checkReassignable(sos, officer); err != nil {
			return err
		}

		ok, err := e.store.Officers.CompareAndSetStatus(ctx, officer.ID, officer.Status, models.OfficerBusy)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("officer %s changed status: %w", officer.ID, models.ErrConcurrencyConflict)
		}

		to := sos.Status
		if to == models.CaseCreated {
			to = models.CaseAssigned
		}
		now := time.Now().UTC()
		ok, err = e.store.Cases.Assign(ctx, caseID, sos.Status, models.CaseAssignment{
			PreviousOfficerID: sos.OfficerID,
			OfficerID:         officer.ID,
			Status:            to,
			AssignedBy:        actorID,
			AssignedAt:        now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("case %s changed during reassignment: %w", caseID, models.ErrConcurrencyConflict)
		}

		previousCode := "unassigned"
		if sos.OfficerID != "" {
			previousCode = sos.OfficerID
			if prev, err := e.store.Officers.FindByID(ctx, sos.OfficerID); err == nil {
				previousCode = prev.OfficerCode
			}
			err := e.store.Officers.SetStatus(ctx, sos.OfficerID, models.OfficerAvailable)
			if errors.Is(err, models.ErrNotFound) {
				zap.S().Warnw("previous officer no longer exists", "caseId", caseID, "officerId", sos.OfficerID)
			} else if err != nil {
				return fmt.Errorf("failed to release officer %s: %w", sos.OfficerID, err)
			}
		}

		entry := models.StatusLogEntry{
			ID:         uuid.NewString(),
			CaseID:     caseID,
			FromStatus: sos.Status,
			ToStatus:   to,
			ChangedBy:  actorID,
			Notes:      fmt.Sprintf("Reassigned from %s to %s", previousCode, officer.OfficerCode),
			Timestamp:  now,
		}
		if err := e.store.StatusLogs.InsertOne(ctx, entry); err != nil {
			return fmt.Errorf("failed to write status log for case %s: %w", caseID, err)
		}

		assigned := *officer
		assigned.Status = models.OfficerBusy
		res = ReassignResult{CaseID: caseID, PreviousOfficerID: sos.OfficerID, Officer: assigned, Log: entry}
		return nil
	})
	if err != nil {
		return ReassignResult{}, err
	}

	reassignments.Inc()
	zap.S().Infow("case reassigned",
		"caseId", caseID, "previousOfficerId", res.PreviousOfficerID, "officerCode", officer.OfficerCode, "by", actorID)
	return res, nil
}

func checkReassignable(sos *models.Case, officer *models.Officer) error {
	if lifecycle.IsTerminal(sos.Status) {
		return fmt.Errorf("case %s is %s: %w", sos.ID, sos.Status, models.ErrPreconditionFailed)
	}
	if sos.OfficerID == officer.ID {
		return fmt.Errorf("officer %s already holds case %s: %w", officer.ID, sos.ID, models.ErrPreconditionFailed)
	}
	if officer.Status == models.OfficerBusy || officer.Status == models.OfficerOffDuty {
		return fmt.Errorf("officer %s is %s: %w", officer.ID, officer.Status, models.ErrPreconditionFailed)
	}
	return nil
}
