// Package lifecycle holds the case status chain and the guards that decide
// who may move a case along it.
package lifecycle

import (
	"fmt"

	"github.com/linesmerrill/sos-dispatch-api/models"
)

// transitions maps each status to the statuses it may move into
var transitions = map[models.CaseStatus][]models.CaseStatus{
	models.CaseCreated:      {models.CaseAssigned},
	models.CaseAssigned:     {models.CaseAcknowledged},
	models.CaseAcknowledged: {models.CaseEnRoute},
	models.CaseEnRoute:      {models.CaseOnScene},
	models.CaseOnScene:      {models.CaseActionTaken},
	models.CaseActionTaken:  {models.CaseClosed},
	models.CaseClosed:       {},
}

// TransitionError names the rejected move. It matches models.ErrInvalidTransition
// under errors.Is.
type TransitionError struct {
	From models.CaseStatus
	To   models.CaseStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move case from %s to %s", e.From, e.To)
}

// Unwrap lets callers test against models.ErrInvalidTransition
func (e *TransitionError) Unwrap() error {
	return models.ErrInvalidTransition
}

// InitialStatus is the status every new case starts in
func InitialStatus() models.CaseStatus {
	return models.CaseCreated
}

// AllowedNext returns the statuses current may move into. The slice is a copy.
func AllowedNext(current models.CaseStatus) []models.CaseStatus {
	next := transitions[current]
	out := make([]models.CaseStatus, len(next))
	copy(out, next)
	return out
}

// IsTerminal reports whether no further move is possible from status
func IsTerminal(status models.CaseStatus) bool {
	next, ok := transitions[status]
	return ok && len(next) == 0
}

// ValidateTransition returns nil when next equals current or is its
// successor in the chain.
func ValidateTransition(current, next models.CaseStatus) error {
	allowed, ok := transitions[current]
	if !ok || !next.Valid() {
		return &TransitionError{From: current, To: next}
	}
	if current == next {
		return nil
	}
	for _, s := range allowed {
		if s == next {
			return nil
		}
	}
	return &TransitionError{From: current, To: next}
}

// TransitionContext describes the case and actor around a requested move
type TransitionContext struct {
	HasOfficerAssigned     bool
	ActorIsAssignedOfficer bool
	ActorIsAdmin           bool
}

// ValidateWithContext runs ValidateTransition and then the role guards for
// the target status.
func ValidateWithContext(current, next models.CaseStatus, tc TransitionContext) error {
	if err := ValidateTransition(current, next); err != nil {
		return err
	}

	switch next {
	case models.CaseAcknowledged, models.CaseEnRoute, models.CaseOnScene, models.CaseActionTaken:
		if !tc.ActorIsAssignedOfficer && !tc.ActorIsAdmin {
			return fmt.Errorf("only the assigned officer or an admin can move a case to %s: %w", next, models.ErrForbidden)
		}
		if next == models.CaseAcknowledged && !tc.HasOfficerAssigned {
			return fmt.Errorf("case must be assigned before acknowledgement: %w", models.ErrPreconditionFailed)
		}
	case models.CaseClosed:
		if current != models.CaseActionTaken && !tc.ActorIsAdmin {
			return fmt.Errorf("only an admin can close a case before action is taken: %w", models.ErrForbidden)
		}
	}
	return nil
}
