package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/linesmerrill/sos-dispatch-api/models"
)

// DefaultRetryBatch is how many waiting cases RetryUnassigned looks at when
// the caller passes no limit
const DefaultRetryBatch = 25

// RetryUnassigned runs AutoAssign for the oldest CREATED cases that still
// have no officer and returns one result per case it looked at.
func (e *Engine) RetryUnassigned(ctx context.Context, limit int) ([]AssignResult, error) {
	if !e.cfg.AutoAssignEnabled {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultRetryBatch
	}

	waiting, err := e.store.Cases.Find(ctx, models.CaseFilter{
		Status:      models.CaseCreated,
		Unassigned:  true,
		OldestFirst: true,
		Limit:       limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load unassigned cases: %w", err)
	}

	results := make([]AssignResult, 0, len(waiting))
	for _, sos := range waiting {
		res, err := e.AutoAssign(ctx, sos.ID, sos.Position)
		switch {
		case errors.Is(err, models.ErrPreconditionFailed), errors.Is(err, models.ErrInvalidTransition):
			// assigned by someone else since the listing
			zap.S().Debugw("skipping case assigned elsewhere", "caseId", sos.ID, "error", err)
			continue
		case err != nil:
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
