package cases_test

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/sos-dispatch-api/cases"
	"github.com/linesmerrill/sos-dispatch-api/config"
	"github.com/linesmerrill/sos-dispatch-api/databases"
	"github.com/linesmerrill/sos-dispatch-api/databases/memstore"
	"github.com/linesmerrill/sos-dispatch-api/dispatch"
	"github.com/linesmerrill/sos-dispatch-api/geo"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

var (
	here     = geo.Point{Lat: 20.2961, Lng: 85.8245}
	citizen  = models.Actor{ID: "citizen-1", Role: models.RoleCitizen}
	stranger = models.Actor{ID: "citizen-2", Role: models.RoleCitizen}
	admin    = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
	officer  = models.Actor{ID: "user-o1", Role: models.RoleOfficer}
	other    = models.Actor{ID: "user-o2", Role: models.RoleOfficer}
)

func setup(t *testing.T) (*cases.Service, *databases.Store) {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Officers.InsertOne(ctx, models.Officer{ID: "o1", UserID: "user-o1", OfficerCode: "OD-1", Status: models.OfficerBusy}))
	require.NoError(t, store.Officers.InsertOne(ctx, models.Officer{ID: "o2", UserID: "user-o2", OfficerCode: "OD-2", Status: models.OfficerAvailable}))
	return cases.New(store), store
}

// assigned creates a case and hands it to officer o1 at the given status
func assigned(t *testing.T, svc *cases.Service, store *databases.Store, status models.CaseStatus) *models.Case {
	t.Helper()
	ctx := context.Background()
	sos, _, err := svc.Create(ctx, cases.NewCase{ReporterID: citizen.ID, Position: here})
	require.NoError(t, err)
	ok, err := store.Cases.Assign(ctx, sos.ID, models.CaseCreated, models.CaseAssignment{
		OfficerID: "o1", Status: status, AssignedBy: models.SystemActor, AssignedAt: time.Now(),
	})
	require.NoError(t, err)
	require.True(t, ok)
	return sos
}

func TestNewCaseNumber(t *testing.T) {
	at := time.Date(2024, 3, 9, 7, 5, 3, 0, time.UTC)
	n := cases.NewCaseNumber(at)
	assert.Regexp(t, regexp.MustCompile(`^SOS-20240309-070503-[1-9]\d{3}$`), n)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)
	accuracy := 8.0

	sos, entry, err := svc.Create(ctx, cases.NewCase{ReporterID: citizen.ID, Position: here, AccuracyM: &accuracy, Description: "help"})
	require.NoError(t, err)

	assert.Equal(t, models.CaseCreated, sos.Status)
	assert.Equal(t, cases.DefaultPriority, sos.Priority)
	assert.Empty(t, sos.OfficerID)
	assert.Regexp(t, `^SOS-\d{8}-\d{6}-\d{4}$`, sos.CaseNumber)

	assert.Empty(t, entry.FromStatus)
	assert.Equal(t, models.CaseCreated, entry.ToStatus)
	assert.Equal(t, citizen.ID, entry.ChangedBy)

	stored, err := store.Cases.FindByID(ctx, sos.ID)
	require.NoError(t, err)
	assert.Equal(t, "help", stored.Description)

	logs, err := store.StatusLogs.FindByCase(ctx, sos.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestCreate_RejectsBadInput(t *testing.T) {
	svc, _ := setup(t)
	_, _, err := svc.Create(context.Background(), cases.NewCase{ReporterID: citizen.ID, Position: geo.Point{Lat: 100}})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, _, err = svc.Create(context.Background(), cases.NewCase{Position: here})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

// collidingCases rejects the first inserts as duplicate case numbers
type collidingCases struct {
	databases.CaseDatabase
	failures int
}

func (c *collidingCases) InsertOne(ctx context.Context, sos models.Case) error {
	if c.failures > 0 {
		c.failures--
		return fmt.Errorf("case number %s: %w", sos.CaseNumber, models.ErrDuplicateKey)
	}
	return c.CaseDatabase.InsertOne(ctx, sos)
}

func TestCreate_RetriesOnCaseNumberCollision(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.Cases = &collidingCases{CaseDatabase: store.Cases, failures: 2}

	sos, _, err := cases.New(store).Create(ctx, cases.NewCase{ReporterID: citizen.ID, Position: here})
	require.NoError(t, err)
	_, err = store.Cases.FindByID(ctx, sos.ID)
	assert.NoError(t, err)
}

func TestCreate_GivesUpAfterRepeatedCollisions(t *testing.T) {
	store := memstore.New()
	store.Cases = &collidingCases{CaseDatabase: store.Cases, failures: 100}

	_, _, err := cases.New(store).Create(context.Background(), cases.NewCase{ReporterID: citizen.ID, Position: here})
	assert.ErrorIs(t, err, models.ErrDuplicateKey)
}

func TestGet_Access(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)
	sos := assigned(t, svc, store, models.CaseAssigned)

	for _, actor := range []models.Actor{citizen, admin, officer} {
		got, err := svc.Get(ctx, sos.ID, actor)
		require.NoError(t, err, actor.ID)
		assert.Equal(t, sos.ID, got.ID)
	}
	for _, actor := range []models.Actor{stranger, other} {
		_, err := svc.Get(ctx, sos.ID, actor)
		assert.ErrorIs(t, err, models.ErrForbidden, actor.ID)
	}

	_, err := svc.Get(ctx, "missing", admin)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)
	for i := 0; i < 3; i++ {
		_, _, err := svc.Create(ctx, cases.NewCase{ReporterID: citizen.ID, Position: here})
		require.NoError(t, err)
	}

	list, err := svc.List(ctx, models.CaseFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, err = svc.List(ctx, models.CaseFilter{Limit: 2, Page: 2})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = svc.List(ctx, models.CaseFilter{Status: models.CaseClosed})
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = svc.List(ctx, models.CaseFilter{Status: "NOPE"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestUpdateStatus_OfficerWalksTheChain(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)
	sos := assigned(t, svc, store, models.CaseAssigned)

	for _, next := range []models.CaseStatus{models.CaseAcknowledged, models.CaseEnRoute, models.CaseOnScene, models.CaseActionTaken} {
		updated, entry, err := svc.UpdateStatus(ctx, sos.ID, next, "", officer)
		require.NoError(t, err, next)
		assert.Equal(t, next, updated.Status)
		assert.Equal(t, next, entry.ToStatus)
		assert.Equal(t, officer.ID, entry.ChangedBy)
	}

	closed, entry, err := svc.UpdateStatus(ctx, sos.ID, models.CaseClosed, "resolved on scene", officer)
	require.NoError(t, err)
	assert.Equal(t, models.CaseClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)
	assert.Equal(t, "resolved on scene", closed.ClosureNotes)
	assert.Equal(t, models.CaseActionTaken, entry.FromStatus)

	o, err := store.Officers.FindByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OfficerAvailable, o.Status)

	history, err := svc.History(ctx, sos.ID, citizen)
	require.NoError(t, err)
	require.Len(t, history, 6)
	assert.Equal(t, models.CaseCreated, history[0].ToStatus)
	assert.Equal(t, models.CaseClosed, history[5].ToStatus)
}

func TestUpdateStatus_Guards(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)
	sos := assigned(t, svc, store, models.CaseAssigned)

	_, _, err := svc.UpdateStatus(ctx, sos.ID, models.CaseAcknowledged, "", other)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, _, err = svc.UpdateStatus(ctx, sos.ID, models.CaseOnScene, "", officer)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, _, err = svc.UpdateStatus(ctx, sos.ID, models.CaseClosed, "", officer)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, _, err = svc.UpdateStatus(ctx, "missing", models.CaseAcknowledged, "", admin)
	assert.ErrorIs(t, err, models.ErrNotFound)

	unassigned, _, err := svc.Create(ctx, cases.NewCase{ReporterID: citizen.ID, Position: here})
	require.NoError(t, err)
	_, _, err = svc.UpdateStatus(ctx, unassigned.ID, models.CaseAssigned, "", admin)
	require.NoError(t, err)
	_, _, err = svc.UpdateStatus(ctx, unassigned.ID, models.CaseAcknowledged, "", admin)
	assert.ErrorIs(t, err, models.ErrPreconditionFailed)

	// rejected moves leave no trace
	history, err := svc.History(ctx, sos.ID, admin)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestUpdateStatus_ClosedStaysClosed(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)
	sos := assigned(t, svc, store, models.CaseActionTaken)

	_, _, err := svc.UpdateStatus(ctx, sos.ID, models.CaseClosed, "false alarm", admin)
	require.NoError(t, err)

	_, _, err = svc.UpdateStatus(ctx, sos.ID, models.CaseOnScene, "", admin)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, _, err = svc.UpdateStatus(ctx, sos.ID, models.CaseClosed, "", officer)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

// interceptedCases lets a test substitute the case returned by the first
// FindByID
type interceptedCases struct {
	databases.CaseDatabase
	before func(found *models.Case) *models.Case
}

func (c *interceptedCases) FindByID(ctx context.Context, id string) (*models.Case, error) {
	found, err := c.CaseDatabase.FindByID(ctx, id)
	if err != nil || c.before == nil {
		return found, err
	}
	before := c.before
	c.before = nil
	return before(found), nil
}

func officerStatus(t *testing.T, store *databases.Store, id string) models.OfficerStatus {
	t.Helper()
	o, err := store.Officers.FindByID(context.Background(), id)
	require.NoError(t, err)
	return o.Status
}

// handOver moves case1 from o1 to o2 and gives o1 a fresh case
func handOver(ctx context.Context, t *testing.T, svc *cases.Service, engine *dispatch.Engine, caseID string) *models.Case {
	t.Helper()
	_, err := engine.Reassign(ctx, caseID, "o2", admin.ID)
	require.NoError(t, err)
	next, _, err := svc.Create(ctx, cases.NewCase{ReporterID: citizen.ID, Position: here})
	require.NoError(t, err)
	_, err = engine.Reassign(ctx, next.ID, "o1", admin.ID)
	require.NoError(t, err)
	return next
}

func TestUpdateStatus_CloseReleasesCurrentHolder(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)
	engine := dispatch.New(config.Dispatch{}, store)
	first := assigned(t, svc, store, models.CaseOnScene)
	second := handOver(ctx, t, svc, engine, first.ID)

	// o1 no longer holds the first case
	_, _, err := svc.UpdateStatus(ctx, first.ID, models.CaseActionTaken, "", officer)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, _, err = svc.UpdateStatus(ctx, first.ID, models.CaseActionTaken, "", other)
	require.NoError(t, err)
	closed, _, err := svc.UpdateStatus(ctx, first.ID, models.CaseClosed, "done", officer)
	require.NoError(t, err)
	assert.Equal(t, "o2", closed.OfficerID)

	assert.Equal(t, models.OfficerAvailable, officerStatus(t, store, "o2"))
	assert.Equal(t, models.OfficerBusy, officerStatus(t, store, "o1"))
	got, err := store.Cases.FindByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "o1", got.OfficerID)
	assert.Equal(t, models.CaseAssigned, got.Status)
}

func TestUpdateStatus_StaleReadDoesNotCloseOrRelease(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)
	engine := dispatch.New(config.Dispatch{}, store)
	first := assigned(t, svc, store, models.CaseActionTaken)

	stale, err := store.Cases.FindByID(ctx, first.ID)
	require.NoError(t, err)
	second := handOver(ctx, t, svc, engine, first.ID)

	store.Cases = &interceptedCases{
		CaseDatabase: store.Cases,
		before:       func(*models.Case) *models.Case { return stale },
	}

	_, _, err = svc.UpdateStatus(ctx, first.ID, models.CaseClosed, "done", officer)
	assert.ErrorIs(t, err, models.ErrConcurrencyConflict)

	got, err := store.Cases.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseActionTaken, got.Status)
	assert.Equal(t, "o2", got.OfficerID)
	got, err = store.Cases.FindByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "o1", got.OfficerID)
	assert.Equal(t, models.OfficerBusy, officerStatus(t, store, "o1"))
	assert.Equal(t, models.OfficerBusy, officerStatus(t, store, "o2"))

	history, err := svc.History(ctx, first.ID, admin)
	require.NoError(t, err)
	for _, entry := range history {
		assert.NotEqual(t, models.CaseClosed, entry.ToStatus)
	}
}
