package memstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/sos-dispatch-api/databases/memstore"
	"github.com/linesmerrill/sos-dispatch-api/geo"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

func TestTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Officers.InsertOne(ctx, models.Officer{ID: "o1", OfficerCode: "OD-1", Status: models.OfficerAvailable}))

	boom := errors.New("boom")
	err := store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		ok, err := store.Officers.CompareAndSetStatus(ctx, "o1", models.OfficerAvailable, models.OfficerBusy)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, store.StatusLogs.InsertOne(ctx, models.StatusLogEntry{ID: "l1", CaseID: "c1"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	officer, err := store.Officers.FindByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OfficerAvailable, officer.Status)

	logs, err := store.StatusLogs.FindByCase(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestTransactionCommits(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Officers.InsertOne(ctx, models.Officer{ID: "o1", OfficerCode: "OD-1", Status: models.OfficerAvailable}))

	err := store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		// nested calls join the outer transaction
		return store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
			_, err := store.Officers.CompareAndSetStatus(ctx, "o1", models.OfficerAvailable, models.OfficerBusy)
			return err
		})
	})
	require.NoError(t, err)

	officer, err := store.Officers.FindByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OfficerBusy, officer.Status)
}

func TestTransactionHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := memstore.New().Tx.WithTransaction(ctx, func(ctx context.Context) error {
		t.Fatal("callback must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompareAndSetStatusSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Officers.InsertOne(ctx, models.Officer{ID: "o1", OfficerCode: "OD-1", Status: models.OfficerAvailable}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Officers.CompareAndSetStatus(ctx, "o1", models.OfficerAvailable, models.OfficerBusy)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestCaseNumberIsUnique(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Cases.InsertOne(ctx, models.Case{ID: "c1", CaseNumber: "SOS-1"}))

	err := store.Cases.InsertOne(ctx, models.Case{ID: "c2", CaseNumber: "SOS-1"})
	assert.ErrorIs(t, err, models.ErrDuplicateKey)
}

func TestCaseAssignIsConditional(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Cases.InsertOne(ctx, models.Case{ID: "c1", CaseNumber: "SOS-1", Status: models.CaseCreated}))

	at := time.Now()
	ok, err := store.Cases.Assign(ctx, "c1", models.CaseCreated, models.CaseAssignment{
		OfficerID: "o1", Status: models.CaseAssigned, AssignedBy: models.SystemActor, AssignedAt: at,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// second writer observed the case before the first commit
	ok, err = store.Cases.Assign(ctx, "c1", models.CaseCreated, models.CaseAssignment{
		OfficerID: "o2", Status: models.CaseAssigned, AssignedBy: models.SystemActor, AssignedAt: at,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	sos, err := store.Cases.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "o1", sos.OfficerID)
	assert.Equal(t, models.CaseAssigned, sos.Status)
	assert.Equal(t, models.SystemActor, sos.AssignedBy)
}

func TestCaseUpdateStatusChecksOfficer(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Cases.InsertOne(ctx, models.Case{ID: "c1", CaseNumber: "SOS-1", Status: models.CaseAcknowledged, OfficerID: "o2"}))

	change := models.CaseStatusChange{To: models.CaseClosed, At: time.Now(), ClosureNotes: "done"}
	ok, err := store.Cases.UpdateStatus(ctx, "c1", models.CaseAcknowledged, "o1", change)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Cases.UpdateStatus(ctx, "c1", models.CaseAcknowledged, "o2", change)
	require.NoError(t, err)
	assert.True(t, ok)

	sos, err := store.Cases.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.CaseClosed, sos.Status)
	assert.NotNil(t, sos.ClosedAt)
	assert.Equal(t, "done", sos.ClosureNotes)
}

func TestCaseFindFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"c1", "c2", "c3", "c4"} {
		status := models.CaseCreated
		officer := ""
		if i%2 == 1 {
			status = models.CaseAssigned
			officer = "o1"
		}
		require.NoError(t, store.Cases.InsertOne(ctx, models.Case{
			ID: id, CaseNumber: id, Status: status, OfficerID: officer, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := store.Cases.Find(ctx, models.CaseFilter{})
	require.NoError(t, err)
	assert.Equal(t, "c4", all[0].ID)

	unassigned, err := store.Cases.Find(ctx, models.CaseFilter{Unassigned: true, OldestFirst: true})
	require.NoError(t, err)
	require.Len(t, unassigned, 2)
	assert.Equal(t, "c1", unassigned[0].ID)

	page, err := store.Cases.Find(ctx, models.CaseFilter{Page: 2, Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c1", page[0].ID)

	held, err := store.Cases.Find(ctx, models.CaseFilter{OfficerID: "o1"})
	require.NoError(t, err)
	assert.Len(t, held, 2)
}

func TestOfficerFind(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	p := &geo.Point{Lat: 1, Lng: 1}
	require.NoError(t, store.Officers.InsertOne(ctx, models.Officer{ID: "o1", OfficerCode: "A", Status: models.OfficerAvailable, StationID: "s1", Position: p}))
	require.NoError(t, store.Officers.InsertOne(ctx, models.Officer{ID: "o2", OfficerCode: "B", Status: models.OfficerAvailable, StationID: "s2"}))
	require.NoError(t, store.Officers.InsertOne(ctx, models.Officer{ID: "o3", OfficerCode: "C", Status: models.OfficerBusy, StationID: "s1", Position: p}))

	found, err := store.Officers.Find(ctx, models.OfficerFilter{Statuses: []models.OfficerStatus{models.OfficerAvailable}, HasPosition: true})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "o1", found[0].ID)

	found, err = store.Officers.Find(ctx, models.OfficerFilter{StationIDs: []string{"s1"}})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	err = store.Officers.InsertOne(ctx, models.Officer{ID: "o4", OfficerCode: "A"})
	assert.ErrorIs(t, err, models.ErrDuplicateKey)

	err = store.Officers.SetStatus(ctx, "ghost", models.OfficerOffDuty)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLocationLogs(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	now := time.Now()
	old := now.Add(-10 * 24 * time.Hour)

	require.NoError(t, store.LocationLogs.InsertOne(ctx, models.LocationLog{ID: "l1", OfficerID: "o1", Timestamp: old}))
	require.NoError(t, store.LocationLogs.InsertOne(ctx, models.LocationLog{ID: "l2", OfficerID: "o1", CaseID: "c1", Timestamp: old}))
	require.NoError(t, store.LocationLogs.InsertOne(ctx, models.LocationLog{ID: "l3", OfficerID: "o1", Timestamp: now}))
	require.NoError(t, store.LocationLogs.InsertOne(ctx, models.LocationLog{ID: "l4", OfficerID: "o2", Timestamp: now}))

	recent, err := store.LocationLogs.FindRecent(ctx, "o1", "", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "l3", recent[0].ID)

	scoped, err := store.LocationLogs.FindRecent(ctx, "o1", "c1", 100)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "l2", scoped[0].ID)

	n, err := store.LocationLogs.DeleteUnlinkedBefore(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := store.LocationLogs.FindRecent(ctx, "o1", "", 100)
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestLocks(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	ok, err := store.Locks.TryAcquireLock(ctx, "purge", "web.1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Locks.TryAcquireLock(ctx, "purge", "web.2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Locks.ReleaseLock(ctx, "purge", "web.1"))

	ok, err = store.Locks.TryAcquireLock(ctx, "purge", "web.2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Accounts.InsertOne(ctx, models.Account{ID: "u1", Email: "a@example.com", Role: models.RoleAdmin}))

	account, err := store.Accounts.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", account.ID)

	_, err = store.Accounts.FindByEmail(ctx, "b@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = store.Accounts.InsertOne(ctx, models.Account{ID: "u2", Email: "a@example.com"})
	assert.ErrorIs(t, err, models.ErrDuplicateKey)
}
