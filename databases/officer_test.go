package databases_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/sos-dispatch-api/databases"
	"github.com/linesmerrill/sos-dispatch-api/databases/mocks"
	"github.com/linesmerrill/sos-dispatch-api/geo"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

func TestOfficerDatabase_FindByUserID(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	srHelper := &mocks.SingleResultHelper{}

	srHelper.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*models.Officer)
		arg.ID = "officer-1"
		arg.UserID = "user-1"
	})
	collectionHelper.On("FindOne", context.Background(), bson.M{"userId": "user-1"}).Return(srHelper)
	dbHelper.On("Collection", "officers").Return(collectionHelper)

	officerDB := databases.NewOfficerDatabase(dbHelper)
	officer, err := officerDB.FindByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "officer-1", officer.ID)
}

func TestOfficerDatabase_FindBuildsFilter(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	cursorHelper := &mocks.CursorHelper{}

	cursorHelper.On("All", context.Background(), mock.Anything).Return(nil)
	collectionHelper.On("Find", context.Background(), bson.M{
		"status":    bson.M{"$in": []models.OfficerStatus{models.OfficerAvailable}},
		"stationId": bson.M{"$in": []string{"station-1", "station-2"}},
		"position":  bson.M{"$exists": true, "$ne": nil},
	}, mock.Anything).Return(cursorHelper, nil)
	dbHelper.On("Collection", "officers").Return(collectionHelper)

	officerDB := databases.NewOfficerDatabase(dbHelper)
	_, err := officerDB.Find(context.Background(), models.OfficerFilter{
		Statuses:    []models.OfficerStatus{models.OfficerAvailable},
		StationIDs:  []string{"station-1", "station-2"},
		HasPosition: true,
	})
	assert.NoError(t, err)
	collectionHelper.AssertExpectations(t)
}

func TestOfficerDatabase_CompareAndSetStatus(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	collectionHelper.On("UpdateOne", context.Background(),
		bson.M{"_id": "free", "status": models.OfficerAvailable}, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1}, nil)
	collectionHelper.On("UpdateOne", context.Background(),
		bson.M{"_id": "taken", "status": models.OfficerAvailable}, mock.Anything).
		Return(&mongo.UpdateResult{}, nil)
	dbHelper.On("Collection", "officers").Return(collectionHelper)

	officerDB := databases.NewOfficerDatabase(dbHelper)

	ok, err := officerDB.CompareAndSetStatus(context.Background(), "free", models.OfficerAvailable, models.OfficerBusy)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = officerDB.CompareAndSetStatus(context.Background(), "taken", models.OfficerAvailable, models.OfficerBusy)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestOfficerDatabase_UpdatePositionMissing(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	collectionHelper.On("UpdateOne", context.Background(), bson.M{"_id": "ghost"}, mock.Anything).
		Return(&mongo.UpdateResult{}, nil)
	dbHelper.On("Collection", "officers").Return(collectionHelper)

	officerDB := databases.NewOfficerDatabase(dbHelper)
	err := officerDB.UpdatePosition(context.Background(), "ghost", geo.Point{Lat: 1, Lng: 1}, time.Now())
	assert.ErrorIs(t, err, models.ErrNotFound)
}
