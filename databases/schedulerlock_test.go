package databases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/sos-dispatch-api/databases"
	"github.com/linesmerrill/sos-dispatch-api/databases/mocks"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

func TestSchedulerLockDatabase_TryAcquireLock(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	collectionHelper.On("UpdateOne", context.Background(), mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{UpsertedCount: 1}, nil).Once()
	collectionHelper.On("UpdateOne", context.Background(), mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.Join(models.ErrDuplicateKey, errors.New("E11000"))).Once()
	collectionHelper.On("UpdateOne", context.Background(), mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("mocked-error")).Once()
	dbHelper.On("Collection", "schedulerlocks").Return(collectionHelper)

	lockDB := databases.NewSchedulerLockDatabase(dbHelper)

	ok, err := lockDB.TryAcquireLock(context.Background(), "purge", "web.1", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = lockDB.TryAcquireLock(context.Background(), "purge", "web.2", time.Minute)
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = lockDB.TryAcquireLock(context.Background(), "purge", "web.2", time.Minute)
	assert.EqualError(t, err, "mocked-error")
	assert.False(t, ok)
}

func TestSchedulerLockDatabase_ReleaseLock(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	collectionHelper.On("DeleteOne", context.Background(), bson.M{"_id": "purge", "owner": "web.1"}).
		Return(&mongo.DeleteResult{DeletedCount: 1}, nil)
	dbHelper.On("Collection", "schedulerlocks").Return(collectionHelper)

	lockDB := databases.NewSchedulerLockDatabase(dbHelper)
	assert.NoError(t, lockDB.ReleaseLock(context.Background(), "purge", "web.1"))
	collectionHelper.AssertExpectations(t)
}
