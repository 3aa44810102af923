package databases

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Transactor runs fn as one atomic unit. Every database call made with the
// ctx handed to fn commits or rolls back together, and fn returning an error
// rolls everything back.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type sessionTransactor struct {
	client ClientHelper
}

// NewTransactor returns a Transactor backed by mongo sessions
func NewTransactor(client ClientHelper) Transactor {
	return &sessionTransactor{client: client}
}

func (t *sessionTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	return session.WithTransaction(ctx, fn)
}

// Store bundles every collection the dispatch services work with
type Store struct {
	Tx           Transactor
	Cases        CaseDatabase
	Officers     OfficerDatabase
	Stations     StationDatabase
	StatusLogs   StatusLogDatabase
	LocationLogs LocationLogDatabase
	Accounts     AccountDatabase
	Locks        SchedulerLockDatabase
}

// NewStore wires the mongo backed collections of db
func NewStore(db DatabaseHelper, client ClientHelper) *Store {
	return &Store{
		Tx:           NewTransactor(client),
		Cases:        NewCaseDatabase(db),
		Officers:     NewOfficerDatabase(db),
		Stations:     NewStationDatabase(db),
		StatusLogs:   NewStatusLogDatabase(db),
		LocationLogs: NewLocationLogDatabase(db),
		Accounts:     NewAccountDatabase(db),
		Locks:        NewSchedulerLockDatabase(db),
	}
}

type index struct {
	collection string
	model      mongo.IndexModel
}

var indexes = []index{
	{caseName, mongo.IndexModel{Keys: bson.D{{Key: "caseNumber", Value: 1}}, Options: options.Index().SetUnique(true)}},
	{caseName, mongo.IndexModel{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}}},
	{officerName, mongo.IndexModel{Keys: bson.D{{Key: "officerCode", Value: 1}}, Options: options.Index().SetUnique(true)}},
	{officerName, mongo.IndexModel{Keys: bson.D{{Key: "userId", Value: 1}}}},
	{officerName, mongo.IndexModel{Keys: bson.D{{Key: "status", Value: 1}, {Key: "stationId", Value: 1}}}},
	{statusLogName, mongo.IndexModel{Keys: bson.D{{Key: "caseId", Value: 1}, {Key: "timestamp", Value: 1}}}},
	{locationLogName, mongo.IndexModel{Keys: bson.D{{Key: "officerId", Value: 1}, {Key: "timestamp", Value: -1}}}},
	{accountName, mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)}},
}

// EnsureIndexes creates the indexes the services rely on, including the
// unique case number index that makes case number collisions detectable.
func EnsureIndexes(ctx context.Context, db DatabaseHelper) error {
	for _, idx := range indexes {
		name, err := db.Collection(idx.collection).CreateIndex(ctx, idx.model)
		if err != nil {
			return fmt.Errorf("failed to create index on %s: %w", idx.collection, err)
		}
		zap.S().Debugw("ensured index", "collection", idx.collection, "index", name)
	}
	return nil
}
