package databases

// go generate: mockery --name LocationLogDatabase

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/sos-dispatch-api/models"
)

const locationLogName = "officerlocationlogs"

// LocationLogDatabase contains the methods to use with the officer location history
type LocationLogDatabase interface {
	InsertOne(ctx context.Context, l models.LocationLog) error
	// FindRecent returns up to limit rows for the officer, newest first.
	// An empty caseID matches every row.
	FindRecent(ctx context.Context, officerID, caseID string, limit int) ([]models.LocationLog, error)
	// DeleteUnlinkedBefore removes rows older than cutoff that are not tied to a case
	DeleteUnlinkedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type locationLogDatabase struct {
	db DatabaseHelper
}

// NewLocationLogDatabase initializes a new instance of location log database with the provided db connection
func NewLocationLogDatabase(db DatabaseHelper) LocationLogDatabase {
	return &locationLogDatabase{
		db: db,
	}
}

func (l *locationLogDatabase) InsertOne(ctx context.Context, entry models.LocationLog) error {
	_, err := l.db.Collection(locationLogName).InsertOne(ctx, entry)
	return err
}

func (l *locationLogDatabase) FindRecent(ctx context.Context, officerID, caseID string, limit int) ([]models.LocationLog, error) {
	filter := bson.M{"officerId": officerID}
	if caseID != "" {
		filter["caseId"] = caseID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cr, err := l.db.Collection(locationLogName).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var logs []models.LocationLog
	if err = cr.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (l *locationLogDatabase) DeleteUnlinkedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.Collection(locationLogName).DeleteMany(ctx, bson.M{
		"timestamp": bson.M{"$lt": cutoff},
		"caseId":    unsetOrEmpty(),
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
