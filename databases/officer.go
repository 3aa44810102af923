package databases

// go generate: mockery --name OfficerDatabase

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/sos-dispatch-api/geo"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

const officerName = "officers"

// officerProjection keeps ranking queries flat, no history or profile fields
var officerProjection = bson.M{
	"_id":               1,
	"userId":            1,
	"officerCode":       1,
	"name":              1,
	"status":            1,
	"stationId":         1,
	"position":          1,
	"positionUpdatedAt": 1,
}

// OfficerDatabase contains the methods to use with the officer database
type OfficerDatabase interface {
	InsertOne(ctx context.Context, o models.Officer) error
	FindByID(ctx context.Context, id string) (*models.Officer, error)
	FindByUserID(ctx context.Context, userID string) (*models.Officer, error)
	Find(ctx context.Context, f models.OfficerFilter) ([]models.Officer, error)
	// CompareAndSetStatus moves the officer from one status to another and
	// reports false when the officer was no longer in from.
	CompareAndSetStatus(ctx context.Context, id string, from, to models.OfficerStatus) (bool, error)
	SetStatus(ctx context.Context, id string, to models.OfficerStatus) error
	UpdatePosition(ctx context.Context, id string, p geo.Point, at time.Time) error
}

type officerDatabase struct {
	db DatabaseHelper
}

// NewOfficerDatabase initializes a new instance of officer database with the provided db connection
func NewOfficerDatabase(db DatabaseHelper) OfficerDatabase {
	return &officerDatabase{
		db: db,
	}
}

func (o *officerDatabase) InsertOne(ctx context.Context, officer models.Officer) error {
	_, err := o.db.Collection(officerName).InsertOne(ctx, officer)
	return err
}

func (o *officerDatabase) FindByID(ctx context.Context, id string) (*models.Officer, error) {
	return o.findOne(ctx, bson.M{"_id": id})
}

func (o *officerDatabase) FindByUserID(ctx context.Context, userID string) (*models.Officer, error) {
	return o.findOne(ctx, bson.M{"userId": userID})
}

func (o *officerDatabase) findOne(ctx context.Context, filter bson.M) (*models.Officer, error) {
	officer := &models.Officer{}
	err := o.db.Collection(officerName).FindOne(ctx, filter).Decode(officer)
	if err != nil {
		return nil, err
	}
	return officer, nil
}

func (o *officerDatabase) Find(ctx context.Context, f models.OfficerFilter) ([]models.Officer, error) {
	filter := bson.M{}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if len(f.StationIDs) > 0 {
		filter["stationId"] = bson.M{"$in": f.StationIDs}
	}
	if f.HasPosition {
		filter["position"] = bson.M{"$exists": true, "$ne": nil}
	}
	opts := options.Find().
		SetProjection(officerProjection).
		SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cr, err := o.db.Collection(officerName).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var officers []models.Officer
	if err = cr.All(ctx, &officers); err != nil {
		return nil, err
	}
	return officers, nil
}

func (o *officerDatabase) CompareAndSetStatus(ctx context.Context, id string, from, to models.OfficerStatus) (bool, error) {
	res, err := o.db.Collection(officerName).UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to set officer %s status: %w", id, err)
	}
	return res.MatchedCount > 0, nil
}

func (o *officerDatabase) SetStatus(ctx context.Context, id string, to models.OfficerStatus) error {
	return o.updateOne(ctx, id, bson.M{"status": to, "updatedAt": time.Now().UTC()})
}

func (o *officerDatabase) UpdatePosition(ctx context.Context, id string, p geo.Point, at time.Time) error {
	return o.updateOne(ctx, id, bson.M{"position": p, "positionUpdatedAt": at, "updatedAt": at})
}

func (o *officerDatabase) updateOne(ctx context.Context, id string, set bson.M) error {
	res, err := o.db.Collection(officerName).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update officer %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("officer %s: %w", id, models.ErrNotFound)
	}
	return nil
}
