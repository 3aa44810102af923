package databases

// go generate: mockery --name StationDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/sos-dispatch-api/models"
)

const stationName = "stations"

// StationDatabase contains the methods to use with the station database
type StationDatabase interface {
	InsertOne(ctx context.Context, s models.Station) error
	FindByID(ctx context.Context, id string) (*models.Station, error)
	FindActive(ctx context.Context) ([]models.Station, error)
}

type stationDatabase struct {
	db DatabaseHelper
}

// NewStationDatabase initializes a new instance of station database with the provided db connection
func NewStationDatabase(db DatabaseHelper) StationDatabase {
	return &stationDatabase{
		db: db,
	}
}

func (s *stationDatabase) InsertOne(ctx context.Context, station models.Station) error {
	_, err := s.db.Collection(stationName).InsertOne(ctx, station)
	return err
}

func (s *stationDatabase) FindByID(ctx context.Context, id string) (*models.Station, error) {
	station := &models.Station{}
	err := s.db.Collection(stationName).FindOne(ctx, bson.M{"_id": id}).Decode(station)
	if err != nil {
		return nil, err
	}
	return station, nil
}

func (s *stationDatabase) FindActive(ctx context.Context) ([]models.Station, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cr, err := s.db.Collection(stationName).Find(ctx, bson.M{"active": true}, opts)
	if err != nil {
		return nil, err
	}
	var stations []models.Station
	if err = cr.All(ctx, &stations); err != nil {
		return nil, err
	}
	return stations, nil
}
