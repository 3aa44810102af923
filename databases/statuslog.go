package databases

// go generate: mockery --name StatusLogDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/sos-dispatch-api/models"
)

const statusLogName = "casestatuslogs"

// StatusLogDatabase contains the methods to use with the case status log.
// The log is append-only so there is no update or delete.
type StatusLogDatabase interface {
	InsertOne(ctx context.Context, e models.StatusLogEntry) error
	// FindByCase returns the entries of a case oldest first
	FindByCase(ctx context.Context, caseID string) ([]models.StatusLogEntry, error)
}

type statusLogDatabase struct {
	db DatabaseHelper
}

// NewStatusLogDatabase initializes a new instance of status log database with the provided db connection
func NewStatusLogDatabase(db DatabaseHelper) StatusLogDatabase {
	return &statusLogDatabase{
		db: db,
	}
}

func (s *statusLogDatabase) InsertOne(ctx context.Context, e models.StatusLogEntry) error {
	_, err := s.db.Collection(statusLogName).InsertOne(ctx, e)
	return err
}

func (s *statusLogDatabase) FindByCase(ctx context.Context, caseID string) ([]models.StatusLogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cr, err := s.db.Collection(statusLogName).Find(ctx, bson.M{"caseId": caseID}, opts)
	if err != nil {
		return nil, err
	}
	var entries []models.StatusLogEntry
	if err = cr.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
