package databases

// go generate: mockery --name CaseDatabase

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/sos-dispatch-api/models"
)

const caseName = "cases"

// CaseDatabase contains the methods to use with the case database
type CaseDatabase interface {
	InsertOne(ctx context.Context, c models.Case) error
	FindByID(ctx context.Context, id string) (*models.Case, error)
	Find(ctx context.Context, f models.CaseFilter) ([]models.Case, error)
	// Assign writes the assignment only if the case is still in expected
	// status and still held by a.PreviousOfficerID. It reports whether the
	// write happened.
	Assign(ctx context.Context, id string, expected models.CaseStatus, a models.CaseAssignment) (bool, error)
	// UpdateStatus moves the case only if it is still in expected status
	// and still held by expectedOfficerID ("" for no officer)
	UpdateStatus(ctx context.Context, id string, expected models.CaseStatus, expectedOfficerID string, ch models.CaseStatusChange) (bool, error)
}

type caseDatabase struct {
	db DatabaseHelper
}

// NewCaseDatabase initializes a new instance of case database with the provided db connection
func NewCaseDatabase(db DatabaseHelper) CaseDatabase {
	return &caseDatabase{
		db: db,
	}
}

func (c *caseDatabase) InsertOne(ctx context.Context, sos models.Case) error {
	_, err := c.db.Collection(caseName).InsertOne(ctx, sos)
	return err
}

func (c *caseDatabase) FindByID(ctx context.Context, id string) (*models.Case, error) {
	sos := &models.Case{}
	err := c.db.Collection(caseName).FindOne(ctx, bson.M{"_id": id}).Decode(sos)
	if err != nil {
		return nil, err
	}
	return sos, nil
}

func (c *caseDatabase) Find(ctx context.Context, f models.CaseFilter) ([]models.Case, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.OfficerID != "" {
		filter["officerId"] = f.OfficerID
	}
	if f.ReporterID != "" {
		filter["reporterId"] = f.ReporterID
	}
	if f.Unassigned {
		filter["officerId"] = unsetOrEmpty()
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: sortOrder(f.OldestFirst)}})
	if f.Limit > 0 {
		p := newMongoPaginate(f.Limit, f.Page).getPaginatedOpts()
		opts.SetLimit(*p.Limit).SetSkip(*p.Skip)
	}

	cr, err := c.db.Collection(caseName).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var cases []models.Case
	if err = cr.All(ctx, &cases); err != nil {
		return nil, err
	}
	return cases, nil
}

// caseHeldBy matches case id while it is in status and held by officerID
func caseHeldBy(id string, status models.CaseStatus, officerID string) bson.M {
	filter := bson.M{"_id": id, "status": status}
	if officerID == "" {
		filter["officerId"] = unsetOrEmpty()
	} else {
		filter["officerId"] = officerID
	}
	return filter
}

func (c *caseDatabase) Assign(ctx context.Context, id string, expected models.CaseStatus, a models.CaseAssignment) (bool, error) {
	filter := caseHeldBy(id, expected, a.PreviousOfficerID)
	update := bson.M{"$set": bson.M{
		"officerId":  a.OfficerID,
		"status":     a.Status,
		"assignedBy": a.AssignedBy,
		"assignedAt": a.AssignedAt,
		"updatedAt":  a.AssignedAt,
	}}

	res, err := c.db.Collection(caseName).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to assign case %s: %w", id, err)
	}
	return res.MatchedCount > 0, nil
}

func (c *caseDatabase) UpdateStatus(ctx context.Context, id string, expected models.CaseStatus, expectedOfficerID string, ch models.CaseStatusChange) (bool, error) {
	set := bson.M{"status": ch.To, "updatedAt": ch.At}
	if ch.To == models.CaseClosed {
		set["closedAt"] = ch.At
		if ch.ClosureNotes != "" {
			set["closureNotes"] = ch.ClosureNotes
		}
	}

	res, err := c.db.Collection(caseName).UpdateOne(ctx, caseHeldBy(id, expected, expectedOfficerID), bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to update case %s status: %w", id, err)
	}
	return res.MatchedCount > 0, nil
}
