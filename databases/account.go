package databases

// go generate: mockery --name AccountDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/linesmerrill/sos-dispatch-api/models"
)

const accountName = "accounts"

// AccountDatabase contains the methods to use with the account database
type AccountDatabase interface {
	InsertOne(ctx context.Context, a models.Account) error
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
}

type accountDatabase struct {
	db DatabaseHelper
}

// NewAccountDatabase initializes a new instance of account database with the provided db connection
func NewAccountDatabase(db DatabaseHelper) AccountDatabase {
	return &accountDatabase{
		db: db,
	}
}

func (a *accountDatabase) InsertOne(ctx context.Context, account models.Account) error {
	_, err := a.db.Collection(accountName).InsertOne(ctx, account)
	return err
}

func (a *accountDatabase) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return a.findOne(ctx, bson.M{"_id": id})
}

func (a *accountDatabase) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return a.findOne(ctx, bson.M{"email": email})
}

func (a *accountDatabase) findOne(ctx context.Context, filter bson.M) (*models.Account, error) {
	account := &models.Account{}
	err := a.db.Collection(accountName).FindOne(ctx, filter).Decode(account)
	if err != nil {
		return nil, err
	}
	return account, nil
}
