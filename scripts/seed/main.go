package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/sos-dispatch-api/config"
	"github.com/linesmerrill/sos-dispatch-api/databases"
	"github.com/linesmerrill/sos-dispatch-api/geo"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

// Bootstraps accounts, officer profiles and stations in the configured database
// Usage:
//
//	go run ./scripts/seed account -email a@b.c -password secret -role OFFICER -officer-code OFF-1 -name "A B"
//	go run ./scripts/seed station -name "Capital" -lat 20.29 -lng 85.82 -district Khordha -state Odisha
func main() {
	if len(os.Args) < 2 {
		usage()
	}

	conf, err := config.New()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, closeStore, err := connect(ctx, conf)
	if err != nil {
		fmt.Printf("Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	switch os.Args[1] {
	case "account":
		err = runAccount(ctx, store, os.Args[2:])
	case "station":
		err = runStation(ctx, store, os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: go run ./scripts/seed <account|station> [flags]")
	os.Exit(1)
}

func connect(ctx context.Context, conf *config.Config) (*databases.Store, func(), error) {
	if conf.Driver != config.DriverMongo {
		return nil, nil, fmt.Errorf("seeding needs DB_DRIVER=%s", config.DriverMongo)
	}
	client, err := databases.NewClient(conf)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, nil, err
	}
	db := databases.NewDatabase(conf, client)
	if err := databases.EnsureIndexes(ctx, db); err != nil {
		return nil, nil, err
	}
	return databases.NewStore(db, client), func() { _ = client.Disconnect(context.Background()) }, nil
}

// accountOptions describes an account and, for officers, their profile
type accountOptions struct {
	Email       string
	Password    string
	Role        models.Role
	OfficerCode string
	Name        string
	StationID   string
}

func runAccount(ctx context.Context, store *databases.Store, args []string) error {
	fs := flag.NewFlagSet("account", flag.ContinueOnError)
	var opts accountOptions
	var role string
	fs.StringVar(&opts.Email, "email", "", "login email")
	fs.StringVar(&opts.Password, "password", "", "plaintext password, stored as a bcrypt hash")
	fs.StringVar(&role, "role", string(models.RoleCitizen), "CITIZEN, OFFICER or ADMIN")
	fs.StringVar(&opts.OfficerCode, "officer-code", "", "officer code, creates an officer profile")
	fs.StringVar(&opts.Name, "name", "", "officer display name")
	fs.StringVar(&opts.StationID, "station", "", "officer station id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts.Role = models.Role(strings.ToUpper(role))

	account, officer, err := seedAccount(ctx, store, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Account: %s (%s) %s\n", account.ID, account.Role, account.Email)
	if officer != nil {
		fmt.Printf("Officer: %s %s\n", officer.ID, officer.OfficerCode)
	}
	return nil
}

func seedAccount(ctx context.Context, store *databases.Store, opts accountOptions) (models.Account, *models.Officer, error) {
	if opts.Email == "" || opts.Password == "" {
		return models.Account{}, nil, fmt.Errorf("email and password are required: %w", models.ErrInvalidInput)
	}
	switch opts.Role {
	case models.RoleCitizen, models.RoleOfficer, models.RoleAdmin:
	default:
		return models.Account{}, nil, fmt.Errorf("unknown role %q: %w", opts.Role, models.ErrInvalidInput)
	}
	if opts.OfficerCode != "" && opts.Role != models.RoleOfficer {
		return models.Account{}, nil, fmt.Errorf("officer code given for a %s account: %w", opts.Role, models.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.Account{}, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	account := models.Account{
		ID:           uuid.NewString(),
		Email:        opts.Email,
		PasswordHash: string(hash),
		Role:         opts.Role,
		Active:       true,
		CreatedAt:    now,
	}
	var officer *models.Officer
	if opts.OfficerCode != "" {
		officer = &models.Officer{
			ID:          uuid.NewString(),
			UserID:      account.ID,
			OfficerCode: opts.OfficerCode,
			Name:        opts.Name,
			Status:      models.OfficerOffDuty,
			StationID:   opts.StationID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	err = store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := store.Accounts.InsertOne(ctx, account); err != nil {
			return err
		}
		if officer == nil {
			return nil
		}
		if officer.StationID != "" {
			if _, err := store.Stations.FindByID(ctx, officer.StationID); err != nil {
				return fmt.Errorf("failed to load station %s: %w", officer.StationID, err)
			}
		}
		return store.Officers.InsertOne(ctx, *officer)
	})
	if err != nil {
		return models.Account{}, nil, fmt.Errorf("failed to seed account: %w", err)
	}
	zap.S().Infow("account seeded", "accountId", account.ID, "role", account.Role)
	return account, officer, nil
}

func runStation(ctx context.Context, store *databases.Store, args []string) error {
	fs := flag.NewFlagSet("station", flag.ContinueOnError)
	var s models.Station
	fs.StringVar(&s.Name, "name", "", "station name")
	fs.StringVar(&s.Address, "address", "", "street address")
	fs.StringVar(&s.District, "district", "", "district")
	fs.StringVar(&s.State, "state", "", "state")
	fs.Float64Var(&s.Position.Lat, "lat", 0, "latitude")
	fs.Float64Var(&s.Position.Lng, "lng", 0, "longitude")
	if err := fs.Parse(args); err != nil {
		return err
	}

	station, err := seedStation(ctx, store, s)
	if err != nil {
		return err
	}
	fmt.Printf("Station: %s %s\n", station.ID, station.Name)
	return nil
}

func seedStation(ctx context.Context, store *databases.Store, s models.Station) (models.Station, error) {
	if s.Name == "" {
		return models.Station{}, fmt.Errorf("name is required: %w", models.ErrInvalidInput)
	}
	if !s.Position.Valid() || s.Position == (geo.Point{}) {
		return models.Station{}, fmt.Errorf("coordinates %v out of range: %w", s.Position, models.ErrInvalidInput)
	}
	s.ID = uuid.NewString()
	s.Active = true
	s.CreatedAt = time.Now().UTC()
	if err := store.Stations.InsertOne(ctx, s); err != nil {
		return models.Station{}, fmt.Errorf("failed to seed station: %w", err)
	}
	return s, nil
}
