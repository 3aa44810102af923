package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	"github.com/linesmerrill/sos-dispatch-api/models"
)

// Database drivers understood by DB_DRIVER
const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config holds the project config values
type Config struct {
	URL            string        `env:"DB_URI"`
	DatabaseName   string        `env:"DB_NAME" envDefault:"sos"`
	Driver         string        `env:"DB_DRIVER" envDefault:"mongo"`
	BaseURL        string        `env:"BASE_URL"`
	Port           string        `env:"PORT" envDefault:"8080"`
	Environment    string        `env:"ENVIRONMENT" envDefault:"local"`
	JWTSecret      string        `env:"JWT_SECRET"`
	TokenTTL       time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`

	Dispatch Dispatch
}

// Dispatch holds the tunables of the assignment engine, the location
// tracker and the background jobs
type Dispatch struct {
	AutoAssignEnabled            bool          `env:"AUTO_ASSIGN_ENABLED" envDefault:"false"`
	MaxAssignmentDistanceKm      float64       `env:"MAX_ASSIGNMENT_DISTANCE_KM" envDefault:"10"`
	MaxCommitAttempts            int           `env:"MAX_ASSIGNMENT_COMMIT_ATTEMPTS" envDefault:"3"`
	OfficerLocationStaleAfter    time.Duration `env:"OFFICER_LOCATION_STALE_AFTER" envDefault:"10m"`
	LocationHistoryRetentionDays int           `env:"LOCATION_HISTORY_RETENTION_DAYS" envDefault:"7"`
	PurgeSchedule                string        `env:"PURGE_SCHEDULE" envDefault:"0 3 * * *"`
	RetryAssignSchedule          string        `env:"RETRY_ASSIGN_SCHEDULE" envDefault:"@every 1m"`
}

// New sets up all config related services
func New() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if c.Driver != DriverMongo && c.Driver != DriverMemory {
		return nil, fmt.Errorf("unknown DB_DRIVER %q", c.Driver)
	}
	if c.Dispatch.MaxCommitAttempts < 1 {
		c.Dispatch.MaxCommitAttempts = 1
	}

	//setup zap logger and replace default logger
	if _, err := setLogger(c.Environment); err != nil {
		return nil, fmt.Errorf("failed to set logger: %w", err)
	}
	return &c, nil
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	zap.S().Errorw(message, "status", httpStatusCode, "error", errMsg)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	_ = json.NewEncoder(w).Encode(models.ErrorMessageResponse{
		Response: models.MessageError{Message: message, Error: errMsg},
	})
}
