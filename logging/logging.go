package logging

import "go.uber.org/zap"

// New creates a new zap logger for the given environment. production gets
// the JSON production logger, development the console development logger and
// anything else the example logger used by local runs and tests.
func New(environment string) (*zap.Logger, error) {
	switch environment {
	case "production":
		return zap.NewProduction()
	case "development":
		return zap.NewDevelopment()
	default:
		return zap.NewExample(), nil
	}
}
