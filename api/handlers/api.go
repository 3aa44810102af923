package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/linesmerrill/sos-dispatch-api/api"
	"github.com/linesmerrill/sos-dispatch-api/cases"
	"github.com/linesmerrill/sos-dispatch-api/config"
	"github.com/linesmerrill/sos-dispatch-api/databases"
	"github.com/linesmerrill/sos-dispatch-api/databases/memstore"
	"github.com/linesmerrill/sos-dispatch-api/dispatch"
	"github.com/linesmerrill/sos-dispatch-api/models"
	"github.com/linesmerrill/sos-dispatch-api/notify"
	"github.com/linesmerrill/sos-dispatch-api/tracking"
)

// Publisher receives committed status log rows
type Publisher interface {
	Publish(entries ...models.StatusLogEntry) int
}

// App stores the router and the services behind it, so it can be reused
type App struct {
	Router  *mux.Router
	Config  config.Config
	Store   *databases.Store
	Hub     *notify.Hub
	Cases   *cases.Service
	Engine  *dispatch.Engine
	Tracker *tracking.Tracker

	client databases.ClientHelper
	guard  *api.Guard
}

// NewApp wires the services over an existing store and builds the router
func NewApp(conf config.Config, store *databases.Store, hub *notify.Hub) *App {
	if hub == nil {
		hub = notify.NewHub(notify.DefaultBuffer, conf.AllowedOrigins)
	}
	a := &App{Config: conf, Store: store, Hub: hub}
	a.initializeRoutes()
	return a
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	a.Cases = cases.New(a.Store)
	a.Engine = dispatch.New(a.Config.Dispatch, a.Store)
	a.Tracker = tracking.New(a.Config.Dispatch, a.Store)
	a.guard = api.NewGuard(a.Store.Accounts, a.Config.JWTSecret, a.Config.TokenTTL)

	c := Case{Service: a.Cases, Engine: a.Engine, Hub: a.Hub, AutoAssign: a.Config.Dispatch.AutoAssignEnabled}
	o := Officer{Engine: a.Engine, Tracker: a.Tracker, Officers: a.Store.Officers, RetentionDays: a.Config.Dispatch.LocationHistoryRetentionDays}
	n := Notification{Hub: a.Hub}

	authed := func(h http.HandlerFunc) http.Handler {
		return a.guard.Middleware(h)
	}
	only := func(h http.HandlerFunc, roles ...models.Role) http.Handler {
		return a.guard.Middleware(api.RequireRole(roles...)(h))
	}

	r := mux.NewRouter()
	r.Use(api.MetricsMiddleware)

	// healthchex
	r.HandleFunc("/health", api.HealthCheckHandler).Methods("GET")
	r.Handle("/metrics", api.MetricsHandler()).Methods("GET")

	r.Handle("/ws/notifications", api.TokenFromQuery(authed(n.NotificationsHandler))).Methods("GET")

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(api.TimeoutMiddleware(a.Config.RequestTimeout))

	apiCreate.Handle("/auth/token", http.HandlerFunc(a.guard.CreateToken)).Methods("POST")

	apiCreate.Handle("/cases", authed(c.CreateCaseHandler)).Methods("POST")
	apiCreate.Handle("/cases", only(c.CasesHandler, models.RoleAdmin)).Methods("GET")
	apiCreate.Handle("/case/{case_id}", authed(c.CaseByIDHandler)).Methods("GET")
	apiCreate.Handle("/case/{case_id}/history", authed(c.CaseHistoryHandler)).Methods("GET")
	apiCreate.Handle("/case/{case_id}/status", authed(c.UpdateCaseStatusHandler)).Methods("PUT")
	apiCreate.Handle("/case/{case_id}/auto-assign", only(c.AutoAssignCaseHandler, models.RoleAdmin)).Methods("POST")
	apiCreate.Handle("/case/{case_id}/officer", only(c.ReassignCaseHandler, models.RoleAdmin)).Methods("PUT")

	apiCreate.Handle("/officers/nearby", only(o.NearbyOfficersHandler, models.RoleOfficer, models.RoleAdmin)).Methods("GET")
	apiCreate.Handle("/officers/nearby-by-station", only(o.NearbyOfficersByStationHandler, models.RoleOfficer, models.RoleAdmin)).Methods("GET")
	apiCreate.Handle("/officers/active-locations", only(o.ActiveLocationsHandler, models.RoleAdmin)).Methods("GET")
	apiCreate.Handle("/officers/location-history", only(o.PurgeLocationHistoryHandler, models.RoleAdmin)).Methods("DELETE")
	apiCreate.Handle("/officer/location", only(o.UpdateLocationHandler, models.RoleOfficer)).Methods("POST")
	apiCreate.Handle("/officer/{officer_id}/location-history", only(o.LocationHistoryHandler, models.RoleOfficer, models.RoleAdmin)).Methods("GET")

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize(ctx context.Context) error {
	if a.Config.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}

	switch a.Config.Driver {
	case config.DriverMemory:
		a.Store = memstore.New()
		zap.S().Warnw("using the in-memory store, data does not survive a restart")
	default:
		client, err := databases.NewClient(&a.Config)
		if err != nil {
			// if we fail to create a new database client, then kill the pod
			zap.S().Errorw("failed to create new client", "error", err)
			return err
		}
		if err := client.Connect(ctx); err != nil {
			// if we fail to connect to the database, then kill the pod
			zap.S().Errorw("failed to connect to database", "error", err)
			return err
		}
		db := databases.NewDatabase(&a.Config, client)
		if err := databases.EnsureIndexes(ctx, db); err != nil {
			zap.S().Errorw("failed to create indexes", "error", err)
			return err
		}
		a.client = client
		a.Store = databases.NewStore(db, client)
		zap.S().Info("sos-dispatch-api has connected to the database")
	}

	if a.Hub == nil {
		a.Hub = notify.NewHub(notify.DefaultBuffer, a.Config.AllowedOrigins)
	}

	// initialize api router
	a.initializeRoutes()
	return nil
}

// Close disconnects from the database when one was opened
func (a *App) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

// errorStatus maps a service error onto its http status code
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, message string, err error) {
	config.ErrorStatus(message, errorStatus(err), w, err)
}

func writeResponse(w http.ResponseWriter, code int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode request body: %v: %w", err, models.ErrInvalidInput)
	}
	return nil
}

// actor returns the caller set by the auth middleware. Routes are always
// wrapped, so a missing actor means the router was built wrong.
func actor(r *http.Request) models.Actor {
	a, _ := api.ActorFromContext(r.Context())
	return a
}
