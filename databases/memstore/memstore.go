// Package memstore is an in-process implementation of the dispatch
// collections. Transactions are serialized and roll back to a snapshot when
// the callback fails. Reads outside a transaction are not isolated from one
// in flight.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/linesmerrill/sos-dispatch-api/databases"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

type txKey struct{}

type lease struct {
	owner     string
	expiresAt time.Time
}

type data struct {
	cases        map[string]models.Case
	officers     map[string]models.Officer
	stations     map[string]models.Station
	accounts     map[string]models.Account
	statusLogs   []models.StatusLogEntry
	locationLogs []models.LocationLog
	locks        map[string]lease
	// insertion order, used to keep listings deterministic
	caseOrder    []string
	officerOrder []string
	stationOrder []string
}

func (d *data) clone() data {
	return data{
		cases:        maps.Clone(d.cases),
		officers:     maps.Clone(d.officers),
		stations:     maps.Clone(d.stations),
		accounts:     maps.Clone(d.accounts),
		statusLogs:   slices.Clone(d.statusLogs),
		locationLogs: slices.Clone(d.locationLogs),
		locks:        maps.Clone(d.locks),
		caseOrder:    slices.Clone(d.caseOrder),
		officerOrder: slices.Clone(d.officerOrder),
		stationOrder: slices.Clone(d.stationOrder),
	}
}

// Memory holds every collection in maps guarded by a single lock
type Memory struct {
	// txMu serializes transactions and the writes made outside of one
	txMu sync.Mutex
	mu   sync.RWMutex
	data data
}

// NewMemory returns an empty in-memory database
func NewMemory() *Memory {
	return &Memory{data: data{
		cases:    map[string]models.Case{},
		officers: map[string]models.Officer{},
		stations: map[string]models.Station{},
		accounts: map[string]models.Account{},
		locks:    map[string]lease{},
	}}
}

// New returns a Store backed by a fresh in-memory database
func New() *databases.Store {
	return NewMemory().Store()
}

// Store exposes m through the databases interfaces
func (m *Memory) Store() *databases.Store {
	return &databases.Store{
		Tx:           m,
		Cases:        &caseCollection{m},
		Officers:     &officerCollection{m},
		Stations:     &stationCollection{m},
		StatusLogs:   &statusLogCollection{m},
		LocationLogs: &locationLogCollection{m},
		Accounts:     &accountCollection{m},
		Locks:        &lockCollection{m},
	}
}

// WithTransaction runs fn with exclusive write access. Nested calls join the
// outer transaction.
func (m *Memory) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	snapshot := m.data.clone()
	m.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.mu.Lock()
		m.data = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

func (m *Memory) write(ctx context.Context, fn func(d *data) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !inTx(ctx) {
		m.txMu.Lock()
		defer m.txMu.Unlock()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&m.data)
}

func (m *Memory) read(ctx context.Context, fn func(d *data) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&m.data)
}
