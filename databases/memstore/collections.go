package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/linesmerrill/sos-dispatch-api/geo"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

type caseCollection struct{ m *Memory }

func (c *caseCollection) InsertOne(ctx context.Context, sos models.Case) error {
	return c.m.write(ctx, func(d *data) error {
		if _, ok := d.cases[sos.ID]; ok {
			return fmt.Errorf("case %s: %w", sos.ID, models.ErrDuplicateKey)
		}
		for _, existing := range d.cases {
			if existing.CaseNumber == sos.CaseNumber {
				return fmt.Errorf("case number %s: %w", sos.CaseNumber, models.ErrDuplicateKey)
			}
		}
		d.cases[sos.ID] = sos
		d.caseOrder = append(d.caseOrder, sos.ID)
		return nil
	})
}

func (c *caseCollection) FindByID(ctx context.Context, id string) (*models.Case, error) {
	var found models.Case
	err := c.m.read(ctx, func(d *data) error {
		sos, ok := d.cases[id]
		if !ok {
			return models.ErrNotFound
		}
		found = sos
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (c *caseCollection) Find(ctx context.Context, f models.CaseFilter) ([]models.Case, error) {
	var out []models.Case
	err := c.m.read(ctx, func(d *data) error {
		for _, id := range d.caseOrder {
			sos := d.cases[id]
			if f.Status != "" && sos.Status != f.Status {
				continue
			}
			if f.OfficerID != "" && sos.OfficerID != f.OfficerID {
				continue
			}
			if f.ReporterID != "" && sos.ReporterID != f.ReporterID {
				continue
			}
			if f.Unassigned && sos.OfficerID != "" {
				continue
			}
			out = append(out, sos)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(out, func(a, b models.Case) int {
		if f.OldestFirst {
			return a.CreatedAt.Compare(b.CreatedAt)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return paginate(out, f.Page, f.Limit), nil
}

func (c *caseCollection) Assign(ctx context.Context, id string, expected models.CaseStatus, a models.CaseAssignment) (bool, error) {
	var ok bool
	err := c.m.write(ctx, func(d *data) error {
		sos, found := d.cases[id]
		if !found || sos.Status != expected || sos.OfficerID != a.PreviousOfficerID {
			return nil
		}
		at := a.AssignedAt
		sos.OfficerID = a.OfficerID
		sos.Status = a.Status
		sos.AssignedBy = a.AssignedBy
		sos.AssignedAt = &at
		sos.UpdatedAt = at
		d.cases[id] = sos
		ok = true
		return nil
	})
	return ok, err
}

func (c *caseCollection) UpdateStatus(ctx context.Context, id string, expected models.CaseStatus, expectedOfficerID string, ch models.CaseStatusChange) (bool, error) {
	var ok bool
	err := c.m.write(ctx, func(d *data) error {
		sos, found := d.cases[id]
		if !found || sos.Status != expected || sos.OfficerID != expectedOfficerID {
			return nil
		}
		at := ch.At
		sos.Status = ch.To
		sos.UpdatedAt = at
		if ch.To == models.CaseClosed {
			sos.ClosedAt = &at
			if ch.ClosureNotes != "" {
				sos.ClosureNotes = ch.ClosureNotes
			}
		}
		d.cases[id] = sos
		ok = true
		return nil
	})
	return ok, err
}

type officerCollection struct{ m *Memory }

func (o *officerCollection) InsertOne(ctx context.Context, officer models.Officer) error {
	return o.m.write(ctx, func(d *data) error {
		if _, ok := d.officers[officer.ID]; ok {
			return fmt.Errorf("officer %s: %w", officer.ID, models.ErrDuplicateKey)
		}
		for _, existing := range d.officers {
			if existing.OfficerCode == officer.OfficerCode {
				return fmt.Errorf("officer code %s: %w", officer.OfficerCode, models.ErrDuplicateKey)
			}
		}
		d.officers[officer.ID] = officer
		d.officerOrder = append(d.officerOrder, officer.ID)
		return nil
	})
}

func (o *officerCollection) FindByID(ctx context.Context, id string) (*models.Officer, error) {
	return o.findOne(ctx, func(officer models.Officer) bool { return officer.ID == id })
}

func (o *officerCollection) FindByUserID(ctx context.Context, userID string) (*models.Officer, error) {
	return o.findOne(ctx, func(officer models.Officer) bool { return officer.UserID == userID })
}

func (o *officerCollection) findOne(ctx context.Context, match func(models.Officer) bool) (*models.Officer, error) {
	var found *models.Officer
	err := o.m.read(ctx, func(d *data) error {
		for _, id := range d.officerOrder {
			if officer := d.officers[id]; match(officer) {
				found = &officer
				return nil
			}
		}
		return models.ErrNotFound
	})
	return found, err
}

func (o *officerCollection) Find(ctx context.Context, f models.OfficerFilter) ([]models.Officer, error) {
	var out []models.Officer
	err := o.m.read(ctx, func(d *data) error {
		for _, id := range d.officerOrder {
			officer := d.officers[id]
			if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, officer.Status) {
				continue
			}
			if len(f.StationIDs) > 0 && !slices.Contains(f.StationIDs, officer.StationID) {
				continue
			}
			if f.HasPosition && officer.Position == nil {
				continue
			}
			out = append(out, officer)
		}
		return nil
	})
	return out, err
}

func (o *officerCollection) CompareAndSetStatus(ctx context.Context, id string, from, to models.OfficerStatus) (bool, error) {
	var ok bool
	err := o.m.write(ctx, func(d *data) error {
		officer, found := d.officers[id]
		if !found || officer.Status != from {
			return nil
		}
		officer.Status = to
		officer.UpdatedAt = time.Now().UTC()
		d.officers[id] = officer
		ok = true
		return nil
	})
	return ok, err
}

func (o *officerCollection) SetStatus(ctx context.Context, id string, to models.OfficerStatus) error {
	return o.update(ctx, id, func(officer *models.Officer) {
		officer.Status = to
		officer.UpdatedAt = time.Now().UTC()
	})
}

func (o *officerCollection) UpdatePosition(ctx context.Context, id string, p geo.Point, at time.Time) error {
	return o.update(ctx, id, func(officer *models.Officer) {
		officer.Position = &p
		officer.PositionUpdatedAt = &at
		officer.UpdatedAt = at
	})
}

func (o *officerCollection) update(ctx context.Context, id string, fn func(*models.Officer)) error {
	return o.m.write(ctx, func(d *data) error {
		officer, ok := d.officers[id]
		if !ok {
			return fmt.Errorf("officer %s: %w", id, models.ErrNotFound)
		}
		fn(&officer)
		d.officers[id] = officer
		return nil
	})
}

type stationCollection struct{ m *Memory }

func (s *stationCollection) InsertOne(ctx context.Context, station models.Station) error {
	return s.m.write(ctx, func(d *data) error {
		if _, ok := d.stations[station.ID]; ok {
			return fmt.Errorf("station %s: %w", station.ID, models.ErrDuplicateKey)
		}
		d.stations[station.ID] = station
		d.stationOrder = append(d.stationOrder, station.ID)
		return nil
	})
}

func (s *stationCollection) FindByID(ctx context.Context, id string) (*models.Station, error) {
	var found models.Station
	err := s.m.read(ctx, func(d *data) error {
		station, ok := d.stations[id]
		if !ok {
			return models.ErrNotFound
		}
		found = station
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (s *stationCollection) FindActive(ctx context.Context) ([]models.Station, error) {
	var out []models.Station
	err := s.m.read(ctx, func(d *data) error {
		for _, id := range d.stationOrder {
			if station := d.stations[id]; station.Active {
				out = append(out, station)
			}
		}
		return nil
	})
	return out, err
}

type statusLogCollection struct{ m *Memory }

func (s *statusLogCollection) InsertOne(ctx context.Context, e models.StatusLogEntry) error {
	return s.m.write(ctx, func(d *data) error {
		d.statusLogs = append(d.statusLogs, e)
		return nil
	})
}

func (s *statusLogCollection) FindByCase(ctx context.Context, caseID string) ([]models.StatusLogEntry, error) {
	var out []models.StatusLogEntry
	err := s.m.read(ctx, func(d *data) error {
		for _, e := range d.statusLogs {
			if e.CaseID == caseID {
				out = append(out, e)
			}
		}
		return nil
	})
	slices.SortStableFunc(out, func(a, b models.StatusLogEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out, err
}

type locationLogCollection struct{ m *Memory }

func (l *locationLogCollection) InsertOne(ctx context.Context, entry models.LocationLog) error {
	return l.m.write(ctx, func(d *data) error {
		d.locationLogs = append(d.locationLogs, entry)
		return nil
	})
}

func (l *locationLogCollection) FindRecent(ctx context.Context, officerID, caseID string, limit int) ([]models.LocationLog, error) {
	var out []models.LocationLog
	err := l.m.read(ctx, func(d *data) error {
		// newest rows were appended last
		for i := len(d.locationLogs) - 1; i >= 0; i-- {
			entry := d.locationLogs[i]
			if entry.OfficerID != officerID || (caseID != "" && entry.CaseID != caseID) {
				continue
			}
			out = append(out, entry)
		}
		return nil
	})
	slices.SortStableFunc(out, func(a, b models.LocationLog) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (l *locationLogCollection) DeleteUnlinkedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := l.m.write(ctx, func(d *data) error {
		kept := d.locationLogs[:0:0]
		for _, entry := range d.locationLogs {
			if entry.CaseID == "" && entry.Timestamp.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, entry)
		}
		d.locationLogs = kept
		return nil
	})
	return deleted, err
}

type accountCollection struct{ m *Memory }

func (a *accountCollection) InsertOne(ctx context.Context, account models.Account) error {
	return a.m.write(ctx, func(d *data) error {
		for _, existing := range d.accounts {
			if existing.ID == account.ID || existing.Email == account.Email {
				return fmt.Errorf("account %s: %w", account.Email, models.ErrDuplicateKey)
			}
		}
		d.accounts[account.ID] = account
		return nil
	})
}

func (a *accountCollection) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return a.findOne(ctx, func(account models.Account) bool { return account.ID == id })
}

func (a *accountCollection) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return a.findOne(ctx, func(account models.Account) bool { return account.Email == email })
}

func (a *accountCollection) findOne(ctx context.Context, match func(models.Account) bool) (*models.Account, error) {
	var found *models.Account
	err := a.m.read(ctx, func(d *data) error {
		for _, account := range d.accounts {
			if match(account) {
				found = &account
				return nil
			}
		}
		return models.ErrNotFound
	})
	return found, err
}

type lockCollection struct{ m *Memory }

func (l *lockCollection) TryAcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	var ok bool
	err := l.m.write(ctx, func(d *data) error {
		now := time.Now()
		if held, exists := d.locks[name]; exists && held.owner != owner && now.Before(held.expiresAt) {
			return nil
		}
		d.locks[name] = lease{owner: owner, expiresAt: now.Add(ttl)}
		ok = true
		return nil
	})
	return ok, err
}

func (l *lockCollection) ReleaseLock(ctx context.Context, name, owner string) error {
	return l.m.write(ctx, func(d *data) error {
		if held, exists := d.locks[name]; exists && held.owner == owner {
			delete(d.locks, name)
		}
		return nil
	})
}

func paginate[T any](items []T, page, limit int) []T {
	if limit <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return nil
	}
	end := min(start+limit, len(items))
	return items[start:end]
}
