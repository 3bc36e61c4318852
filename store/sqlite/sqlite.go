/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every collaborator the generator needs (legal entities,
  milestones, schedules, holidays, localities, working weeks) using SQLite.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  schedule.LegalEntityStore:   Legal entity configuration
  schedule.MilestoneStore:     Milestone sets
  schedule.ScheduleStore:      Generated schedules (atomic per set)
  generic.HolidayProvider:     Merged country + custom holidays
  generic.EntityLocator:       Organisation localities
  generic.WorkingDaysOverride: Custom working weeks

KEY TABLES:
  legal_entities:    Frequency, target rule, localities, linked organisations
  organizations:     Service centres, providers, clients
  holidays:          Country-wide (entity_id = '') and custom holidays
  working_days:      Working weekdays per country
  milestones:        Milestone sets, unique per (legal_entity_id, idx)
  schedules:         One row per period, unique per (legal_entity_id, date)
  schedule_dates:    Milestone dates of a schedule
  schedule_holidays: Holidays consulted for a schedule

ATOMICITY:
  SaveScheduleSet runs in one transaction. Schedules are upserted on
  (legal_entity_id, date) and their dates and holidays are replaced, so
  regenerating a range never duplicates rows.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single open connection, which
  also keeps ":memory:" databases shared across calls. Rows are always
  drained before the next statement runs.

USAGE:
  store, err := sqlite.New("./data/schedules.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  gen := schedule.NewGenerator(store, logger)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - schedule/store.go, generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory calendar store for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/warp/payroll-schedules/generic"
	"github.com/warp/payroll-schedules/schedule"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Legal entities
	CREATE TABLE IF NOT EXISTS legal_entities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		frequency TEXT NOT NULL,
		target_rule TEXT NOT NULL,
		localities TEXT NOT NULL DEFAULT '',
		service_centre_id TEXT NOT NULL DEFAULT '',
		provider_id TEXT NOT NULL DEFAULT '',
		client_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Service centres, providers and clients
	CREATE TABLE IF NOT EXISTS organizations (
		id TEXT NOT NULL,
		type TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		localities TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		PRIMARY KEY (type, id)
	);

	-- Holidays: entity_id = '' for country-wide entries.
	-- day is the observed day when set, else date; years bucket on day.
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		date TEXT NOT NULL,
		observed TEXT,
		day TEXT NOT NULL,
		locality TEXT NOT NULL,
		entity_type TEXT NOT NULL DEFAULT '',
		entity_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE (locality, entity_id, date, name)
	);

	-- Hot path: one locality/entity/year per walk
	CREATE INDEX IF NOT EXISTS idx_holidays_locality_entity_day
		ON holidays(locality, entity_id, day);

	-- Working week overrides, weekdays as "0,1,2" (0 = Sunday)
	CREATE TABLE IF NOT EXISTS working_days (
		country TEXT PRIMARY KEY,
		weekdays TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Milestones
	CREATE TABLE IF NOT EXISTS milestones (
		id TEXT PRIMARY KEY,
		legal_entity_id TEXT NOT NULL REFERENCES legal_entities(id) ON DELETE CASCADE,
		identifier TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		idx INTEGER NOT NULL,
		interval_days INTEGER,
		target BOOLEAN NOT NULL DEFAULT FALSE,
		entities TEXT NOT NULL DEFAULT '',
		UNIQUE (legal_entity_id, idx)
	);

	-- Generated schedules
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		legal_entity_id TEXT NOT NULL,
		name TEXT NOT NULL,
		date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		target_date TEXT NOT NULL,
		generated_at TEXT NOT NULL,
		UNIQUE (legal_entity_id, date)
	);

	CREATE TABLE IF NOT EXISTS schedule_dates (
		schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
		milestone_id TEXT NOT NULL,
		identifier TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		idx INTEGER NOT NULL,
		target BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (schedule_id, milestone_id)
	);

	CREATE TABLE IF NOT EXISTS schedule_holidays (
		schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
		holiday_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		date TEXT NOT NULL,
		observed TEXT,
		locality TEXT NOT NULL,
		entity_type TEXT NOT NULL DEFAULT '',
		entity_id TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_schedule_holidays_schedule
		ON schedule_holidays(schedule_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(q Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}

	return errors.Wrap(sqlTx.Commit(), "failed to commit transaction")
}

// =============================================================================
// LEGAL ENTITY STORE (schedule.LegalEntityStore interface)
// =============================================================================

// SaveLegalEntity inserts or updates a legal entity.
func (s *Store) SaveLegalEntity(ctx context.Context, le schedule.LegalEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO legal_entities (id, name, frequency, target_rule, localities,
			service_centre_id, provider_id, client_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			frequency = excluded.frequency,
			target_rule = excluded.target_rule,
			localities = excluded.localities,
			service_centre_id = excluded.service_centre_id,
			provider_id = excluded.provider_id,
			client_id = excluded.client_id,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		le.ID, le.Name, string(le.Frequency), le.TargetRule, joinCodes(le.Localities),
		le.ServiceCentreID, le.ProviderID, le.ClientID, now, now,
	)
	return errors.Wrapf(err, "save legal entity %s", le.ID)
}

// GetLegalEntity returns a legal entity by ID.
func (s *Store) GetLegalEntity(ctx context.Context, id string) (schedule.LegalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	les, err := s.queryLegalEntities(ctx, psql.Select(legalEntityColumns...).
		From("legal_entities").Where(sq.Eq{"id": id}))
	if err != nil {
		return schedule.LegalEntity{}, err
	}
	if len(les) == 0 {
		return schedule.LegalEntity{}, &generic.EntityNotFoundError{Type: generic.EntityLegalEntity, ID: id}
	}
	return les[0], nil
}

// ListLegalEntities returns all legal entities ordered by ID.
func (s *Store) ListLegalEntities(ctx context.Context) ([]schedule.LegalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryLegalEntities(ctx, psql.Select(legalEntityColumns...).
		From("legal_entities").OrderBy("id"))
}

var legalEntityColumns = []string{
	"id", "name", "frequency", "target_rule", "localities",
	"service_centre_id", "provider_id", "client_id",
}

func (s *Store) queryLegalEntities(ctx context.Context, b sq.SelectBuilder) ([]schedule.LegalEntity, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build legal entity query")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query legal entities")
	}
	defer rows.Close()

	var out []schedule.LegalEntity
	for rows.Next() {
		var le schedule.LegalEntity
		var freq, localities string
		if err := rows.Scan(&le.ID, &le.Name, &freq, &le.TargetRule, &localities,
			&le.ServiceCentreID, &le.ProviderID, &le.ClientID); err != nil {
			return nil, errors.Wrap(err, "scan legal entity")
		}
		le.Frequency = schedule.Frequency(freq)
		le.Localities = splitCodes(localities)
		out = append(out, le)
	}
	return out, rows.Err()
}

// =============================================================================
// ORGANIZATIONS (generic.EntityLocator interface)
// =============================================================================

// SaveOrganization inserts or updates a service centre, provider or client.
func (s *Store) SaveOrganization(ctx context.Context, org schedule.Organization) error {
	if !org.Type.Valid() || org.Type == generic.EntityLegalEntity {
		return &generic.EntityTypeError{Value: string(org.Type)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO organizations (id, type, name, localities, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(type, id) DO UPDATE SET
			name = excluded.name,
			localities = excluded.localities
	`

	_, err := s.db.ExecContext(ctx, query,
		org.ID, string(org.Type), org.Name, joinCodes(org.Localities),
		time.Now().UTC().Format(time.RFC3339),
	)
	return errors.Wrapf(err, "save %s %s", org.Type, org.ID)
}

// ListOrganizations returns every organisation ordered by type and ID.
func (s *Store) ListOrganizations(ctx context.Context) ([]schedule.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, type, name, localities FROM organizations ORDER BY type, id")
	if err != nil {
		return nil, errors.Wrap(err, "query organizations")
	}
	defer rows.Close()

	var out []schedule.Organization
	for rows.Next() {
		var org schedule.Organization
		var typ, localities string
		if err := rows.Scan(&org.ID, &typ, &org.Name, &localities); err != nil {
			return nil, errors.Wrap(err, "scan organization")
		}
		org.Type = generic.EntityType(typ)
		org.Localities = splitCodes(localities)
		out = append(out, org)
	}
	return out, rows.Err()
}

// GetLocalitiesForEntity returns the ISO country codes of an organisation.
// Legal entities read their own localities column.
func (s *Store) GetLocalitiesForEntity(ctx context.Context, entityType generic.EntityType, entityID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row *sql.Row
	if entityType == generic.EntityLegalEntity {
		row = s.db.QueryRowContext(ctx, "SELECT localities FROM legal_entities WHERE id = ?", entityID)
	} else {
		row = s.db.QueryRowContext(ctx,
			"SELECT localities FROM organizations WHERE type = ? AND id = ?", string(entityType), entityID)
	}

	var localities string
	if err := row.Scan(&localities); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &generic.EntityNotFoundError{Type: entityType, ID: entityID}
		}
		return nil, errors.Wrapf(err, "localities of %s %s", entityType, entityID)
	}
	return splitCodes(localities), nil
}

// =============================================================================
// HOLIDAY CALENDAR (generic.HolidayProvider interface)
// =============================================================================

// SaveHoliday saves a holiday. A holiday with the same locality, entity, date
// and name is updated in place.
func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveHoliday(ctx, s.db, h)
}

// SaveHolidays saves several holidays in one transaction.
func (s *Store) SaveHolidays(ctx context.Context, hs []generic.Holiday) error {
	return s.WithTx(ctx, func(q Querier) error {
		for _, h := range hs {
			if err := saveHoliday(ctx, q, h); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveHoliday(ctx context.Context, q Querier, h generic.Holiday) error {
	if h.Date.IsZero() {
		return errors.Wrapf(generic.ErrInvalidDate, "holiday %q has no date", h.Name)
	}
	h.Locality = generic.NormalizeCountry(h.Locality)
	if h.ID == "" {
		h.ID = holidayID(h)
	}

	query := `
		INSERT INTO holidays (id, name, date, observed, day, locality, entity_type, entity_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(locality, entity_id, date, name) DO UPDATE SET
			observed = excluded.observed,
			day = excluded.day,
			entity_type = excluded.entity_type
	`

	_, err := q.ExecContext(ctx, query,
		h.ID, h.Name, h.Date.String(), nullDate(h.Observed), h.Day().String(),
		h.Locality, string(h.EntityType), h.EntityID,
		time.Now().UTC().Format(time.RFC3339),
	)
	return errors.Wrapf(err, "save holiday %q", h.Name)
}

// DeleteHoliday deletes a holiday by ID.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	if err != nil {
		return errors.Wrapf(err, "delete holiday %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.EntityNotFoundError{Type: "holiday", ID: id}
	}
	return nil
}

// HolidayFilter narrows ListHolidays. Zero fields match everything.
type HolidayFilter struct {
	Locality    string
	EntityID    string
	CountryOnly bool // only entries with no owning entity
	Year        int
}

// ListHolidays returns stored holidays (for admin UI), ordered by day.
func (s *Store) ListHolidays(ctx context.Context, f HolidayFilter) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := psql.Select(holidayColumns...).From("holidays").OrderBy("day", "locality", "name")
	if f.Locality != "" {
		b = b.Where(sq.Eq{"locality": generic.NormalizeCountry(f.Locality)})
	}
	switch {
	case f.CountryOnly:
		b = b.Where(sq.Eq{"entity_id": ""})
	case f.EntityID != "":
		b = b.Where(sq.Eq{"entity_id": f.EntityID})
	}
	if f.Year != 0 {
		b = b.Where(sq.Eq{"strftime('%Y', day)": strconv.Itoa(f.Year)})
	}
	return queryHolidays(ctx, s.db, b)
}

// ListHolidaysForEntityAndYear returns the effective holidays of one locality
// for one entity: country-wide entries merged with the entity's custom ones.
func (s *Store) ListHolidaysForEntityAndYear(ctx context.Context, locality, entityID string, year int) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	base := psql.Select(holidayColumns...).From("holidays").Where(sq.Eq{
		"locality":             generic.NormalizeCountry(locality),
		"strftime('%Y', day)": strconv.Itoa(year),
	}).OrderBy("day", "name")

	country, err := queryHolidays(ctx, s.db, base.Where(sq.Eq{"entity_id": ""}))
	if err != nil {
		return nil, err
	}
	if entityID == "" {
		return country, nil
	}
	custom, err := queryHolidays(ctx, s.db, base.Where(sq.Eq{"entity_id": entityID}))
	if err != nil {
		return nil, err
	}
	return generic.MergeHolidays(country, custom), nil
}

var holidayColumns = []string{"id", "name", "date", "observed", "locality", "entity_type", "entity_id"}

func queryHolidays(ctx context.Context, q Querier, b sq.SelectBuilder) ([]generic.Holiday, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build holiday query")
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query holidays")
	}
	defer rows.Close()

	var out []generic.Holiday
	for rows.Next() {
		var h generic.Holiday
		var date, entityType string
		var observed sql.NullString
		if err := rows.Scan(&h.ID, &h.Name, &date, &observed, &h.Locality, &entityType, &h.EntityID); err != nil {
			return nil, errors.Wrap(err, "scan holiday")
		}
		if h.Date, err = generic.ParseDate(date); err != nil {
			return nil, err
		}
		if observed.Valid {
			if h.Observed, err = generic.ParseDate(observed.String); err != nil {
				return nil, err
			}
		}
		h.EntityType = generic.EntityType(entityType)
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// WORKING WEEKS (generic.WorkingDaysOverride interface)
// =============================================================================

// SetWorkingWeekdays overrides a country's working week. An empty list
// removes the override.
func (s *Store) SetWorkingWeekdays(ctx context.Context, country string, days []time.Weekday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	country = generic.NormalizeCountry(country)
	if len(days) == 0 {
		_, err := s.db.ExecContext(ctx, "DELETE FROM working_days WHERE country = ?", country)
		return errors.Wrapf(err, "clear working days of %s", country)
	}

	query := `
		INSERT INTO working_days (country, weekdays, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(country) DO UPDATE SET
			weekdays = excluded.weekdays,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, country, joinWeekdays(days), time.Now().UTC().Format(time.RFC3339))
	return errors.Wrapf(err, "save working days of %s", country)
}

// GetWorkingWeekdays returns the overrides that exist for the given countries.
func (s *Store) GetWorkingWeekdays(ctx context.Context, countries []string) (map[string][]time.Weekday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]time.Weekday)
	if len(countries) == 0 {
		return out, nil
	}
	codes := make([]string, 0, len(countries))
	for _, c := range countries {
		codes = append(codes, generic.NormalizeCountry(c))
	}

	query, args, err := psql.Select("country", "weekdays").From("working_days").
		Where(sq.Eq{"country": codes}).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build working days query")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query working days")
	}
	defer rows.Close()

	for rows.Next() {
		var country, weekdays string
		if err := rows.Scan(&country, &weekdays); err != nil {
			return nil, errors.Wrap(err, "scan working days")
		}
		out[country] = splitWeekdays(weekdays)
	}
	return out, rows.Err()
}

// =============================================================================
// MILESTONE STORE (schedule.MilestoneStore interface)
// =============================================================================

// ReplaceMilestones swaps a legal entity's whole milestone set in one
// transaction. The caller validates the set.
func (s *Store) ReplaceMilestones(ctx context.Context, legalEntityID string, ms []schedule.Milestone) error {
	return s.WithTx(ctx, func(q Querier) error {
		if _, err := q.ExecContext(ctx, "DELETE FROM milestones WHERE legal_entity_id = ?", legalEntityID); err != nil {
			return errors.Wrapf(err, "clear milestones of %s", legalEntityID)
		}

		query := `
			INSERT INTO milestones (id, legal_entity_id, identifier, name, idx, interval_days, target, entities)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		for _, m := range ms {
			var interval sql.NullInt64
			if m.Interval != nil {
				interval = sql.NullInt64{Int64: int64(*m.Interval), Valid: true}
			}
			entities := make([]string, 0, len(m.Entities))
			for _, e := range m.Entities {
				entities = append(entities, e.String())
			}
			if _, err := q.ExecContext(ctx, query,
				m.ID, legalEntityID, m.Identifier, m.Name, m.Index, interval, m.Target,
				strings.Join(entities, ","),
			); err != nil {
				return errors.Wrapf(err, "insert milestone %s", m.ID)
			}
		}
		return nil
	})
}

// ListMilestones returns a legal entity's milestones ordered by index.
func (s *Store) ListMilestones(ctx context.Context, legalEntityID string) ([]schedule.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identifier, name, idx, interval_days, target, entities
		FROM milestones
		WHERE legal_entity_id = ?
		ORDER BY idx ASC
	`, legalEntityID)
	if err != nil {
		return nil, errors.Wrap(err, "query milestones")
	}
	defer rows.Close()

	out := []schedule.Milestone{}
	for rows.Next() {
		var m schedule.Milestone
		var interval sql.NullInt64
		var entities string
		if err := rows.Scan(&m.ID, &m.Identifier, &m.Name, &m.Index, &interval, &m.Target, &entities); err != nil {
			return nil, errors.Wrap(err, "scan milestone")
		}
		if interval.Valid {
			m.Interval = schedule.IntervalOf(int(interval.Int64))
		}
		for _, e := range splitList(entities) {
			m.Entities = append(m.Entities, generic.EntityType(e))
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// SCHEDULE STORE (schedule.ScheduleStore interface)
// =============================================================================

// SaveScheduleSet persists every schedule of the set or none of them.
func (s *Store) SaveScheduleSet(ctx context.Context, set *schedule.GeneratedScheduleSet) error {
	generatedAt := time.Now().UTC().Format(time.RFC3339)
	return s.WithTx(ctx, func(q Querier) error {
		for _, sch := range set.Schedules {
			if err := saveSchedule(ctx, q, sch, generatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveSchedule(ctx context.Context, q Querier, sch schedule.GeneratedSchedule, generatedAt string) error {
	upsert := `
		INSERT INTO schedules (id, legal_entity_id, name, date, end_date, target_date, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(legal_entity_id, date) DO UPDATE SET
			name = excluded.name,
			end_date = excluded.end_date,
			target_date = excluded.target_date,
			generated_at = excluded.generated_at
	`
	if _, err := q.ExecContext(ctx, upsert,
		sch.ID, sch.LegalEntityID, sch.Name, sch.Date.String(), sch.End.String(),
		sch.TargetDate.String(), generatedAt,
	); err != nil {
		return errors.Wrapf(err, "upsert schedule %s %s", sch.LegalEntityID, sch.Date)
	}

	// The row may predate this id; children hang off whichever id won.
	var id string
	if err := q.QueryRowContext(ctx,
		"SELECT id FROM schedules WHERE legal_entity_id = ? AND date = ?",
		sch.LegalEntityID, sch.Date.String(),
	).Scan(&id); err != nil {
		return errors.Wrap(err, "read schedule id")
	}

	for _, table := range []string{"schedule_dates", "schedule_holidays"} {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE schedule_id = ?", id); err != nil {
			return errors.Wrapf(err, "clear %s", table)
		}
	}

	for _, sd := range sch.ScheduleDates {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO schedule_dates (schedule_id, milestone_id, identifier, date, idx, target)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, sd.MilestoneID, sd.Identifier, sd.Date.String(), sd.Index, sd.Target); err != nil {
			return errors.Wrapf(err, "insert schedule date %s", sd.MilestoneID)
		}
	}
	for i, h := range sch.Holidays {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO schedule_holidays (schedule_id, holiday_id, name, date, observed, locality, entity_type, entity_id, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, h.ID, h.Name, h.Date.String(), nullDate(h.Observed), h.Locality,
			string(h.EntityType), h.EntityID, i); err != nil {
			return errors.Wrapf(err, "insert schedule holiday %q", h.Name)
		}
	}
	return nil
}

// ListSchedules returns a legal entity's stored schedules whose anchor falls
// in r, in ascending anchor order, with their dates and holidays.
func (s *Store) ListSchedules(ctx context.Context, legalEntityID string, r generic.Range) ([]schedule.GeneratedSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := psql.Select("id", "legal_entity_id", "name", "date", "end_date", "target_date").
		From("schedules").
		Where(sq.Eq{"legal_entity_id": legalEntityID}).
		OrderBy("date ASC")
	if !r.Start.IsZero() {
		b = b.Where(sq.GtOrEq{"date": r.Start.String()})
	}
	if !r.End.IsZero() {
		b = b.Where(sq.LtOrEq{"date": r.End.String()})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build schedule query")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query schedules")
	}

	var out []schedule.GeneratedSchedule
	for rows.Next() {
		var sch schedule.GeneratedSchedule
		var date, end, target string
		if err := rows.Scan(&sch.ID, &sch.LegalEntityID, &sch.Name, &date, &end, &target); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan schedule")
		}
		if sch.Date, err = generic.ParseDate(date); err == nil {
			if sch.End, err = generic.ParseDate(end); err == nil {
				sch.TargetDate, err = generic.ParseDate(target)
			}
		}
		if err != nil {
			rows.Close()
			return nil, errors.Wrapf(err, "schedule %s", sch.ID)
		}
		out = append(out, sch)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].ScheduleDates, err = s.scheduleDates(ctx, out[i].ID); err != nil {
			return nil, err
		}
		if out[i].Holidays, err = s.scheduleHolidays(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) scheduleDates(ctx context.Context, scheduleID string) ([]schedule.GeneratedScheduleDate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT milestone_id, identifier, date, idx, target
		FROM schedule_dates
		WHERE schedule_id = ?
		ORDER BY idx ASC
	`, scheduleID)
	if err != nil {
		return nil, errors.Wrap(err, "query schedule dates")
	}
	defer rows.Close()

	var out []schedule.GeneratedScheduleDate
	for rows.Next() {
		var sd schedule.GeneratedScheduleDate
		var date string
		if err := rows.Scan(&sd.MilestoneID, &sd.Identifier, &date, &sd.Index, &sd.Target); err != nil {
			return nil, errors.Wrap(err, "scan schedule date")
		}
		if sd.Date, err = generic.ParseDate(date); err != nil {
			return nil, errors.Wrapf(err, "schedule %s milestone %s", scheduleID, sd.MilestoneID)
		}
		out = append(out, sd)
	}
	return out, rows.Err()
}

func (s *Store) scheduleHolidays(ctx context.Context, scheduleID string) ([]generic.Holiday, error) {
	b := psql.Select("holiday_id", "name", "date", "observed", "locality", "entity_type", "entity_id").
		From("schedule_holidays").
		Where(sq.Eq{"schedule_id": scheduleID}).
		OrderBy("position")
	return queryHolidays(ctx, s.db, b)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"schedule_holidays", "schedule_dates", "schedules", "milestones",
		"working_days", "holidays", "organizations", "legal_entities",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.Wrapf(err, "reset %s", table)
		}
	}
	return nil
}

// Helper functions

func holidayID(h generic.Holiday) string {
	id := strings.ToLower(h.Locality + "-" + h.Date.String() + "-" + strings.ReplaceAll(h.Name, " ", "-"))
	if h.EntityID != "" {
		id = h.EntityID + "-" + id
	}
	return id
}

func nullDate(d generic.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func joinCodes(codes []string) string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c = generic.NormalizeCountry(c); c != "" {
			out = append(out, c)
		}
	}
	return strings.Join(out, ",")
}

func splitCodes(s string) []string {
	return splitList(s)
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinWeekdays(days []time.Weekday) string {
	sorted := append([]time.Weekday(nil), days...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, 0, len(sorted))
	for i, d := range sorted {
		if i > 0 && d == sorted[i-1] {
			continue
		}
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}

func splitWeekdays(s string) []time.Weekday {
	var out []time.Weekday
	for _, part := range splitList(s) {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			continue
		}
		out = append(out, time.Weekday(n))
	}
	return out
}
