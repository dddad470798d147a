// Package catalog records the files exported for the retrieval service in a
// small sqlite database.
package catalog

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/lidar.scc/internal/monitoring"
	"github.com/banshee-data/lidar.scc/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Export kinds.
const (
	KindRaw       = "raw"
	KindDepolCal  = "depolcal"
	KindSonde     = "sonde"
	KindTelecover = "telecover"
	KindQuicklook = "quicklook"
)

var ErrInvalidEntry = errors.New("invalid catalog entry")

// Catalog is an open export catalog. Clock stamps entries recorded without
// a creation time.
type Catalog struct {
	*sql.DB
	Clock timeutil.Clock
}

// Entry is one exported file.
type Entry struct {
	ID            string
	MeasurementID string
	Kind          string
	Path          string
	First         time.Time
	Last          time.Time
	Rows          int
	Comment       string
	CreatedAt     time.Time
}

// Open opens or creates the catalog at path and applies pending migrations.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure catalog %s: %w", path, err)
	}
	c := &Catalog{DB: db, Clock: timeutil.RealClock{}}
	if err := c.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// MigrateUp applies all pending migrations.
func (c *Catalog) MigrateUp() error {
	m, err := c.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the shared connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateTo migrates up or down to version.
func (c *Catalog) MigrateTo(version uint) error {
	m, err := c.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}
	return nil
}

// Version returns the applied schema version, 0 before any migration.
func (c *Catalog) Version() (uint, bool, error) {
	m, err := c.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (c *Catalog) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(c.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// Record stores e. A missing ID or creation time is filled in; the stored
// entry is returned.
func (c *Catalog) Record(e Entry) (Entry, error) {
	if e.MeasurementID == "" || e.Kind == "" || e.Path == "" {
		return Entry{}, fmt.Errorf("measurement id, kind and path are required: %w", ErrInvalidEntry)
	}
	if e.Last.Before(e.First) {
		return Entry{}, fmt.Errorf("last time %s before first %s: %w", e.Last, e.First, ErrInvalidEntry)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.Clock.Now()
	}

	_, err := c.Exec(`
		INSERT INTO exports (export_id, measurement_id, kind, path, first_time_ns, last_time_ns, row_count, comment, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.MeasurementID, e.Kind, e.Path, toNanos(e.First), toNanos(e.Last), e.Rows, e.Comment, toNanos(e.CreatedAt))
	if err != nil {
		return Entry{}, fmt.Errorf("failed to record export %s: %v", e.Path, err)
	}
	monitoring.Debugw("recorded export", "id", e.ID, "kind", e.Kind, "path", e.Path)
	return e, nil
}

// ListByMeasurement returns the exports of a measurement, oldest first.
func (c *Catalog) ListByMeasurement(measurementID string) ([]Entry, error) {
	rows, err := c.Query(`
		SELECT export_id, measurement_id, kind, path, first_time_ns, last_time_ns, row_count, comment, created_at_ns
		FROM exports
		WHERE measurement_id = ?
		ORDER BY created_at_ns, export_id
	`, measurementID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %v", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var first, last, created int64
		if err := rows.Scan(&e.ID, &e.MeasurementID, &e.Kind, &e.Path, &first, &last, &e.Rows, &e.Comment, &created); err != nil {
			return nil, fmt.Errorf("failed to scan export: %v", err)
		}
		e.First = fromNanos(first)
		e.Last = fromNanos(last)
		e.CreatedAt = fromNanos(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Zero times are stored as 0.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
