package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/autopeer-io/beacon/internal/beaconhub/core"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
	"github.com/autopeer-io/beacon/pkg/options"
)

var (
	_ core.EventStore = (*Postgres)(nil)

	errNilDB = errors.New("event repo: nil db")

	tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

const eventColumns = `id, device_id, mode, latitude, longitude, speed, satellites, uptime, rssi, snr,
	raw_payload, received_at, recorded_at`

// Postgres is an EventStore backed by a single table.
type Postgres struct {
	db    *sql.DB
	table string
}

// OpenPostgres connects through the pgx driver and optionally creates the
// events table.
func OpenPostgres(ctx context.Context, opts *options.PostgresOptions) (*Postgres, error) {
	if opts.DSN == "" {
		return nil, errors.New("postgres.dsn is required for the postgres store")
	}
	db, err := sql.Open("pgx", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p, err := NewPostgres(db, opts.Table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if opts.AutoMigrate {
		if err := p.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return p, nil
}

// NewPostgres wraps an open database. table must be a plain identifier.
func NewPostgres(db *sql.DB, table string) (*Postgres, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("event repo: invalid table name %q", table)
	}
	return &Postgres{db: db, table: table}, nil
}

// Migrate creates the events table and its device index if missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if p == nil || p.db == nil {
		return errNilDB
	}
	stmts := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id          BIGSERIAL PRIMARY KEY,
	device_id   TEXT NOT NULL,
	mode        TEXT NOT NULL,
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	speed       TEXT,
	satellites  TEXT,
	uptime      TEXT NOT NULL,
	rssi        TEXT,
	snr         TEXT,
	raw_payload TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_device_received_idx ON %[1]s (device_id, received_at DESC)`, p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", p.table, err)
		}
	}
	return nil
}

// Ping checks the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	if p == nil || p.db == nil {
		return errNilDB
	}
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) Append(ctx context.Context, event *model.Event) error {
	if p == nil || p.db == nil {
		return errNilDB
	}
	if event == nil {
		return errNilEvent
	}
	r := event.Record
	row := p.db.QueryRowContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	device_id, mode, latitude, longitude, speed, satellites, uptime, rssi, snr, raw_payload, received_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)
RETURNING id, recorded_at`, p.table),
		r.DeviceID, string(r.Mode), r.Latitude, r.Longitude, r.Speed, r.Satellites, r.Uptime, r.RSSI, r.SNR,
		r.RawPayload, r.ReceivedAt)

	var id int64
	if err := row.Scan(&id, &event.RecordedAt); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	event.ID = strconv.FormatInt(id, 10)
	return nil
}

func (p *Postgres) List(ctx context.Context) ([]*model.Event, error) {
	if p == nil || p.db == nil {
		return nil, errNilDB
	}
	return p.query(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
ORDER BY received_at DESC, id DESC`, eventColumns, p.table))
}

func (p *Postgres) ListByDevice(ctx context.Context, deviceID string) ([]*model.Event, error) {
	if p == nil || p.db == nil {
		return nil, errNilDB
	}
	return p.query(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
WHERE device_id = $1
ORDER BY received_at DESC, id DESC`, eventColumns, p.table), deviceID)
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	if p == nil || p.db == nil {
		return errNilDB
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return core.ErrNotFound
	}
	res, err := p.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, p.table), n)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteAll(ctx context.Context) error {
	if p == nil || p.db == nil {
		return errNilDB
	}
	if _, err := p.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, p.table)); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	return nil
}

func (p *Postgres) Latest(ctx context.Context, deviceID string) (*model.Event, error) {
	if p == nil || p.db == nil {
		return nil, errNilDB
	}
	events, err := p.query(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
WHERE device_id = $1
ORDER BY received_at DESC, id DESC
LIMIT 1`, eventColumns, p.table), deviceID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, core.ErrNotFound
	}
	return events[0], nil
}

func (p *Postgres) Devices(ctx context.Context) ([]string, error) {
	if p == nil || p.db == nil {
		return nil, errNilDB
	}
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT device_id FROM %s ORDER BY device_id`, p.table))
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) query(ctx context.Context, q string, args ...any) ([]*model.Event, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (*model.Event, error) {
	var (
		id                     int64
		mode                   string
		lat, lon               sql.NullFloat64
		speed, sats, rssi, snr sql.NullString
		e                      model.Event
	)
	if err := rows.Scan(&id, &e.Record.DeviceID, &mode, &lat, &lon, &speed, &sats, &e.Record.Uptime,
		&rssi, &snr, &e.Record.RawPayload, &e.Record.ReceivedAt, &e.RecordedAt); err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	e.ID = strconv.FormatInt(id, 10)
	e.Record.Mode = model.Mode(mode)
	e.Record.Latitude = nullFloat(lat)
	e.Record.Longitude = nullFloat(lon)
	e.Record.Speed = nullString(speed)
	e.Record.Satellites = nullString(sats)
	e.Record.RSSI = nullString(rssi)
	e.Record.SNR = nullString(snr)
	return &e, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
