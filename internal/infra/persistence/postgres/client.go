// Package postgres provides the client for the remote project/auth layer: a
// row-based cloud database holding user profiles, projects, and a flattened
// server-side specimen schema. The core consumes it purely as a query/insert
// surface; no synchronization with the local store is performed here.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/fieldcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Remote row shapes. Field and column names mirror the cloud schema and are
// snake_cased, unlike the local store's persisted shape.

// ProfileRow is a user profile row.
type ProfileRow struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     *string   `json:"full_name"`
	Organization *string   `json:"organization"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProjectRow is a collaboration project row.
type ProjectRow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Status      string    `json:"status"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SpecimenRow is the flattened server-side specimen shape.
type SpecimenRow struct {
	ID                  string    `json:"id"`
	ProjectID           string    `json:"project_id"`
	SpecimenNumber      string    `json:"specimen_number"`
	QRCode              *string   `json:"qr_code"`
	CommonName          *string   `json:"common_name"`
	ScientificName      *string   `json:"scientific_name"`
	Family              *string   `json:"family"`
	Genus               *string   `json:"genus"`
	Species             *string   `json:"species"`
	Verified            bool      `json:"verified"`
	Latitude            *float64  `json:"latitude"`
	Longitude           *float64  `json:"longitude"`
	Altitude            *float64  `json:"altitude"`
	Accuracy            *float64  `json:"accuracy"`
	LocationDescription *string   `json:"location_description"`
	Habitat             *string   `json:"habitat"`
	SoilType            *string   `json:"soil_type"`
	Slope               *string   `json:"slope"`
	Aspect              *string   `json:"aspect"`
	CollectedBy         string    `json:"collected_by"`
	CollectedDate       time.Time `json:"collected_date"`
	Notes               *string   `json:"notes"`
	SyncStatus          string    `json:"sync_status"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	full_name TEXT,
	organization TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	status TEXT NOT NULL,
	created_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS specimens (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	specimen_number TEXT NOT NULL,
	qr_code TEXT,
	common_name TEXT,
	scientific_name TEXT,
	family TEXT,
	genus TEXT,
	species TEXT,
	verified BOOLEAN NOT NULL DEFAULT FALSE,
	latitude DOUBLE PRECISION,
	longitude DOUBLE PRECISION,
	altitude DOUBLE PRECISION,
	accuracy DOUBLE PRECISION,
	location_description TEXT,
	habitat TEXT,
	soil_type TEXT,
	slope TEXT,
	aspect TEXT,
	collected_by TEXT NOT NULL,
	collected_date TIMESTAMPTZ NOT NULL,
	notes TEXT,
	sync_status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)
`

// Client talks to the remote project/auth database.
type Client struct {
	db    *sql.DB
	nowFn func() time.Time
	newID func() string
}

// Open connects to the remote database using the provided DSN (falling back
// to defaultDSN), verifies connectivity, and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Client, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range strings.Split(schemaDDL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &Client{
		db:    db,
		nowFn: func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}, nil
}

// Close releases the underlying database handle.
func (c *Client) Close() error { return c.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (c *Client) DB() *sql.DB { return c.db }

// ListProjects returns all projects ordered by creation time, newest first.
func (c *Client) ListProjects(ctx context.Context) ([]ProjectRow, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, description, status, created_by, created_at, updated_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select projects: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []ProjectRow
	for rows.Next() {
		var row ProjectRow
		var description sql.NullString
		if err := rows.Scan(&row.ID, &row.Name, &description, &row.Status, &row.CreatedBy, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if description.Valid {
			row.Description = &description.String
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return out, nil
}

// CreateProject inserts one project row and returns it with server-side
// fields (id, status, timestamps) populated.
func (c *Client) CreateProject(ctx context.Context, name string, description *string, createdBy string) (ProjectRow, error) {
	if strings.TrimSpace(name) == "" {
		return ProjectRow{}, fmt.Errorf("project name required")
	}
	now := c.nowFn()
	row := ProjectRow{
		ID:          c.newID(),
		Name:        name,
		Description: description,
		Status:      "active",
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, description, status, created_by, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		row.ID, row.Name, row.Description, row.Status, row.CreatedBy, row.CreatedAt, row.UpdatedAt,
	); err != nil {
		return ProjectRow{}, fmt.Errorf("insert project: %w", err)
	}
	return row, nil
}

// ListProfiles returns all profiles ordered by creation time, newest first.
func (c *Client) ListProfiles(ctx context.Context) ([]ProfileRow, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, email, full_name, organization, created_at, updated_at FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []ProfileRow
	for rows.Next() {
		var row ProfileRow
		var fullName, organization sql.NullString
		if err := rows.Scan(&row.ID, &row.Email, &fullName, &organization, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		if fullName.Valid {
			row.FullName = &fullName.String
		}
		if organization.Valid {
			row.Organization = &organization.String
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}

// UpsertProfile inserts or replaces a profile row keyed by id.
func (c *Client) UpsertProfile(ctx context.Context, profile ProfileRow) (ProfileRow, error) {
	if profile.ID == "" {
		return ProfileRow{}, fmt.Errorf("profile id required")
	}
	now := c.nowFn()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO profiles (id, email, full_name, organization, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (id) DO UPDATE SET email=EXCLUDED.email, full_name=EXCLUDED.full_name, organization=EXCLUDED.organization, updated_at=EXCLUDED.updated_at`,
		profile.ID, profile.Email, profile.FullName, profile.Organization, profile.CreatedAt, profile.UpdatedAt,
	); err != nil {
		return ProfileRow{}, fmt.Errorf("upsert profile: %w", err)
	}
	return profile, nil
}

// InsertSpecimenRow inserts one flattened specimen row and returns it with
// server-side fields populated. The local store remains the source of truth;
// this is a parallel surface, not a sync.
func (c *Client) InsertSpecimenRow(ctx context.Context, row SpecimenRow) (SpecimenRow, error) {
	if row.ProjectID == "" {
		return SpecimenRow{}, fmt.Errorf("project_id required")
	}
	if row.CollectedBy == "" {
		return SpecimenRow{}, fmt.Errorf("collected_by required")
	}
	now := c.nowFn()
	if row.ID == "" {
		row.ID = c.newID()
	}
	if row.CollectedDate.IsZero() {
		row.CollectedDate = now
	}
	if row.SyncStatus == "" {
		row.SyncStatus = "pending"
	}
	row.CreatedAt = now
	row.UpdatedAt = now
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO specimens (id, project_id, specimen_number, qr_code, common_name, scientific_name, family, genus, species, verified, latitude, longitude, altitude, accuracy, location_description, habitat, soil_type, slope, aspect, collected_by, collected_date, notes, sync_status, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`,
		row.ID, row.ProjectID, row.SpecimenNumber, row.QRCode, row.CommonName, row.ScientificName,
		row.Family, row.Genus, row.Species, row.Verified, row.Latitude, row.Longitude, row.Altitude,
		row.Accuracy, row.LocationDescription, row.Habitat, row.SoilType, row.Slope, row.Aspect,
		row.CollectedBy, row.CollectedDate, row.Notes, row.SyncStatus, row.CreatedAt, row.UpdatedAt,
	); err != nil {
		return SpecimenRow{}, fmt.Errorf("insert specimen row: %w", err)
	}
	return row, nil
}

// ListSpecimenRows returns all remote specimen rows ordered by creation time,
// newest first.
func (c *Client) ListSpecimenRows(ctx context.Context) ([]SpecimenRow, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, project_id, specimen_number, collected_by, collected_date, sync_status, created_at, updated_at FROM specimens ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select specimens: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []SpecimenRow
	for rows.Next() {
		var row SpecimenRow
		if err := rows.Scan(&row.ID, &row.ProjectID, &row.SpecimenNumber, &row.CollectedBy, &row.CollectedDate, &row.SyncStatus, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan specimen row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate specimens: %w", err)
	}
	return out, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
