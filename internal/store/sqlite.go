package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/listings-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	place_id             TEXT UNIQUE,
	address              TEXT,
	postcode             TEXT,
	phone                TEXT,
	website              TEXT,
	email                TEXT,
	category             TEXT,
	industry             TEXT,
	search_term          TEXT,
	search_location      TEXT,
	opening_hours        TEXT,
	rating               REAL,
	review_count         INTEGER,
	latitude             REAL,
	longitude            REAL,
	data_quality_score   REAL,
	registry_number      TEXT,
	registry_status      TEXT,
	incorporation_date   TEXT,
	sic_codes            TEXT,
	registry_match_score REAL,
	last_verified        DATETIME,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS search_history (
	id            TEXT PRIMARY KEY,
	industry      TEXT,
	search_term   TEXT,
	location      TEXT,
	results_count INTEGER,
	search_date   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_businesses_place_id ON businesses(place_id);
CREATE INDEX IF NOT EXISTS idx_businesses_registry_number ON businesses(registry_number);
CREATE INDEX IF NOT EXISTS idx_businesses_postcode ON businesses(postcode);
CREATE INDEX IF NOT EXISTS idx_businesses_industry ON businesses(industry);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUpsertSQL = `
INSERT INTO businesses (
	id, name, place_id, address, postcode, phone, website, email,
	category, industry, search_term, search_location, opening_hours,
	rating, review_count, latitude, longitude, data_quality_score,
	created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (place_id) DO UPDATE SET
	name = excluded.name,
	address = excluded.address,
	postcode = excluded.postcode,
	phone = excluded.phone,
	website = excluded.website,
	email = excluded.email,
	category = excluded.category,
	rating = excluded.rating,
	review_count = excluded.review_count,
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	data_quality_score = excluded.data_quality_score,
	updated_at = excluded.updated_at
RETURNING id`

func (s *SQLiteStore) UpsertBusiness(ctx context.Context, rec *model.Record) (string, error) {
	var placeID *string
	if rec.PlaceID != "" {
		placeID = &rec.PlaceID
	}

	now := time.Now().UTC()
	var id string
	err := s.db.QueryRowContext(ctx, sqliteUpsertSQL,
		uuid.New().String(), rec.Name, placeID, nullable(rec.Address), nullable(rec.Postcode),
		nullable(rec.Phone), nullable(rec.Website), nullable(rec.Email),
		nullable(rec.Category), nullable(rec.Industry), nullable(rec.SearchTerm),
		nullable(rec.SearchLocation), nullable(rec.OpeningHours),
		rec.Rating, rec.ReviewCount, rec.Latitude, rec.Longitude,
		rec.DataQualityScore, now, now,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: upsert business %s", rec.Name)
	}
	return id, nil
}

const sqliteUpdateRegistrySQL = `
UPDATE businesses SET
	registry_number = ?,
	registry_status = ?,
	incorporation_date = ?,
	sic_codes = ?,
	registry_match_score = ?,
	last_verified = ?,
	updated_at = ?
WHERE id = ?`

func (s *SQLiteStore) UpdateRegistryData(ctx context.Context, id string, rec *model.Record) error {
	sicJSON, err := json.Marshal(rec.SICCodes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sic codes")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, sqliteUpdateRegistrySQL,
		rec.RegistryNumber, rec.RegistryStatus, nullable(rec.IncorporationDate),
		string(sicJSON), rec.RegistryMatchScore, now, now, id,
	)
	return eris.Wrapf(err, "sqlite: update registry data %s", id)
}

const sqliteListUnverifiedSQL = `
SELECT id, name, COALESCE(address, ''), COALESCE(postcode, ''), COALESCE(place_id, '')
FROM businesses
WHERE registry_number IS NULL
   OR last_verified < datetime('now', '-30 days')
ORDER BY updated_at ASC
LIMIT ?`

func (s *SQLiteStore) ListUnverified(ctx context.Context, limit int) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, sqliteListUnverifiedSQL, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unverified")
	}
	defer rows.Close()

	var recs []model.Record
	for rows.Next() {
		var rec model.Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Address, &rec.Postcode, &rec.PlaceID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan unverified row")
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: unverified rows")
	}
	return recs, nil
}

func (s *SQLiteStore) LogSearch(ctx context.Context, industry, searchTerm, location string, resultsCount int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_history (id, industry, search_term, location, results_count) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), industry, searchTerm, location, resultsCount,
	)
	return eris.Wrap(err, "sqlite: log search")
}

const sqliteContactStatsSQL = `
SELECT
	COUNT(*),
	COUNT(phone),
	COUNT(website),
	COUNT(email),
	COUNT(registry_number)
FROM businesses`

func (s *SQLiteStore) ContactStats(ctx context.Context) (*ContactStats, error) {
	var stats ContactStats
	err := s.db.QueryRowContext(ctx, sqliteContactStatsSQL).Scan(
		&stats.TotalBusinesses, &stats.WithPhone, &stats.WithWebsite,
		&stats.WithEmail, &stats.Verified,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: contact stats")
	}
	return &stats, nil
}
