package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/listings-cli/internal/model"
)

// pgPool is the minimal pool surface PostgresStore uses; satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool pgPool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id                   TEXT PRIMARY KEY,
	name                 VARCHAR(500) NOT NULL,
	place_id             VARCHAR(255) UNIQUE,
	address              TEXT,
	postcode             VARCHAR(20),
	phone                VARCHAR(50),
	website              VARCHAR(500),
	email                VARCHAR(255),
	category             VARCHAR(100),
	industry             VARCHAR(100),
	search_term          VARCHAR(255),
	search_location      VARCHAR(255),
	opening_hours        TEXT,
	rating               DECIMAL(3,2),
	review_count         INTEGER,
	latitude             DECIMAL(10,8),
	longitude            DECIMAL(11,8),
	data_quality_score   DOUBLE PRECISION,
	registry_number      VARCHAR(50),
	registry_status      VARCHAR(50),
	incorporation_date   VARCHAR(20),
	sic_codes            TEXT[],
	registry_match_score DOUBLE PRECISION,
	last_verified        TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_history (
	id            TEXT PRIMARY KEY,
	industry      VARCHAR(100),
	search_term   VARCHAR(255),
	location      VARCHAR(255),
	results_count INTEGER,
	search_date   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_businesses_place_id ON businesses(place_id);
CREATE INDEX IF NOT EXISTS idx_businesses_registry_number ON businesses(registry_number);
CREATE INDEX IF NOT EXISTS idx_businesses_postcode ON businesses(postcode);
CREATE INDEX IF NOT EXISTS idx_businesses_industry ON businesses(industry);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const upsertBusinessSQL = `
INSERT INTO businesses (
	id, name, place_id, address, postcode, phone, website, email,
	category, industry, search_term, search_location, opening_hours,
	rating, review_count, latitude, longitude, data_quality_score,
	created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)
ON CONFLICT (place_id) DO UPDATE SET
	name = EXCLUDED.name,
	address = EXCLUDED.address,
	postcode = EXCLUDED.postcode,
	phone = EXCLUDED.phone,
	website = EXCLUDED.website,
	email = EXCLUDED.email,
	category = EXCLUDED.category,
	rating = EXCLUDED.rating,
	review_count = EXCLUDED.review_count,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	data_quality_score = EXCLUDED.data_quality_score,
	updated_at = EXCLUDED.updated_at
RETURNING id`

func (s *PostgresStore) UpsertBusiness(ctx context.Context, rec *model.Record) (string, error) {
	// NULL place IDs never conflict, so records without one always insert.
	var placeID *string
	if rec.PlaceID != "" {
		placeID = &rec.PlaceID
	}

	var id string
	err := s.pool.QueryRow(ctx, upsertBusinessSQL,
		uuid.New().String(), rec.Name, placeID, nullable(rec.Address), nullable(rec.Postcode),
		nullable(rec.Phone), nullable(rec.Website), nullable(rec.Email),
		nullable(rec.Category), nullable(rec.Industry), nullable(rec.SearchTerm),
		nullable(rec.SearchLocation), nullable(rec.OpeningHours),
		rec.Rating, rec.ReviewCount, rec.Latitude, rec.Longitude,
		rec.DataQualityScore, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: upsert business %s", rec.Name)
	}
	return id, nil
}

const updateRegistrySQL = `
UPDATE businesses SET
	registry_number = $2,
	registry_status = $3,
	incorporation_date = $4,
	sic_codes = $5,
	registry_match_score = $6,
	last_verified = now(),
	updated_at = now()
WHERE id = $1`

func (s *PostgresStore) UpdateRegistryData(ctx context.Context, id string, rec *model.Record) error {
	_, err := s.pool.Exec(ctx, updateRegistrySQL,
		id, rec.RegistryNumber, rec.RegistryStatus, nullable(rec.IncorporationDate),
		rec.SICCodes, rec.RegistryMatchScore,
	)
	return eris.Wrapf(err, "postgres: update registry data %s", id)
}

const listUnverifiedSQL = `
SELECT id, name, COALESCE(address, ''), COALESCE(postcode, ''), COALESCE(place_id, '')
FROM businesses
WHERE registry_number IS NULL
   OR last_verified < now() - INTERVAL '30 days'
ORDER BY updated_at ASC
LIMIT $1`

func (s *PostgresStore) ListUnverified(ctx context.Context, limit int) ([]model.Record, error) {
	rows, err := s.pool.Query(ctx, listUnverifiedSQL, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unverified")
	}
	defer rows.Close()

	var recs []model.Record
	for rows.Next() {
		var rec model.Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Address, &rec.Postcode, &rec.PlaceID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan unverified row")
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: unverified rows")
	}
	return recs, nil
}

func (s *PostgresStore) LogSearch(ctx context.Context, industry, searchTerm, location string, resultsCount int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO search_history (id, industry, search_term, location, results_count) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), industry, searchTerm, location, resultsCount,
	)
	return eris.Wrap(err, "postgres: log search")
}

const contactStatsSQL = `
SELECT
	COUNT(*),
	COUNT(phone),
	COUNT(website),
	COUNT(email),
	COUNT(registry_number)
FROM businesses`

func (s *PostgresStore) ContactStats(ctx context.Context) (*ContactStats, error) {
	var stats ContactStats
	err := s.pool.QueryRow(ctx, contactStatsSQL).Scan(
		&stats.TotalBusinesses, &stats.WithPhone, &stats.WithWebsite,
		&stats.WithEmail, &stats.Verified,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: contact stats")
	}
	return &stats, nil
}

// nullable maps "" to NULL so empty strings don't masquerade as data.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
