package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"habitat_scrooper/models"
)

// PostgresStore keeps the canonical properties every search returned, with
// first/last sighting times and the runs that saw them.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		title TEXT NOT NULL,
		price DOUBLE PRECISION,
		admin_fee DOUBLE PRECISION,
		total_price DOUBLE PRECISION,
		area DOUBLE PRECISION,
		price_per_m2 DOUBLE PRECISION,
		rooms INTEGER,
		bathrooms INTEGER,
		parking INTEGER,
		stratum INTEGER,
		property_type TEXT,
		operation TEXT,
		address TEXT,
		neighborhood TEXT,
		zone TEXT,
		city TEXT,
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION,
		geohash TEXT,
		amenities TEXT[],
		images TEXT[],
		url TEXT,
		description TEXT,
		is_active BOOLEAN DEFAULT TRUE,
		scraped_at TIMESTAMPTZ,
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS property_sightings (
		run_id TEXT NOT NULL,
		property_id TEXT NOT NULL REFERENCES properties(id),
		score DOUBLE PRECISION,
		seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (run_id, property_id)
	);

	CREATE INDEX IF NOT EXISTS idx_properties_source_seen ON properties(source, last_seen_at);
	CREATE INDEX IF NOT EXISTS idx_properties_geohash ON properties(geohash);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// UpsertProperties stores props and links them to runID in one batch.
// Existing rows keep first_seen_at and get fresh facts and last_seen_at.
func (s *PostgresStore) UpsertProperties(ctx context.Context, runID string, props []models.ScoredProperty) error {
	if len(props) == 0 {
		return nil
	}

	upsert := `
		INSERT INTO properties (
			id, source, title, price, admin_fee, total_price, area, price_per_m2,
			rooms, bathrooms, parking, stratum, property_type, operation,
			address, neighborhood, zone, city, lat, lng, geohash,
			amenities, images, url, description, is_active, scraped_at, last_seen_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			admin_fee = EXCLUDED.admin_fee,
			total_price = EXCLUDED.total_price,
			area = EXCLUDED.area,
			price_per_m2 = EXCLUDED.price_per_m2,
			rooms = EXCLUDED.rooms,
			bathrooms = EXCLUDED.bathrooms,
			parking = EXCLUDED.parking,
			stratum = COALESCE(NULLIF(EXCLUDED.stratum, 0), properties.stratum),
			property_type = COALESCE(NULLIF(EXCLUDED.property_type, ''), properties.property_type),
			operation = COALESCE(NULLIF(EXCLUDED.operation, ''), properties.operation),
			address = EXCLUDED.address,
			neighborhood = EXCLUDED.neighborhood,
			zone = EXCLUDED.zone,
			city = EXCLUDED.city,
			lat = COALESCE(EXCLUDED.lat, properties.lat),
			lng = COALESCE(EXCLUDED.lng, properties.lng),
			geohash = COALESCE(NULLIF(EXCLUDED.geohash, ''), properties.geohash),
			amenities = EXCLUDED.amenities,
			images = EXCLUDED.images,
			url = EXCLUDED.url,
			description = COALESCE(NULLIF(EXCLUDED.description, ''), properties.description),
			is_active = EXCLUDED.is_active,
			scraped_at = EXCLUDED.scraped_at,
			last_seen_at = NOW()`

	sighting := `
		INSERT INTO property_sightings (run_id, property_id, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, property_id) DO UPDATE SET score = EXCLUDED.score`

	batch := &pgx.Batch{}
	for i := range props {
		p := &props[i]
		var lat, lng *float64
		if c := p.Location.Coordinates; c != nil {
			lat, lng = &c.Lat, &c.Lng
		}
		batch.Queue(upsert,
			p.ID, p.Source, p.Title, p.Price, p.AdminFee, p.TotalPrice, p.Area, p.PricePerM2,
			p.Rooms, p.Bathrooms, p.Parking, p.Stratum, p.PropertyType, string(p.Operation),
			p.Location.Address, p.Location.Neighborhood, p.Location.Zone, p.Location.City,
			lat, lng, p.Location.Geohash, p.Amenities, p.Images, p.URL, p.Description,
			p.IsActive, p.ScrapedAt)
		batch.Queue(sighting, runID, p.ID, p.Score)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert property batch item %d: %w", i, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetProperty(ctx context.Context, id string) (*models.CanonicalProperty, error) {
	query := `
		SELECT id, source, title, price, admin_fee, total_price, area, price_per_m2,
			rooms, bathrooms, parking, stratum, property_type, operation,
			address, neighborhood, zone, city, lat, lng, geohash,
			amenities, images, url, description, is_active, scraped_at
		FROM properties WHERE id = $1`

	p, err := scanProperty(s.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PropertiesForRun returns what one search run returned, best score first.
func (s *PostgresStore) PropertiesForRun(ctx context.Context, runID string) ([]models.ScoredProperty, error) {
	query := `
		SELECT p.id, p.source, p.title, p.price, p.admin_fee, p.total_price, p.area, p.price_per_m2,
			p.rooms, p.bathrooms, p.parking, p.stratum, p.property_type, p.operation,
			p.address, p.neighborhood, p.zone, p.city, p.lat, p.lng, p.geohash,
			p.amenities, p.images, p.url, p.description, p.is_active, p.scraped_at, s.score
		FROM property_sightings s
		JOIN properties p ON p.id = s.property_id
		WHERE s.run_id = $1
		ORDER BY s.score DESC, p.id`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredProperty
	for rows.Next() {
		var score float64
		p, err := scanProperty(rows, &score)
		if err != nil {
			return nil, err
		}
		out = append(out, models.ScoredProperty{CanonicalProperty: *p, Score: score, HardMatch: true})
	}
	return out, rows.Err()
}

// MarkStaleInactive flags properties of source not seen since cutoff.
func (s *PostgresStore) MarkStaleInactive(ctx context.Context, source string, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE properties SET is_active = FALSE
		WHERE source = $1 AND is_active AND last_seen_at < $2`, source, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanProperty(row pgx.Row, extra ...interface{}) (*models.CanonicalProperty, error) {
	var p models.CanonicalProperty
	var lat, lng *float64
	var operation string
	var scrapedAt *time.Time
	dest := []interface{}{
		&p.ID, &p.Source, &p.Title, &p.Price, &p.AdminFee, &p.TotalPrice, &p.Area, &p.PricePerM2,
		&p.Rooms, &p.Bathrooms, &p.Parking, &p.Stratum, &p.PropertyType, &operation,
		&p.Location.Address, &p.Location.Neighborhood, &p.Location.Zone, &p.Location.City,
		&lat, &lng, &p.Location.Geohash, &p.Amenities, &p.Images, &p.URL, &p.Description,
		&p.IsActive, &scrapedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	p.Operation = models.Operation(operation)
	if lat != nil && lng != nil {
		p.Location.Coordinates = &models.GeoPoint{Lat: *lat, Lng: *lng}
	}
	if scrapedAt != nil {
		p.ScrapedAt = *scrapedAt
	}
	return &p, nil
}
