package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nitesh/bizrank/pkg/models"
)

type PgStore struct {
	db *sqlx.DB
}

func NewPgStore(db *sql.DB) *PgStore {
	return &PgStore{db: sqlx.NewDb(db, "postgres")}
}

func RunMigrations(db *sql.DB) error {
	initSQL := `
CREATE TABLE IF NOT EXISTS cities(
  slug TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS categories(
  slug TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS businesses(
  id UUID PRIMARY KEY,
  name TEXT NOT NULL,
  city TEXT NOT NULL,
  category TEXT NOT NULL,
  plan_tier TEXT NOT NULL DEFAULT 'free',
  active BOOLEAN NOT NULL DEFAULT TRUE,
  speed_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  value_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  reliability_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  overall_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  city_rank INTEGER,
  category_rank INTEGER,
  last_ranking_update TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS import_batches(
  id UUID PRIMARY KEY,
  business_id UUID NOT NULL REFERENCES businesses(id),
  source TEXT NOT NULL,
  review_count INTEGER NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reviews(
  id UUID PRIMARY KEY,
  business_id UUID NOT NULL REFERENCES businesses(id),
  import_batch_id UUID REFERENCES import_batches(id),
  rating SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
  comment TEXT NOT NULL DEFAULT '',
  source TEXT NOT NULL,
  verified BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  analysis_status TEXT NOT NULL DEFAULT 'unanalyzed',
  analysis JSONB,
  display_priority INTEGER,
  keywords JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS performance_metrics(
  business_id UUID PRIMARY KEY REFERENCES businesses(id),
  confidence_level INTEGER NOT NULL,
  total_reviews_analyzed INTEGER NOT NULL,
  detailed JSONB NOT NULL,
  calculated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ranking_caches(
  id UUID PRIMARY KEY,
  city TEXT NOT NULL,
  category TEXT NOT NULL,
  ranking_type TEXT NOT NULL,
  rankings JSONB NOT NULL DEFAULT '[]',
  last_updated TIMESTAMPTZ NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  UNIQUE (city, category, ranking_type)
);

CREATE INDEX IF NOT EXISTS idx_reviews_business_status ON reviews(business_id, analysis_status);
CREATE INDEX IF NOT EXISTS idx_reviews_import_batch ON reviews(import_batch_id);
CREATE INDEX IF NOT EXISTS idx_businesses_city_category ON businesses(city, category);
CREATE INDEX IF NOT EXISTS idx_ranking_caches_expires ON ranking_caches(expires_at);
`
	_, err := db.Exec(initSQL)
	return err
}

// notFound maps sql.ErrNoRows to models.ErrNotFound.
func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, models.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", what, id, err)
}

func mustAffect(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, models.ErrNotFound)
	}
	return nil
}
