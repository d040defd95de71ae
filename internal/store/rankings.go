package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nitesh/bizrank/pkg/models"
)

const rankingColumns = `id,city,category,ranking_type,rankings,last_updated,expires_at`

func (p *PgStore) GetRankingCache(ctx context.Context, city, category string, t models.RankingType) (*models.RankingCache, error) {
	var rc models.RankingCache
	err := p.db.GetContext(ctx, &rc, `
SELECT `+rankingColumns+`
FROM ranking_caches
WHERE city = $1 AND category = $2 AND ranking_type = $3
`, city, category, t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (p *PgStore) GetRankingCacheByID(ctx context.Context, id string) (*models.RankingCache, error) {
	var rc models.RankingCache
	err := p.db.GetContext(ctx, &rc, `SELECT `+rankingColumns+` FROM ranking_caches WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "ranking cache", id)
	}
	return &rc, nil
}

// UpsertRankingCache writes one row per (city, category, ranking type). The
// stored id wins on conflict and is copied back into rc.
func (p *PgStore) UpsertRankingCache(ctx context.Context, rc *models.RankingCache) error {
	if rc.ID == "" {
		rc.ID = uuid.New().String()
	}
	if rc.Rankings == nil {
		rc.Rankings = models.RankedBusinesses{}
	}
	var id string
	err := p.db.QueryRowxContext(ctx, `
INSERT INTO ranking_caches (`+rankingColumns+`)
VALUES ($1,$2,$3,$4,$5::jsonb,$6,$7)
ON CONFLICT (city, category, ranking_type) DO UPDATE SET
 rankings=EXCLUDED.rankings,
 last_updated=EXCLUDED.last_updated,
 expires_at=EXCLUDED.expires_at
RETURNING id
`, rc.ID, rc.City, rc.Category, rc.RankingType, rc.Rankings, rc.LastUpdated, rc.ExpiresAt).Scan(&id)
	if err != nil {
		return fmt.Errorf("upsert ranking cache %s/%s/%s: %w", rc.City, rc.Category, rc.RankingType, err)
	}
	rc.ID = id
	return nil
}

func (p *PgStore) ListRankingCaches(ctx context.Context) ([]*models.RankingCache, error) {
	rows := []*models.RankingCache{}
	err := p.db.SelectContext(ctx, &rows, `
SELECT `+rankingColumns+`
FROM ranking_caches
ORDER BY city, category, ranking_type
`)
	return rows, err
}

func (p *PgStore) DeleteExpiredRankingCaches(ctx context.Context, now time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM ranking_caches WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
