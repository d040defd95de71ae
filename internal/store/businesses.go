package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nitesh/bizrank/pkg/models"
)

const businessColumns = `id,name,city,category,plan_tier,active,speed_score,value_score,quality_score,reliability_score,overall_score,city_rank,category_rank,last_ranking_update`

func (p *PgStore) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	var b models.Business
	err := p.db.GetContext(ctx, &b, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "business", id)
	}
	return &b, nil
}

// ListBusinesses returns the active businesses of one city and category.
func (p *PgStore) ListBusinesses(ctx context.Context, city, category string) ([]*models.Business, error) {
	rows := []*models.Business{}
	query := `
SELECT ` + businessColumns + `
FROM businesses
WHERE city = $1 AND category = $2 AND active
ORDER BY name ASC
`
	err := p.db.SelectContext(ctx, &rows, query, city, category)
	return rows, err
}

// ListBusinessIDs returns the ids of every active business.
func (p *PgStore) ListBusinessIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := p.db.SelectContext(ctx, &ids, `SELECT id FROM businesses WHERE active ORDER BY id`)
	return ids, err
}

// ListScoredBusinesses returns active businesses with a non-zero overall
// score, each carrying its analyzed review count.
func (p *PgStore) ListScoredBusinesses(ctx context.Context) ([]*models.Business, error) {
	rows := []*models.Business{}
	query := `
SELECT b.id,b.name,b.city,b.category,b.plan_tier,b.active,b.speed_score,b.value_score,b.quality_score,
       b.reliability_score,b.overall_score,b.city_rank,b.category_rank,b.last_ranking_update,
       COUNT(r.id) AS review_count
FROM businesses b
LEFT JOIN reviews r ON r.business_id = b.id AND r.analysis_status = 'analyzed'
WHERE b.active AND b.overall_score > 0
GROUP BY b.id
ORDER BY b.overall_score DESC, b.name ASC
`
	err := p.db.SelectContext(ctx, &rows, query)
	return rows, err
}

func (p *PgStore) UpdateBusinessScores(ctx context.Context, b *models.Business) error {
	res, err := p.db.ExecContext(ctx, `
UPDATE businesses SET
 speed_score = $1,
 value_score = $2,
 quality_score = $3,
 reliability_score = $4,
 overall_score = $5,
 last_ranking_update = $6
WHERE id = $7
`, b.SpeedScore, b.ValueScore, b.QualityScore, b.ReliabilityScore, b.OverallScore, b.LastRankingUpdate, b.ID)
	if err != nil {
		return fmt.Errorf("update scores: %w", err)
	}
	return mustAffect(res, "business", b.ID)
}

// UpdateBusinessRanks writes category ranks for one category, then recomputes
// city ranks across every scored business of the city.
func (p *PgStore) UpdateBusinessRanks(ctx context.Context, city string, categoryRanks map[string]int) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	for id, rank := range categoryRanks {
		if _, err := tx.ExecContext(ctx, `UPDATE businesses SET category_rank = $1 WHERE id = $2`, rank, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("update category rank id=%s: %w", id, err)
		}
	}
	_, err = tx.ExecContext(ctx, `
UPDATE businesses b SET city_rank = ranked.pos
FROM (
  SELECT id, ROW_NUMBER() OVER (ORDER BY overall_score DESC, name ASC, id ASC) AS pos
  FROM businesses
  WHERE city = $1 AND active AND overall_score > 0
) ranked
WHERE b.id = ranked.id
`, city)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("update city ranks: %w", err)
	}
	return tx.Commit()
}

func (p *PgStore) CountBusinesses(ctx context.Context) (total, scored int, err error) {
	var row struct {
		Total  int `db:"total"`
		Scored int `db:"scored"`
	}
	err = p.db.GetContext(ctx, &row, `
SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE overall_score > 0) AS scored
FROM businesses WHERE active
`)
	return row.Total, row.Scored, err
}

func (p *PgStore) AverageScoreByCity(ctx context.Context) (map[string]float64, error) {
	var rows []struct {
		City    string  `db:"city"`
		Average float64 `db:"average"`
	}
	err := p.db.SelectContext(ctx, &rows, `
SELECT city, AVG(overall_score) AS average
FROM businesses
WHERE active AND overall_score > 0
GROUP BY city
`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.City] = r.Average
	}
	return out, nil
}

func (p *PgStore) ListActiveCities(ctx context.Context) ([]models.City, error) {
	rows := []models.City{}
	err := p.db.SelectContext(ctx, &rows, `SELECT slug, name, active FROM cities WHERE active ORDER BY slug`)
	return rows, err
}

func (p *PgStore) ListActiveCategories(ctx context.Context) ([]models.Category, error) {
	rows := []models.Category{}
	err := p.db.SelectContext(ctx, &rows, `SELECT slug, name, active FROM categories WHERE active ORDER BY slug`)
	return rows, err
}

func (p *PgStore) GetPerformanceMetrics(ctx context.Context, businessID string) (*models.PerformanceMetrics, error) {
	var m models.PerformanceMetrics
	err := p.db.GetContext(ctx, &m, `
SELECT business_id, confidence_level, total_reviews_analyzed, detailed, calculated_at
FROM performance_metrics WHERE business_id = $1
`, businessID)
	if err != nil {
		return nil, notFound(err, "performance metrics", businessID)
	}
	return &m, nil
}

func (p *PgStore) UpsertPerformanceMetrics(ctx context.Context, m *models.PerformanceMetrics) error {
	if m.CalculatedAt.IsZero() {
		m.CalculatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
INSERT INTO performance_metrics (business_id, confidence_level, total_reviews_analyzed, detailed, calculated_at)
VALUES ($1,$2,$3,$4::jsonb,$5)
ON CONFLICT (business_id) DO UPDATE SET
 confidence_level=EXCLUDED.confidence_level,
 total_reviews_analyzed=EXCLUDED.total_reviews_analyzed,
 detailed=EXCLUDED.detailed,
 calculated_at=EXCLUDED.calculated_at;
`, m.BusinessID, m.ConfidenceLevel, m.TotalReviewsAnalyzed, m.Detailed, m.CalculatedAt)
	if err != nil {
		return fmt.Errorf("upsert performance metrics: %w", err)
	}
	return nil
}
