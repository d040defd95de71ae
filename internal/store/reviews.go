package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/nitesh/bizrank/internal/db"
	"github.com/nitesh/bizrank/pkg/models"
)

const reviewColumns = `id,business_id,import_batch_id,rating,comment,source,verified,created_at,analysis_status,analysis,display_priority,keywords`

// SaveReviews inserts or replaces reviews in one transaction.
func (p *PgStore) SaveReviews(ctx context.Context, reviews []*models.Review) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	stmt := `
INSERT INTO reviews (` + reviewColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb,$11,$12::jsonb)
ON CONFLICT (id) DO UPDATE SET
 rating=EXCLUDED.rating,
 comment=EXCLUDED.comment,
 source=EXCLUDED.source,
 verified=EXCLUDED.verified,
 analysis_status=EXCLUDED.analysis_status,
 analysis=EXCLUDED.analysis,
 display_priority=EXCLUDED.display_priority,
 keywords=EXCLUDED.keywords;
`
	for _, r := range reviews {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		if r.AnalysisStatus == "" {
			r.AnalysisStatus = models.StatusUnanalyzed
		}
		if r.Keywords == nil {
			r.Keywords = dbtypes.StringSlice{}
		}
		_, err := tx.ExecContext(ctx, stmt,
			r.ID,
			r.BusinessID,
			r.ImportBatchID,
			r.Rating,
			r.Comment,
			r.Source,
			r.Verified,
			r.CreatedAt,
			r.AnalysisStatus,
			r.Analysis,
			r.DisplayPriority,
			r.Keywords,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert review id=%s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// CreateImportBatch records an import batch and its reviews together.
func (p *PgStore) CreateImportBatch(ctx context.Context, b *models.ImportBatch, reviews []*models.Review) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.ReviewCount = len(reviews)
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO import_batches (id, business_id, source, review_count, created_at) VALUES ($1,$2,$3,$4,$5)`,
		b.ID, b.BusinessID, b.Source, b.ReviewCount, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert import batch: %w", err)
	}
	for _, r := range reviews {
		r.BusinessID = b.BusinessID
		r.ImportBatchID = &b.ID
		r.Source = models.SourceImport
	}
	return p.SaveReviews(ctx, reviews)
}

func (p *PgStore) ListUnanalyzedReviews(ctx context.Context, businessID string, limit int) ([]*models.Review, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows := []*models.Review{}
	query := `
SELECT ` + reviewColumns + `
FROM reviews
WHERE business_id = $1 AND analysis_status = 'unanalyzed'
ORDER BY created_at ASC
LIMIT $2
`
	err := p.db.SelectContext(ctx, &rows, query, businessID, limit)
	return rows, err
}

func (p *PgStore) ListUnanalyzedByImportBatch(ctx context.Context, batchID string) ([]*models.Review, error) {
	rows := []*models.Review{}
	query := `
SELECT ` + reviewColumns + `
FROM reviews
WHERE import_batch_id = $1 AND analysis_status = 'unanalyzed'
ORDER BY created_at ASC
`
	err := p.db.SelectContext(ctx, &rows, query, batchID)
	return rows, err
}

func (p *PgStore) ListAnalyzedReviews(ctx context.Context, businessID string) ([]*models.Review, error) {
	rows := []*models.Review{}
	query := `
SELECT ` + reviewColumns + `
FROM reviews
WHERE business_id = $1 AND analysis_status = 'analyzed' AND analysis IS NOT NULL
ORDER BY created_at ASC, id ASC
`
	err := p.db.SelectContext(ctx, &rows, query, businessID)
	return rows, err
}

// ListDisplayReviews returns reviews by display priority; limit 0 means all.
func (p *PgStore) ListDisplayReviews(ctx context.Context, businessID string, limit int) ([]*models.Review, error) {
	rows := []*models.Review{}
	query := `
SELECT ` + reviewColumns + `
FROM reviews
WHERE business_id = $1
ORDER BY COALESCE(display_priority, 0) DESC, created_at DESC
`
	args := []any{businessID}
	if limit > 0 {
		query += "LIMIT $2"
		args = append(args, limit)
	}
	err := p.db.SelectContext(ctx, &rows, query, args...)
	return rows, err
}

func (p *PgStore) SaveReviewAnalysis(ctx context.Context, r *models.Review) error {
	if r.Keywords == nil {
		r.Keywords = dbtypes.StringSlice{}
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE reviews SET analysis_status = $1, analysis = $2::jsonb, display_priority = $3, keywords = $4::jsonb WHERE id = $5`,
		r.AnalysisStatus, r.Analysis, r.DisplayPriority, r.Keywords, r.ID)
	if err != nil {
		return fmt.Errorf("update review analysis: %w", err)
	}
	return mustAffect(res, "review", r.ID)
}

func (p *PgStore) ResetFailedAnalyses(ctx context.Context, businessID string) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
UPDATE reviews
SET analysis_status = 'unanalyzed', display_priority = NULL, keywords = '[]'::jsonb
WHERE business_id = $1 AND analysis_status = 'failed'
`, businessID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
