package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jeswintom22/ClassSight/internal/domain"
	"github.com/jeswintom22/ClassSight/internal/repository"
)

// Bảng analysis_log có UNIQUE(fingerprint): mỗi nội dung frame chỉ giữ một
// bản ghi lịch sử; resubmit cùng frame sau khi cache hết hạn không nhân đôi.
type pgAnalysisLogRepository struct {
	db *sql.DB
}

func NewPgAnalysisLogRepository(db *sql.DB) repository.AnalysisLogRepository {
	return &pgAnalysisLogRepository{db: db}
}

func (r *pgAnalysisLogRepository) Create(ctx context.Context, record *domain.AnalysisRecord) error {
	query := `INSERT INTO analysis_log
	            (fingerprint, combined_text, confidence, explanation, ai_model, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		record.Fingerprint,
		record.CombinedText,
		record.Confidence,
		record.Explanation,
		record.AIModel,
		record.CreatedAt,
	).Scan(&record.ID)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code.Name() == "unique_violation" {
				return fmt.Errorf("%w: đã có bản ghi cho fingerprint '%s'", repository.ErrDuplicateEntry, record.Fingerprint)
			}
		}
		return fmt.Errorf("AnalysisLogRepository.Create: %w", err)
	}
	return nil
}

func (r *pgAnalysisLogRepository) FindRecent(ctx context.Context, limit int) ([]domain.AnalysisRecord, error) {
	query := `SELECT id, fingerprint, combined_text, confidence, explanation, ai_model, created_at
	           FROM analysis_log ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("AnalysisLogRepository.FindRecent: %w", err)
	}
	defer rows.Close()

	var records []domain.AnalysisRecord
	for rows.Next() {
		var rec domain.AnalysisRecord
		err := rows.Scan(&rec.ID, &rec.Fingerprint, &rec.CombinedText, &rec.Confidence,
			&rec.Explanation, &rec.AIModel, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("AnalysisLogRepository.FindRecent scan: %w", err)
		}
		rec.CreatedAt = rec.CreatedAt.In(time.UTC)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("AnalysisLogRepository.FindRecent rows: %w", err)
	}
	return records, nil
}

func (r *pgAnalysisLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM analysis_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("AnalysisLogRepository.DeleteOlderThan: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("AnalysisLogRepository.DeleteOlderThan: %w", err)
	}
	return count, nil
}
