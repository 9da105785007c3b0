package settings

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	query := `SELECT id, rerank_provider, rerank_api_key, gemini_api_key, retrieval_top_k, stage_timeout_ms FROM settings WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&s.ID, &s.RerankProvider, &s.RerankAPIKey, &s.GeminiAPIKey, &s.RetrievalTopK, &s.StageTimeoutMs)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `
		UPDATE settings 
		SET rerank_provider = $1, rerank_api_key = $2, gemini_api_key = $3, retrieval_top_k = $4, stage_timeout_ms = $5, updated_at = NOW()
		WHERE id = 1
	`
	_, err := r.db.ExecContext(ctx, query, s.RerankProvider, s.RerankAPIKey, s.GeminiAPIKey, s.RetrievalTopK, s.StageTimeoutMs)
	return err
}
