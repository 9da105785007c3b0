package embedcache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) GetMany(ctx context.Context, model string, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	query := `SELECT content_hash, embedding FROM embedding_cache WHERE model = $1 AND content_hash = ANY($2)`
	rows, err := r.db.QueryContext(ctx, query, model, pq.Array(hashes))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		var vec []float32
		if err := rows.Scan(&hash, pq.Array(&vec)); err != nil {
			return nil, err
		}
		out[hash] = vec
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SaveMany(ctx context.Context, model string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO embedding_cache (model, content_hash, embedding, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (model, content_hash) DO NOTHING
	`
	for hash, vec := range vectors {
		if _, err := tx.ExecContext(ctx, query, model, hash, pq.Array(vec)); err != nil {
			return fmt.Errorf("save embedding %s: %w", hash, err)
		}
	}
	return tx.Commit()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM embedding_cache`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}
