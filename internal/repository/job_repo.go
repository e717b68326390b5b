package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"schoolhub-backend/internal/models"
)

type ImportJobRepo struct {
	pool *pgxpool.Pool
}

func NewImportJobRepo(pool *pgxpool.Pool) *ImportJobRepo {
	return &ImportJobRepo{pool: pool}
}

func (r *ImportJobRepo) Create(ctx context.Context, j *models.ImportJob) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	j.Status = models.ImportStatusProcessing

	options := []byte(j.OptionsJSON)
	if len(options) == 0 {
		options = []byte("{}")
	}

	query := `INSERT INTO import_jobs (id, user_id, filename, options_json, status)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		j.ID, j.UserID, j.Filename, options, j.Status,
	).Scan(&j.CreatedAt)
}

func (r *ImportJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	j := &models.ImportJob{}
	query := `SELECT id, user_id, filename, options_json, status, result_json, created_at, completed_at
		FROM import_jobs WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&j.ID, &j.UserID, &j.Filename, &j.OptionsJSON, &j.Status,
		&j.ResultJSON, &j.CreatedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *ImportJobRepo) Finish(ctx context.Context, id uuid.UUID, status string, result *models.ImportResult) error {
	var resultJSON []byte
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode import result: %w", err)
		}
		resultJSON = b
	}

	_, err := r.pool.Exec(ctx,
		"UPDATE import_jobs SET status = $1, result_json = $2, completed_at = $3 WHERE id = $4",
		status, resultJSON, time.Now(), id,
	)
	return err
}
