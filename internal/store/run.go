package store

import (
	"context"
	"errors"
	"time"

	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const runColumns = `id, algorithm, regions, converged, log_partition, evidence_log_prob,
		messages, updates, iterations, duration_ns, evidence, beliefs, map, created_at`

type RunStore struct {
	db *pgxpool.Pool
}

func NewRunStore(db *pgxpool.Pool) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) Create(ctx context.Context, r *domain.Run) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	evidence := r.Evidence
	if evidence == nil {
		evidence = domain.Evidence{}
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO runs (id, algorithm, regions, converged, log_partition, evidence_log_prob,
		     messages, updates, iterations, duration_ns, evidence, beliefs, map)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at`,
		r.ID, string(r.Algorithm), string(r.Regions), r.Converged, r.LogPartition, r.EvidenceLogProb,
		r.Messages, r.Updates, r.Iterations, int64(r.Duration), evidence, r.Beliefs, r.MAP,
	).Scan(&r.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *RunStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	r, err := scanRun(s.db.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

// List returns the newest runs first.
func (s *RunStore) List(ctx context.Context, limit int) ([]domain.Run, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func (s *RunStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM runs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRun(row pgx.Row) (*domain.Run, error) {
	var (
		r                  domain.Run
		algorithm, regions string
		durationNS         int64
	)
	err := row.Scan(&r.ID, &algorithm, &regions, &r.Converged, &r.LogPartition, &r.EvidenceLogProb,
		&r.Messages, &r.Updates, &r.Iterations, &durationNS, &r.Evidence, &r.Beliefs, &r.MAP, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Algorithm = domain.Algorithm(algorithm)
	r.Regions = domain.RegionKind(regions)
	r.Duration = time.Duration(durationNS)
	return &r, nil
}
