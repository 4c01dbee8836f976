package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNoSamples indicates no sample exists for the requested source.
	ErrNoSamples = errors.New("storage: no samples")
)

const (
	insertSampleSQL = `INSERT INTO samples (
        id,
        source,
        created_at,
        payload
    ) VALUES (
        $1,$2,$3,$4
    )
    RETURNING id, source, created_at, payload;`

	listSamplesSinceSQL = `SELECT
        id,
        source,
        created_at,
        payload
    FROM samples
    WHERE source = $1
      AND created_at > $2
    ORDER BY created_at ASC;`

	listRecentSamplesSQL = `SELECT
        id,
        source,
        created_at,
        payload
    FROM samples
    WHERE source = $1
    ORDER BY created_at DESC
    LIMIT $2;`

	countSamplesSQL = `SELECT COUNT(*) FROM samples WHERE source = $1;`
)

// SampleStore defines the append-only persistence boundary for raw samples.
type SampleStore interface {
	SaveSample(ctx context.Context, source Source, payload json.RawMessage) (Sample, error)
	ListSamplesSince(ctx context.Context, source Source, since time.Time) ([]Sample, error)
	ListRecentSamples(ctx context.Context, source Source, limit int) ([]Sample, error)
	CountSamples(ctx context.Context, source Source) (int64, error)
}

// Store is the PostgreSQL-backed sample repository.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// SaveSample appends one sample. The creation timestamp is assigned here,
// server-side, so it is monotonically non-decreasing per source.
func (s *Store) SaveSample(ctx context.Context, source Source, payload json.RawMessage) (Sample, error) {
	pool, err := s.getPool()
	if err != nil {
		return Sample{}, err
	}

	row := pool.QueryRow(ctx, insertSampleSQL,
		uuid.New(),
		string(source),
		time.Now().UTC(),
		[]byte(payload),
	)

	sample, scanErr := scanSampleRow(row)
	if scanErr != nil {
		return Sample{}, fmt.Errorf("insert sample: %w", scanErr)
	}
	return sample, nil
}

// ListSamplesSince returns samples for a source newer than the given
// timestamp, ascending by creation time.
func (s *Store) ListSamplesSince(ctx context.Context, source Source, since time.Time) ([]Sample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesSinceSQL, string(source), since)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples since: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows)
}

// ListRecentSamples returns the most recent samples for a source, descending.
func (s *Store) ListRecentSamples(ctx context.Context, source Source, limit int) ([]Sample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, string(source), limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows)
}

// CountSamples counts stored samples for a source.
func (s *Store) CountSamples(ctx context.Context, source Source) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL, string(source)).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

func collectSamples(rows pgx.Rows) ([]Sample, error) {
	samples := make([]Sample, 0)
	for rows.Next() {
		sample, err := scanSampleRow(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSampleRow(row rowScanner) (Sample, error) {
	var (
		id        uuid.UUID
		source    string
		createdAt time.Time
		payload   []byte
	)
	if err := row.Scan(&id, &source, &createdAt, &payload); err != nil {
		return Sample{}, err
	}
	return Sample{
		ID:        id,
		Source:    Source(source),
		CreatedAt: createdAt,
		Payload:   json.RawMessage(payload),
	}, nil
}

var _ SampleStore = (*Store)(nil)
