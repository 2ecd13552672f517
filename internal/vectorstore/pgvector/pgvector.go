package pgvector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"

	"moneymentor/internal/domain"
)

const DefaultTable = "moneymentor_knowledge"

// undefinedTable is the SQLSTATE postgres returns for a missing relation.
const undefinedTable = "42P01"

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Storage keeps entries in a postgres table with a pgvector embedding column.
type Storage struct {
	db         DB
	table      string
	tableIdent string

	mu        sync.RWMutex
	dimension int
}

// Open connects to postgres and returns a store for table.
func Open(ctx context.Context, dsn, table string) (*Storage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", domain.ErrConfiguration)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: pgvector: connect: %v", domain.ErrConnectivity, err)
	}
	return NewStorage(pool, table), nil
}

func NewStorage(db DB, table string) *Storage {
	if table == "" {
		table = DefaultTable
	}
	return &Storage{db: db, table: table, tableIdent: pgx.Identifier{table}.Sanitize()}
}

func (s *Storage) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("pgvector: invalid dimension")
	}
	if _, err := s.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("%w: pgvector: enable extension: %v", domain.ErrConnectivity, err)
	}
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGINT PRIMARY KEY,
		embedding vector(%d),
		text TEXT NOT NULL,
		source TEXT NOT NULL,
		chunk_id INTEGER NOT NULL
	)`, s.tableIdent, dimension)
	if _, err := s.db.Exec(ctx, create); err != nil {
		return fmt.Errorf("%w: pgvector: create table: %v", domain.ErrConnectivity, err)
	}
	existing, err := s.columnDimension(ctx)
	if err != nil {
		return err
	}
	if existing != 0 && existing != dimension {
		return fmt.Errorf("%w: table %q has %d dimensions, requested %d",
			domain.ErrDimensionMismatch, s.table, existing, dimension)
	}
	s.mu.Lock()
	s.dimension = dimension
	s.mu.Unlock()
	return nil
}

// Upsert writes the batch in one transaction.
func (s *Storage) Upsert(ctx context.Context, entries []domain.Entry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	s.mu.RLock()
	dim := s.dimension
	s.mu.RUnlock()
	if dim == 0 {
		return errors.New("pgvector: collection not initialised")
	}
	for _, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %d has %d dimensions, want %d",
				domain.ErrDimensionMismatch, e.ID, len(e.Vector), dim)
		}
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: pgvector: begin tx: %v", domain.ErrConnectivity, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("pgvector: rollback failed: %w; original error: %v", rbErr, err)
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("%w: pgvector: commit: %v", domain.ErrConnectivity, commitErr)
		}
	}()
	stmt := fmt.Sprintf(`INSERT INTO %s (id, embedding, text, source, chunk_id)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    embedding = excluded.embedding,
    text = excluded.text,
    source = excluded.source,
    chunk_id = excluded.chunk_id`, s.tableIdent)
	for _, e := range entries {
		_, err = tx.Exec(ctx, stmt, int64(e.ID), pgvec.NewVector(e.Vector), e.Chunk.Text, e.Chunk.SourceID, e.Chunk.SequenceIndex)
		if err != nil {
			return fmt.Errorf("%w: pgvector: upsert %d: %v", domain.ErrConnectivity, e.ID, err)
		}
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, limit int, threshold *float64) ([]domain.Candidate, error) {
	if limit <= 0 {
		limit = 5
	}
	s.mu.RLock()
	dim := s.dimension
	s.mu.RUnlock()
	if dim != 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", domain.ErrDimensionMismatch, len(vector), dim)
	}
	query := fmt.Sprintf("SELECT text, source, chunk_id, 1 - (embedding <=> $1) AS score FROM %s", s.tableIdent)
	args := []any{pgvec.NewVector(vector)}
	if threshold != nil {
		query += " WHERE 1 - (embedding <=> $1) >= $2 ORDER BY embedding <=> $1 ASC LIMIT $3"
		args = append(args, *threshold, limit)
	} else {
		query += " ORDER BY embedding <=> $1 ASC LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: pgvector: search: %v", domain.ErrConnectivity, err)
	}
	defer rows.Close()
	var out []domain.Candidate
	for rows.Next() {
		var (
			c     domain.Chunk
			score float64
		)
		if err := rows.Scan(&c.Text, &c.SourceID, &c.SequenceIndex, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		if threshold != nil && score < *threshold {
			continue
		}
		c.ByteLength = len(c.Text)
		out = append(out, domain.Candidate{Chunk: c, Score: score, Origin: domain.OriginVector})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: search rows: %w", err)
	}
	domain.SortCandidates(out)
	return out, nil
}

func (s *Storage) Scroll(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf("SELECT text, source, chunk_id FROM %s ORDER BY id ASC", s.tableIdent))
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: pgvector: scroll: %v", domain.ErrConnectivity, err)
	}
	defer rows.Close()
	var out []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.Text, &c.SourceID, &c.SequenceIndex); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		c.ByteLength = len(c.Text)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: scroll rows: %w", err)
	}
	return out, nil
}

func (s *Storage) Info(ctx context.Context) (domain.CollectionInfo, error) {
	info := domain.CollectionInfo{Name: s.table, Distance: "Cosine", Status: "missing"}
	var count int64
	err := s.db.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.tableIdent)).Scan(&count)
	if err != nil {
		if isUndefinedTable(err) {
			return info, nil
		}
		return domain.CollectionInfo{}, fmt.Errorf("%w: pgvector: count: %v", domain.ErrConnectivity, err)
	}
	dim, err := s.columnDimension(ctx)
	if err != nil {
		return domain.CollectionInfo{}, err
	}
	info.PointsCount = int(count)
	info.VectorSize = dim
	info.Status = "green"
	return info, nil
}

func (s *Storage) DeleteCollection(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", s.tableIdent)); err != nil {
		return fmt.Errorf("%w: pgvector: drop table: %v", domain.ErrConnectivity, err)
	}
	s.mu.Lock()
	s.dimension = 0
	s.mu.Unlock()
	return nil
}

func (s *Storage) Close() error {
	s.db.Close()
	return nil
}

// columnDimension reads the declared size of the embedding column. The
// vector type stores its dimension as the attribute type modifier.
func (s *Storage) columnDimension(ctx context.Context) (int, error) {
	var typmod int32
	err := s.db.QueryRow(ctx,
		"SELECT atttypmod FROM pg_attribute WHERE attrelid = to_regclass($1) AND attname = 'embedding'",
		s.table,
	).Scan(&typmod)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: pgvector: read dimension: %v", domain.ErrConnectivity, err)
	}
	if typmod < 0 {
		return 0, nil
	}
	return int(typmod), nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}
