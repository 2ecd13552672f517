package pgvector

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneymentor/internal/domain"
)

const dimensionQuery = "SELECT atttypmod FROM pg_attribute"

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Storage) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return mockPool, NewStorage(mockPool, "kb")
}

func expectEnsure(mockPool pgxmock.PgxPoolIface, existing int32) {
	mockPool.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mockPool.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "kb"`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mockPool.ExpectQuery(dimensionQuery).
		WithArgs("kb").
		WillReturnRows(mockPool.NewRows([]string{"atttypmod"}).AddRow(existing))
}

func TestStorage_EnsureCollection(t *testing.T) {
	ctx := context.Background()

	t.Run("Should create the table with the requested dimension", func(t *testing.T) {
		mockPool, s := newMock(t)
		expectEnsure(mockPool, 3)

		require.NoError(t, s.EnsureCollection(ctx, 3))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should reject an existing table with another dimension", func(t *testing.T) {
		mockPool, s := newMock(t)
		expectEnsure(mockPool, 1536)

		err := s.EnsureCollection(ctx, 3)

		assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should classify driver failures as connectivity errors", func(t *testing.T) {
		mockPool, s := newMock(t)
		mockPool.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector")).
			WillReturnError(errors.New("connection refused"))

		err := s.EnsureCollection(ctx, 3)

		assert.True(t, errors.Is(err, domain.ErrConnectivity))
	})
}

func TestStorage_Upsert(t *testing.T) {
	ctx := context.Background()
	entry := domain.Entry{
		ID:     7,
		Vector: []float32{1, 0, 0},
		Chunk:  domain.Chunk{SourceID: "guide.txt", SequenceIndex: 2, Text: "index funds"},
	}

	t.Run("Should write the batch in one transaction", func(t *testing.T) {
		mockPool, s := newMock(t)
		expectEnsure(mockPool, 3)
		require.NoError(t, s.EnsureCollection(ctx, 3))
		mockPool.ExpectBegin()
		mockPool.ExpectExec(regexp.QuoteMeta(`INSERT INTO "kb"`)).
			WithArgs(int64(7), pgxmock.AnyArg(), "index funds", "guide.txt", 2).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()

		require.NoError(t, s.Upsert(ctx, []domain.Entry{entry}))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should roll back when a row fails", func(t *testing.T) {
		mockPool, s := newMock(t)
		expectEnsure(mockPool, 3)
		require.NoError(t, s.EnsureCollection(ctx, 3))
		mockPool.ExpectBegin()
		mockPool.ExpectExec(regexp.QuoteMeta(`INSERT INTO "kb"`)).
			WillReturnError(errors.New("disk full"))
		mockPool.ExpectRollback()

		err := s.Upsert(ctx, []domain.Entry{entry})

		assert.True(t, errors.Is(err, domain.ErrConnectivity))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should reject mismatched vectors before touching the database", func(t *testing.T) {
		mockPool, s := newMock(t)
		expectEnsure(mockPool, 3)
		require.NoError(t, s.EnsureCollection(ctx, 3))
		bad := entry
		bad.Vector = []float32{1, 0}

		err := s.Upsert(ctx, []domain.Entry{entry, bad})

		assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should refuse to write before the table is ensured", func(t *testing.T) {
		_, s := newMock(t)
		assert.Error(t, s.Upsert(ctx, []domain.Entry{entry}))
	})
}

func TestStorage_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("Should order hits and apply the threshold", func(t *testing.T) {
		mockPool, s := newMock(t)
		threshold := 0.5
		rows := mockPool.NewRows([]string{"text", "source", "chunk_id", "score"}).
			AddRow("b", "guide.txt", 1, 0.7).
			AddRow("a", "guide.txt", 0, 0.9).
			AddRow("c", "guide.txt", 2, 0.4)
		mockPool.ExpectQuery(regexp.QuoteMeta(`1 - (embedding <=> $1) AS score FROM "kb" WHERE`)).
			WithArgs(pgxmock.AnyArg(), 0.5, 5).
			WillReturnRows(rows)

		res, err := s.Search(ctx, []float32{1, 0, 0}, 5, &threshold)

		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "a", res[0].Chunk.Text)
		assert.Equal(t, 1, res[0].Rank)
		assert.Equal(t, domain.OriginVector, res[1].Origin)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should return nothing when the table does not exist", func(t *testing.T) {
		mockPool, s := newMock(t)
		mockPool.ExpectQuery("SELECT text, source, chunk_id").
			WillReturnError(&pgconn.PgError{Code: "42P01"})

		res, err := s.Search(ctx, []float32{1, 0, 0}, 5, nil)

		require.NoError(t, err)
		assert.Empty(t, res)
	})
}

func TestStorage_ScrollAndInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("Should scroll chunks in id order", func(t *testing.T) {
		mockPool, s := newMock(t)
		mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT text, source, chunk_id FROM "kb" ORDER BY id ASC`)).
			WillReturnRows(mockPool.NewRows([]string{"text", "source", "chunk_id"}).
				AddRow("a", "guide.txt", 0).
				AddRow("b", "guide.txt", 1))

		chunks, err := s.Scroll(ctx)

		require.NoError(t, err)
		assert.Equal(t, []domain.Chunk{
			{SourceID: "guide.txt", SequenceIndex: 0, Text: "a", ByteLength: 1},
			{SourceID: "guide.txt", SequenceIndex: 1, Text: "b", ByteLength: 1},
		}, chunks)
	})

	t.Run("Should report count and dimension", func(t *testing.T) {
		mockPool, s := newMock(t)
		mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "kb"`)).
			WillReturnRows(mockPool.NewRows([]string{"count"}).AddRow(int64(4)))
		mockPool.ExpectQuery(dimensionQuery).
			WithArgs("kb").
			WillReturnRows(mockPool.NewRows([]string{"atttypmod"}).AddRow(int32(3)))

		info, err := s.Info(ctx)

		require.NoError(t, err)
		assert.Equal(t, domain.CollectionInfo{Name: "kb", VectorSize: 3, Distance: "Cosine", PointsCount: 4, Status: "green"}, info)
	})

	t.Run("Should report a missing table", func(t *testing.T) {
		mockPool, s := newMock(t)
		mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "kb"`)).
			WillReturnError(&pgconn.PgError{Code: "42P01"})

		info, err := s.Info(ctx)

		require.NoError(t, err)
		assert.Equal(t, "missing", info.Status)
	})

	t.Run("Should treat a missing column as unknown dimension", func(t *testing.T) {
		mockPool, s := newMock(t)
		mockPool.ExpectQuery(dimensionQuery).WithArgs("kb").WillReturnError(pgx.ErrNoRows)

		dim, err := s.columnDimension(ctx)

		require.NoError(t, err)
		assert.Zero(t, dim)
	})
}

func TestStorage_DeleteCollection(t *testing.T) {
	t.Run("Should drop the table", func(t *testing.T) {
		mockPool, s := newMock(t)
		mockPool.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "kb"`)).
			WillReturnResult(pgxmock.NewResult("DROP", 0))

		require.NoError(t, s.DeleteCollection(context.Background()))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
