package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "companies",
		Columns:      []string{"normalized_name", "company_name"},
		ConflictKeys: []string{"normalized_name"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "companies",
		ConflictKeys: []string{"normalized_name"},
	}, [][]any{{"acme", "Acme"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "companies",
		Columns: []string{"normalized_name", "company_name"},
	}, [][]any{{"acme", "Acme"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"normalized_name", "company_name"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_companies"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_companies"}, cols).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("normalized_name"\) DO UPDATE SET "company_name" = EXCLUDED."company_name"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "companies",
		Columns:      cols,
		ConflictKeys: []string{"normalized_name"},
	}, [][]any{{"acme", "Acme"}, {"orbit", "Orbit"}})

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"normalized_name", "company_name"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_companies"}, cols).WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "companies",
		Columns:      cols,
		ConflictKeys: []string{"normalized_name"},
	}, [][]any{{"acme", "Acme"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"companies", `"companies"`},
		{"public.companies", `"public"."companies"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"normalized_name", "company_name", "website"})
	assert.Equal(t, `"normalized_name", "company_name", "website"`, result)
}

func TestMergeSQL_KeyOnlyColumnsDoNothing(t *testing.T) {
	cfg := UpsertConfig{
		Table:        "public.hunt_companies",
		Columns:      []string{"hunt_id", "normalized_name"},
		ConflictKeys: []string{"hunt_id", "normalized_name"},
	}
	assert.Equal(t,
		`INSERT INTO "public"."hunt_companies" ("hunt_id", "normalized_name") SELECT "hunt_id", "normalized_name" FROM "_tmp_upsert_public_hunt_companies" ON CONFLICT ("hunt_id", "normalized_name") DO NOTHING`,
		cfg.mergeSQL())
}

func TestUpdateColumns_Explicit(t *testing.T) {
	cfg := UpsertConfig{
		Columns:      []string{"normalized_name", "company_name", "best_score"},
		ConflictKeys: []string{"normalized_name"},
		UpdateCols:   []string{"best_score"},
	}
	assert.Equal(t, []string{"best_score"}, cfg.updateColumns())
	cfg.UpdateCols = nil
	assert.Equal(t, []string{"company_name", "best_score"}, cfg.updateColumns())
}
