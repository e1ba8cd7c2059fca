package stepstore

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranda-hq/applyflow/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_GetStep_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT output FROM step_outputs`).
		WithArgs("sess", 3).
		WillReturnError(pgx.ErrNoRows)

	out, err := s.GetStep(context.Background(), "sess", 3)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetStep_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT output FROM step_outputs`).
		WithArgs("sess", 1).
		WillReturnRows(pgxmock.NewRows([]string{"output"}).
			AddRow([]byte(`{"step":1,"kind":"skip"}`)))

	out, err := s.GetStep(context.Background(), "sess", 1)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, model.StepKindSkip, out.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetStep_Upserts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO step_outputs`).
		WithArgs("sess", 2, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetStep(context.Background(), "sess", model.StepOutput{Step: 2, Kind: model.StepKindFile, FileKey: "k"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LastStep_DefaultsToZero(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT last_step FROM wizard_state`).
		WithArgs("sess").
		WillReturnError(pgx.ErrNoRows)

	step, err := s.LastStep(context.Background(), "sess")
	require.NoError(t, err)
	assert.Equal(t, 0, step)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClearSteps(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM step_outputs`).
		WithArgs("sess").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, s.ClearSteps(context.Background(), "sess"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
