package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datagenie/internal/model"
	"github.com/sells-group/datagenie/internal/store"
)

func usable(stmt string) model.SQLArtifact {
	return model.SQLArtifact{Statement: stmt, IsUsable: true, Attempts: 1}
}

func newTestExecutor(t *testing.T) (*Executor, *mockEngine, *mockOracle, store.Store) {
	t.Helper()
	eng := new(mockEngine)
	o := new(mockOracle)
	st := newTestStore(t)
	return NewExecutor(eng, o, st, "catalog", 5), eng, o, st
}

func TestExecute_SentinelNeverReachesEngine(t *testing.T) {
	ex, eng, o, st := newTestExecutor(t)
	ctx := context.Background()

	res, err := ex.Execute(ctx, "run-1", "Revenue per planet?", model.ExhaustedArtifact(3))
	require.NoError(t, err)

	assert.Equal(t, model.ExecutionEngineError, res.Outcome.Status)
	assert.Equal(t, ErrSynthesisExhausted.Error(), res.Outcome.ErrorDetail)
	assert.Nil(t, res.Repair)
	eng.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	o.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)

	recs, err := st.ListResults(ctx, store.ResultFilter{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.FailedPreview, recs[0].DataPreview)
	assert.Equal(t, model.SentinelStatement, recs[0].SQLStatement)
}

func TestExecute_SuccessFirstTry(t *testing.T) {
	ex, eng, o, st := newTestExecutor(t)
	ctx := context.Background()

	eng.On("Execute", mock.Anything, "SELECT COUNT(*) AS customers FROM dim_customers").
		Return(table([]string{"customers"}, []any{int64(18148)}), nil)

	res, err := ex.Execute(ctx, "run-1", "How many customers?", usable("SELECT COUNT(*) AS customers FROM dim_customers"))
	require.NoError(t, err)

	assert.Equal(t, model.ExecutionSuccess, res.Outcome.Status)
	assert.Equal(t, 1, res.Outcome.RowCount)
	assert.Nil(t, res.Repair)
	eng.AssertNumberOfCalls(t, "Execute", 1)
	o.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)

	recs, err := st.ListResults(ctx, store.ResultFilter{Question: "How many customers?"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.JSONEq(t, `[{"customers":18148}]`, recs[0].DataPreview)
	assert.False(t, recs[0].Repaired)
}

func TestExecute_RepairCap(t *testing.T) {
	ex, eng, o, st := newTestExecutor(t)
	ctx := context.Background()

	eng.On("Execute", mock.Anything, mock.Anything).
		Return(nil, &pgconn.PgError{Message: `column "revenue" does not exist`})
	o.expect("repair", `column "revenue" does not exist`, `{"sql": "SELECT SUM(order_quantity) AS revenue FROM fact_sales"}`)

	res, err := ex.Execute(ctx, "run-1", "Total revenue?", usable("SELECT SUM(revenue) FROM fact_sales"))
	require.NoError(t, err)

	eng.AssertNumberOfCalls(t, "Execute", 2)
	o.AssertNumberOfCalls(t, "Complete", 1)
	assert.Equal(t, model.ExecutionEngineError, res.Outcome.Status)
	assert.Equal(t, "SELECT SUM(order_quantity) AS revenue FROM fact_sales", res.Outcome.Statement)
	assert.Equal(t, `column "revenue" does not exist`, res.Outcome.ErrorDetail)
	require.NotNil(t, res.Repair)
	assert.Equal(t, "SELECT SUM(revenue) FROM fact_sales", res.Repair.FailedStatement)
	assert.True(t, res.Repair.Repaired.IsUsable)
	assert.Equal(t, 1, res.Usage.Calls)

	recs, err := st.ListResults(ctx, store.ResultFilter{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Repaired)
	assert.Equal(t, model.FailedPreview, recs[0].DataPreview)
}

func TestExecute_EmptyResultRepaired(t *testing.T) {
	ex, eng, o, _ := newTestExecutor(t)

	eng.On("Execute", mock.Anything, "SELECT region FROM dim_territories WHERE region = 'Mars'").
		Return(table([]string{"region"}), nil).Once()
	eng.On("Execute", mock.Anything, "SELECT region FROM dim_territories").
		Return(table([]string{"region"}, []any{"Europe"}, []any{"Pacific"}), nil).Once()
	o.expect("repair", "query returned no rows", `{"sql": "SELECT region FROM dim_territories"}`)

	res, err := ex.Execute(context.Background(), "run-1", "Which regions?", usable("SELECT region FROM dim_territories WHERE region = 'Mars'"))
	require.NoError(t, err)

	assert.True(t, res.Outcome.Succeeded())
	assert.Equal(t, 2, res.Outcome.RowCount)
	assert.Equal(t, "query returned no rows", res.Repair.FailureDetail)
	eng.AssertExpectations(t)
}

func TestExecute_EngineTimeoutRepaired(t *testing.T) {
	ex, eng, o, st := newTestExecutor(t)
	ctx := context.Background()

	slow := "SELECT c.customer_id, SUM(s.order_quantity) FROM fact_sales s CROSS JOIN dim_customers c GROUP BY 1"
	fast := "SELECT customer_id, SUM(order_quantity) AS units FROM fact_sales GROUP BY 1"
	eng.On("Execute", mock.Anything, slow).
		Return(nil, eris.Wrap(context.DeadlineExceeded, "warehouse: postgres query")).Once()
	eng.On("Execute", mock.Anything, fast).
		Return(table([]string{"customer_id", "units"}, []any{int64(11000), int64(7)}), nil).Once()
	o.expect("repair", "query timed out", `{"sql": "`+fast+`"}`)

	res, err := ex.Execute(ctx, "run-1", "Units per customer?", usable(slow))
	require.NoError(t, err)

	eng.AssertExpectations(t)
	o.AssertNumberOfCalls(t, "Complete", 1)
	require.NotNil(t, res.Repair)
	assert.Equal(t, slow, res.Repair.FailedStatement)
	assert.Equal(t, "query timed out", res.Repair.FailureDetail)
	assert.True(t, res.Outcome.Succeeded())
	assert.Equal(t, fast, res.Outcome.Statement)

	recs, err := st.ListResults(ctx, store.ResultFilter{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Repaired)
}

func TestExecute_EngineTimeoutAfterRepairIsFinal(t *testing.T) {
	ex, eng, o, _ := newTestExecutor(t)

	eng.On("Execute", mock.Anything, mock.Anything).
		Return(nil, eris.Wrap(context.DeadlineExceeded, "warehouse: postgres query"))
	o.expect("repair", "query timed out", `{"sql": "SELECT COUNT(*) FROM fact_sales"}`)

	res, err := ex.Execute(context.Background(), "run-1", "q", usable("SELECT * FROM fact_sales"))
	require.NoError(t, err)

	eng.AssertNumberOfCalls(t, "Execute", 2)
	o.AssertNumberOfCalls(t, "Complete", 1)
	assert.Equal(t, model.ExecutionEngineError, res.Outcome.Status)
	assert.Equal(t, "query timed out", res.Outcome.ErrorDetail)
}

func TestExecute_UnusableRepairSkipsSecondExecution(t *testing.T) {
	ex, eng, o, _ := newTestExecutor(t)

	eng.On("Execute", mock.Anything, mock.Anything).Return(nil, errors.New("syntax error at or near \"FORM\""))
	o.expect("repair", "", `{"sql": null}`)

	res, err := ex.Execute(context.Background(), "run-1", "q", usable("SELECT * FORM fact_sales"))
	require.NoError(t, err)

	eng.AssertNumberOfCalls(t, "Execute", 1)
	assert.Equal(t, model.ExecutionEngineError, res.Outcome.Status)
	assert.Equal(t, "SELECT * FORM fact_sales", res.Outcome.Statement)
	require.NotNil(t, res.Repair)
	assert.False(t, res.Repair.Repaired.IsUsable)
}

func TestExecute_RepairOracleFailure(t *testing.T) {
	ex, eng, o, _ := newTestExecutor(t)

	eng.On("Execute", mock.Anything, mock.Anything).Return(table([]string{"n"}), nil)
	o.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("circuit open"))

	res, err := ex.Execute(context.Background(), "run-1", "q", usable("SELECT 1 AS n WHERE 1 = 0"))
	require.NoError(t, err)
	eng.AssertNumberOfCalls(t, "Execute", 1)
	assert.Equal(t, model.ExecutionEmptyResult, res.Outcome.Status)
	assert.Zero(t, res.Usage.Calls)
}

func TestExecute_Cancelled(t *testing.T) {
	ex, eng, _, _ := newTestExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng.On("Execute", mock.Anything, mock.Anything).Return(nil, context.Canceled)

	_, err := ex.Execute(ctx, "run-1", "q", usable("SELECT 1"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, context.Canceled))
}
