package connectors

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAthena struct {
	polls  int
	states []types.QueryExecutionState
	pages  []*athena.GetQueryResultsOutput
	page   int
	failed string
}

func (f *fakeAthena) StartQueryExecution(_ context.Context, _ *athena.StartQueryExecutionInput,
	_ ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String("exec-1")}, nil
}

func (f *fakeAthena) GetQueryExecution(_ context.Context, _ *athena.GetQueryExecutionInput,
	_ ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	state := f.states[f.polls]
	if f.polls < len(f.states)-1 {
		f.polls++
	}

	return &athena.GetQueryExecutionOutput{
		QueryExecution: &types.QueryExecution{
			Status: &types.QueryExecutionStatus{
				State:             state,
				StateChangeReason: aws.String(f.failed),
			},
		},
	}, nil
}

func (f *fakeAthena) GetQueryResults(_ context.Context, _ *athena.GetQueryResultsInput,
	_ ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error) {
	page := f.pages[f.page]
	if f.page < len(f.pages)-1 {
		f.page++
	}

	return page, nil
}

func datumRow(values ...string) types.Row {
	data := make([]types.Datum, len(values))
	for i, v := range values {
		v := v
		data[i] = types.Datum{VarCharValue: &v}
	}

	return types.Row{Data: data}
}

func newTestAthena(client athenaAPI) *athenaConnector {
	return &athenaConnector{
		log:      logrus.New().WithField("component", "test"),
		name:     "warehouse",
		client:   client,
		settings: Settings{Database: "db", S3StagingDir: "s3://stage/"},
		interval: time.Millisecond,
	}
}

func TestAthenaQueryPollsUntilSucceeded(t *testing.T) {
	fake := &fakeAthena{
		states: []types.QueryExecutionState{
			types.QueryExecutionStateQueued,
			types.QueryExecutionStateRunning,
			types.QueryExecutionStateSucceeded,
		},
		pages: []*athena.GetQueryResultsOutput{
			{
				ResultSet: &types.ResultSet{Rows: []types.Row{
					datumRow("Date", "metric_value"),
					datumRow("2021-09-04", "100"),
				}},
				NextToken: aws.String("next"),
			},
			{
				ResultSet: &types.ResultSet{Rows: []types.Row{
					datumRow("2021-09-05", "150"),
				}},
			},
		},
	}

	table, err := newTestAthena(fake).Query(context.Background(), "select 1")
	require.NoError(t, err)

	require.Equal(t, 2, table.NumRows())
	assert.Equal(t, time.Date(2021, 9, 4, 0, 0, 0, 0, time.UTC), table.Dates[0])

	col, err := table.Column("metric_value")
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 150}, col.Numeric)
}

func TestAthenaQueryFailedExecution(t *testing.T) {
	fake := &fakeAthena{
		states: []types.QueryExecutionState{types.QueryExecutionStateFailed},
		failed: "SYNTAX_ERROR",
	}

	_, err := newTestAthena(fake).Query(context.Background(), "select nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNTAX_ERROR")
}

func TestAthenaQueryCancelled(t *testing.T) {
	fake := &fakeAthena{
		states: []types.QueryExecutionState{types.QueryExecutionStateRunning},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestAthena(fake).Query(ctx, "select 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(context.Background(), logrus.New(), Connection{Name: "x", Type: "mysql"})
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestNewMissingFields(t *testing.T) {
	_, err := New(context.Background(), logrus.New(), Connection{
		Name: "pg",
		Type: TypePostgres,
		Config: Settings{
			Host: "localhost",
		},
	})
	require.ErrorIs(t, err, ErrMissingField)
}
