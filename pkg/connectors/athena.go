package connectors

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/wbr/pkg/frame"
	"github.com/ethpandaops/wbr/pkg/wbrerr"
)

const athenaPollInterval = 2 * time.Second

// athenaAPI is the subset of the Athena client the connector uses.
type athenaAPI interface {
	StartQueryExecution(ctx context.Context, in *athena.StartQueryExecutionInput,
		opts ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, in *athena.GetQueryExecutionInput,
		opts ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, in *athena.GetQueryResultsInput,
		opts ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

// athenaConnector submits a query execution, polls it to completion and
// pages through the staged results. Athena returns every value as varchar;
// the grid conversion restores numeric typing.
type athenaConnector struct {
	log      logrus.FieldLogger
	name     string
	client   athenaAPI
	settings Settings
	interval time.Duration
}

func newAthena(ctx context.Context, log logrus.FieldLogger, name string, s Settings) (Connector, error) {
	if err := requireFields(TypeAthena, map[string]string{
		"region":       s.Region,
		"database":     s.Database,
		"s3StagingDir": s.S3StagingDir,
	}); err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.Region))
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindConnection, name, "loading aws config: %s", err)
	}

	return &athenaConnector{
		log:      log.WithField("component", "connector/athena").WithField("connection", name),
		name:     name,
		client:   athena.NewFromConfig(awsCfg),
		settings: s,
		interval: athenaPollInterval,
	}, nil
}

func (c *athenaConnector) Type() string {
	return TypeAthena
}

func (c *athenaConnector) Query(ctx context.Context, query string) (*frame.Table, error) {
	input := &athena.StartQueryExecutionInput{
		QueryString: aws.String(query),
		QueryExecutionContext: &types.QueryExecutionContext{
			Database: aws.String(c.settings.Database),
		},
		ResultConfiguration: &types.ResultConfiguration{
			OutputLocation: aws.String(c.settings.S3StagingDir),
		},
	}

	if c.settings.Workgroup != "" {
		input.WorkGroup = aws.String(c.settings.Workgroup)
	}

	started, err := c.client.StartQueryExecution(ctx, input)
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindConnection, c.name, "starting execution: %s", err)
	}

	executionID := aws.ToString(started.QueryExecutionId)

	if err := c.waitForCompletion(ctx, executionID); err != nil {
		return nil, err
	}

	return c.fetchResults(ctx, executionID)
}

// waitForCompletion polls the execution state until it settles or the
// context is cancelled.
func (c *athenaConnector) waitForCompletion(ctx context.Context, executionID string) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		out, err := c.client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(executionID),
		})
		if err != nil {
			return wbrerr.New(wbrerr.KindConnection, c.name, "polling execution: %s", err)
		}

		switch out.QueryExecution.Status.State {
		case types.QueryExecutionStateSucceeded:
			return nil
		case types.QueryExecutionStateFailed, types.QueryExecutionStateCancelled:
			return wbrerr.New(wbrerr.KindConnection, c.name, "execution %s: %s",
				out.QueryExecution.Status.State,
				aws.ToString(out.QueryExecution.Status.StateChangeReason))
		case types.QueryExecutionStateQueued, types.QueryExecutionStateRunning:
		}

		select {
		case <-ctx.Done():
			return wbrerr.New(wbrerr.KindConnection, c.name, "cancelled: %s", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *athenaConnector) fetchResults(ctx context.Context, executionID string) (*frame.Table, error) {
	var (
		header []string
		grid   [][]any
		token  *string
	)

	for {
		page, err := c.client.GetQueryResults(ctx, &athena.GetQueryResultsInput{
			QueryExecutionId: aws.String(executionID),
			NextToken:        token,
		})
		if err != nil {
			return nil, wbrerr.New(wbrerr.KindConnection, c.name, "fetching results: %s", err)
		}

		rows := page.ResultSet.Rows

		// The first row of the first page is the header.
		if header == nil && len(rows) > 0 {
			header = datumStrings(rows[0])
			rows = rows[1:]
		}

		for _, row := range rows {
			cells := make([]any, len(row.Data))
			for i, d := range row.Data {
				if d.VarCharValue == nil {
					cells[i] = nil
				} else {
					cells[i] = *d.VarCharValue
				}
			}

			grid = append(grid, cells)
		}

		if page.NextToken == nil {
			break
		}

		token = page.NextToken
	}

	c.log.WithField("rows", len(grid)).Debug("Query complete")

	return tableFromGrid(c.name, header, grid)
}

func datumStrings(row types.Row) []string {
	out := make([]string, len(row.Data))
	for i, d := range row.Data {
		out[i] = aws.ToString(d.VarCharValue)
	}

	return out
}

func (c *athenaConnector) Stop(_ context.Context) error {
	return nil
}
