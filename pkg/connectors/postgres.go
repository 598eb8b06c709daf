package connectors

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/wbr/pkg/frame"
	"github.com/ethpandaops/wbr/pkg/wbrerr"
)

const (
	defaultPostgresPort = 5432
	defaultRedshiftPort = 5439
)

// postgresConnector serves both postgres and redshift connections; Redshift
// speaks the postgres wire protocol but lowercases unquoted identifiers,
// which the grid conversion re-canonicalizes.
type postgresConnector struct {
	log      logrus.FieldLogger
	name     string
	connType string
	pool     *pgxpool.Pool
}

func newPostgres(log logrus.FieldLogger, name, connType string, s Settings) (Connector, error) {
	if err := requireFields(connType, map[string]string{
		"host":     s.Host,
		"username": s.Username,
		"database": s.Database,
	}); err != nil {
		return nil, err
	}

	port := s.Port
	if port == 0 {
		port = defaultPostgresPort
		if connType == TypeRedshift {
			port = defaultRedshiftPort
		}
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		url.QueryEscape(s.Username), url.QueryEscape(s.Password), s.Host, port, s.Database)

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindConnection, name, "opening pool: %s", err)
	}

	return &postgresConnector{
		log:      log.WithField("component", "connector/"+connType).WithField("connection", name),
		name:     name,
		connType: connType,
		pool:     pool,
	}, nil
}

func (c *postgresConnector) Type() string {
	return c.connType
}

func (c *postgresConnector) Query(ctx context.Context, query string) (*frame.Table, error) {
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindConnection, c.name, "%s: %s", ErrQueryFailed, err)
	}
	defer rows.Close()

	descriptions := rows.FieldDescriptions()

	header := make([]string, len(descriptions))
	for i, d := range descriptions {
		header[i] = string(d.Name)
	}

	var grid [][]any

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, wbrerr.New(wbrerr.KindConnection, c.name, "reading row: %s", err)
		}

		grid = append(grid, values)
	}

	if err := rows.Err(); err != nil {
		return nil, wbrerr.New(wbrerr.KindConnection, c.name, "%s: %s", ErrQueryFailed, err)
	}

	c.log.WithField("rows", len(grid)).Debug("Query complete")

	return tableFromGrid(c.name, header, grid)
}

func (c *postgresConnector) Stop(_ context.Context) error {
	c.pool.Close()

	return nil
}
