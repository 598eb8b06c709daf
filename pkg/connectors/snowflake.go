package connectors

import (
	"context"
	"database/sql"

	"github.com/sirupsen/logrus"
	sf "github.com/snowflakedb/gosnowflake"

	"github.com/ethpandaops/wbr/pkg/frame"
	"github.com/ethpandaops/wbr/pkg/wbrerr"
)

// snowflakeConnector runs queries through the gosnowflake database/sql
// driver. Snowflake uppercases unquoted aliases, so "date" comes back as
// "DATE" and is re-canonicalized by the grid conversion.
type snowflakeConnector struct {
	log  logrus.FieldLogger
	name string
	db   *sql.DB
}

func newSnowflake(log logrus.FieldLogger, name string, s Settings) (Connector, error) {
	if err := requireFields(TypeSnowflake, map[string]string{
		"account":   s.Account,
		"user":      s.User,
		"warehouse": s.Warehouse,
		"database":  s.Database,
	}); err != nil {
		return nil, err
	}

	dsn, err := sf.DSN(&sf.Config{
		Account:   s.Account,
		User:      s.User,
		Password:  s.Password,
		Database:  s.Database,
		Schema:    s.Schema,
		Warehouse: s.Warehouse,
		Role:      s.Role,
	})
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindConnection, name, "building DSN: %s", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindConnection, name, "opening connection: %s", err)
	}

	return &snowflakeConnector{
		log:  log.WithField("component", "connector/snowflake").WithField("connection", name),
		name: name,
		db:   db,
	}, nil
}

func (c *snowflakeConnector) Type() string {
	return TypeSnowflake
}

func (c *snowflakeConnector) Query(ctx context.Context, query string) (*frame.Table, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindConnection, c.name, "%s: %s", ErrQueryFailed, err)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindConnection, c.name, "reading columns: %s", err)
	}

	var grid [][]any

	for rows.Next() {
		cells := make([]any, len(header))
		refs := make([]any, len(header))

		for i := range cells {
			refs[i] = &cells[i]
		}

		if err := rows.Scan(refs...); err != nil {
			return nil, wbrerr.New(wbrerr.KindConnection, c.name, "reading row: %s", err)
		}

		grid = append(grid, cells)
	}

	if err := rows.Err(); err != nil {
		return nil, wbrerr.New(wbrerr.KindConnection, c.name, "%s: %s", ErrQueryFailed, err)
	}

	c.log.WithField("rows", len(grid)).Debug("Query complete")

	return tableFromGrid(c.name, header, grid)
}

func (c *snowflakeConnector) Stop(_ context.Context) error {
	return c.db.Close()
}
