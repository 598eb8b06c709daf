// Package connectors provides the warehouse drivers the loader pulls daily
// tables through. Every connector executes a SQL query and returns a frame
// with a canonical Date column, regardless of how the backend cases or
// types its result columns.
package connectors

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/wbr/pkg/frame"
)

// Supported connection types.
const (
	TypePostgres  = "postgres"
	TypeRedshift  = "redshift"
	TypeSnowflake = "snowflake"
	TypeAthena    = "athena"
)

var (
	ErrUnknownType   = errors.New("unknown connection type")
	ErrMissingField  = errors.New("missing connection config field")
	ErrQueryFailed   = errors.New("query failed")
	ErrNoDateColumn  = errors.New("query result has no Date column")
	ErrEmptyResult   = errors.New("query returned no columns")
	ErrSecretService = errors.New("unsupported secret service")
)

// Connector executes queries against one configured connection.
type Connector interface {
	// Type returns the connection type.
	Type() string
	// Query executes a query and converts the result to a daily table.
	Query(ctx context.Context, query string) (*frame.Table, error)
	// Stop releases the underlying handles.
	Stop(ctx context.Context) error
}

// Settings is the union of the type-specific connection fields from
// connections.yaml. When Service is "aws" the credential fields are
// overlaid from the named Secrets Manager secret.
type Settings struct {
	Service    string `yaml:"service"    json:"service"`
	SecretName string `yaml:"secretName" json:"secretName"`

	// postgres / redshift
	Host     string `yaml:"host"     json:"host"`
	Port     int    `yaml:"port"     json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`

	// snowflake
	Account   string `yaml:"account"   json:"account"`
	User      string `yaml:"user"      json:"user"`
	Warehouse string `yaml:"warehouse" json:"warehouse"`
	Schema    string `yaml:"schema"    json:"schema"`
	Role      string `yaml:"role"      json:"role"`

	// athena
	Region       string `yaml:"region"       json:"region"`
	S3StagingDir string `yaml:"s3StagingDir" json:"s3StagingDir"`
	Workgroup    string `yaml:"workgroup"    json:"workgroup"`
}

// Connection is one named entry of connections.yaml.
type Connection struct {
	Name   string   `yaml:"name"`
	Type   string   `yaml:"type"`
	Config Settings `yaml:"config"`
}

// New builds a connector for a connection, resolving AWS-managed secrets
// first when the connection asks for them.
func New(ctx context.Context, log logrus.FieldLogger, conn Connection) (Connector, error) {
	settings := conn.Config

	if settings.Service != "" {
		resolved, err := resolveSecret(ctx, log, settings)
		if err != nil {
			return nil, fmt.Errorf("connection %q: %w", conn.Name, err)
		}

		settings = resolved
	}

	switch conn.Type {
	case TypePostgres:
		return newPostgres(log, conn.Name, TypePostgres, settings)
	case TypeRedshift:
		return newPostgres(log, conn.Name, TypeRedshift, settings)
	case TypeSnowflake:
		return newSnowflake(log, conn.Name, settings)
	case TypeAthena:
		return newAthena(ctx, log, conn.Name, settings)
	}

	return nil, fmt.Errorf("%w: %q for connection %q", ErrUnknownType, conn.Type, conn.Name)
}

func requireFields(connType string, fields map[string]string) error {
	for name, value := range fields {
		if value == "" {
			return fmt.Errorf("%w: %s requires %s", ErrMissingField, connType, name)
		}
	}

	return nil
}
