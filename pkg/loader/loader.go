// Package loader pulls every declared source of a run into daily tables and
// outer-joins them into the master table the engine materializes from.
// Connection handles live only for the duration of one Load call.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/wbr/pkg/annotations"
	"github.com/ethpandaops/wbr/pkg/config"
	"github.com/ethpandaops/wbr/pkg/connectors"
	"github.com/ethpandaops/wbr/pkg/frame"
	"github.com/ethpandaops/wbr/pkg/observability"
	"github.com/ethpandaops/wbr/pkg/wbrerr"
)

const fetchTimeout = 60 * time.Second

var (
	ErrNoSources         = errors.New("no data sources declared")
	ErrNoConnectionsFile = errors.New("dataSources reference connections but setup.dbConfigUrl is not set")
	ErrUnknownConnection = errors.New("connection not found in connections file")
	ErrDuplicateConn     = errors.New("duplicate connection name")
)

// connectionsFile is the schema of the file behind setup.dbConfigUrl.
type connectionsFile struct {
	Version     string                  `yaml:"version"`
	Connections []connectors.Connection `yaml:"connections"`
}

// Result is everything a run loads: the merged master table and the raw
// annotation events.
type Result struct {
	Master *frame.Table
	Events []annotations.Event
}

// Loader fetches, parses and merges the declared sources.
type Loader struct {
	log    logrus.FieldLogger
	client *http.Client

	// newConnector is swapped in tests.
	newConnector func(ctx context.Context, log logrus.FieldLogger, conn connectors.Connection) (connectors.Connector, error)
}

// New builds a loader.
func New(log logrus.FieldLogger) *Loader {
	return &Loader{
		log:          log.WithField("component", "loader"),
		client:       &http.Client{Timeout: fetchTimeout},
		newConnector: connectors.New,
	}
}

// Load pulls every source and annotation of the run. A non-nil override is
// an uploaded CSV that replaces the whole merged table; the YAML dataSources
// are skipped and its columns are not namespaced.
func (l *Loader) Load(ctx context.Context, cfg *config.Config, override []byte) (*Result, error) {
	s := &session{loader: l, cfg: cfg, open: make(map[string]connectors.Connector)}
	defer s.close(ctx)

	result := &Result{}

	var err error

	if override != nil {
		if result.Master, err = frame.FromCSV(bytes.NewReader(override)); err != nil {
			return nil, wbrerr.New(wbrerr.KindData, "upload", "%s", err)
		}

		l.log.WithField("rows", result.Master.NumRows()).Info("Using uploaded CSV instead of declared sources")
	} else if result.Master, err = s.loadMaster(ctx); err != nil {
		return nil, err
	}

	if result.Events, err = s.loadAnnotations(ctx); err != nil {
		return nil, err
	}

	return result, nil
}

// session holds the per-run connection state.
type session struct {
	loader *Loader
	cfg    *config.Config
	conns  map[string]connectors.Connection
	open   map[string]connectors.Connector
}

func (s *session) loadMaster(ctx context.Context) (*frame.Table, error) {
	var sources []frame.Source

	for _, group := range s.cfg.DataSources.Connections {
		conn, err := s.connector(ctx, group.Connection)
		if err != nil {
			return nil, err
		}

		for _, q := range group.Queries {
			table, err := conn.Query(ctx, q.Query)
			if err != nil {
				observability.SourceQueriesTotal.WithLabelValues(conn.Type(), "error").Inc()

				return nil, err
			}

			observability.SourceQueriesTotal.WithLabelValues(conn.Type(), "success").Inc()

			s.loader.log.WithField("connection", group.Connection).
				WithField("alias", q.Alias).
				WithField("rows", table.NumRows()).
				Info("Loaded source")

			sources = append(sources, frame.Source{Alias: q.Alias, Table: table})
		}
	}

	for _, csvSource := range s.cfg.DataSources.CSVFiles {
		data, err := s.loader.fetch(ctx, csvSource.URLOrPath)
		if err != nil {
			observability.SourceQueriesTotal.WithLabelValues("csv", "error").Inc()

			return nil, wbrerr.New(wbrerr.KindData, csvSource.URLOrPath, "%s", err)
		}

		table, err := frame.FromCSV(bytes.NewReader(data))
		if err != nil {
			observability.SourceQueriesTotal.WithLabelValues("csv", "error").Inc()

			return nil, wbrerr.New(wbrerr.KindData, csvSource.URLOrPath, "%s", err)
		}

		observability.SourceQueriesTotal.WithLabelValues("csv", "success").Inc()

		s.loader.log.WithField("alias", csvSource.Alias).
			WithField("rows", table.NumRows()).
			Info("Loaded source")

		sources = append(sources, frame.Source{Alias: csvSource.Alias, Table: table})
	}

	if len(sources) == 0 {
		return nil, wbrerr.New(wbrerr.KindConfig, "dataSources", "%s", ErrNoSources)
	}

	return frame.Merge(sources)
}

func (s *session) loadAnnotations(ctx context.Context) ([]annotations.Event, error) {
	if s.cfg.Annotations.Empty() {
		return nil, nil
	}

	var events []annotations.Event

	for _, urlOrPath := range s.cfg.Annotations.CSVFiles {
		data, err := s.loader.fetch(ctx, urlOrPath)
		if err != nil {
			return nil, wbrerr.New(wbrerr.KindAnnotation, urlOrPath, "%s", err)
		}

		parsed, err := annotations.ParseCSV(bytes.NewReader(data), urlOrPath)
		if err != nil {
			return nil, err
		}

		events = append(events, parsed...)
	}

	for _, group := range s.cfg.Annotations.DataSources {
		conn, err := s.connector(ctx, group.Connection)
		if err != nil {
			return nil, err
		}

		for _, q := range group.Queries {
			table, err := conn.Query(ctx, q.Query)
			if err != nil {
				return nil, err
			}

			parsed, err := annotations.FromTable(table, group.Connection+"."+q.Alias)
			if err != nil {
				return nil, err
			}

			events = append(events, parsed...)
		}
	}

	s.loader.log.WithField("events", len(events)).Info("Loaded annotations")

	return events, nil
}

// connector returns the open connector for a named connection, opening it on
// first use. The connections file is fetched lazily so CSV-only runs never
// require one.
func (s *session) connector(ctx context.Context, name string) (connectors.Connector, error) {
	if conn, ok := s.open[name]; ok {
		return conn, nil
	}

	if s.conns == nil {
		conns, err := s.loader.loadConnections(ctx, s.cfg.Setup.DBConfigURL)
		if err != nil {
			return nil, err
		}

		s.conns = conns
	}

	decl, ok := s.conns[name]
	if !ok {
		return nil, wbrerr.New(wbrerr.KindConfig, "dataSources."+name, "%s: %q", ErrUnknownConnection, name)
	}

	conn, err := s.loader.newConnector(ctx, s.loader.log, decl)
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindConnection, name, "%s", err)
	}

	s.open[name] = conn

	return conn, nil
}

func (s *session) close(ctx context.Context) {
	for name, conn := range s.open {
		if err := conn.Stop(ctx); err != nil {
			s.loader.log.WithError(err).WithField("connection", name).Warn("Failed to close connection")
		}
	}
}

func (l *Loader) loadConnections(ctx context.Context, urlOrPath string) (map[string]connectors.Connection, error) {
	if urlOrPath == "" {
		return nil, wbrerr.New(wbrerr.KindConfig, "setup.dbConfigUrl", "%s", ErrNoConnectionsFile)
	}

	data, err := l.fetch(ctx, urlOrPath)
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindConnection, urlOrPath, "%s", err)
	}

	return ParseConnections(data)
}

// ParseConnections decodes a connections file, rejecting duplicate names.
func ParseConnections(data []byte) (map[string]connectors.Connection, error) {
	var file connectionsFile

	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, wbrerr.New(wbrerr.KindConfig, "connections", "%s", err)
	}

	conns := make(map[string]connectors.Connection, len(file.Connections))

	for _, c := range file.Connections {
		if c.Name == "" {
			return nil, wbrerr.New(wbrerr.KindConfig, "connections", "connection without a name")
		}

		if _, dup := conns[c.Name]; dup {
			return nil, wbrerr.New(wbrerr.KindConfig, "connections", "%s: %q", ErrDuplicateConn, c.Name)
		}

		conns[c.Name] = c
	}

	return conns, nil
}

// fetch reads a source from an http(s) URL or a local path.
func (l *Loader) fetch(ctx context.Context, urlOrPath string) ([]byte, error) {
	if !strings.HasPrefix(urlOrPath, "http://") && !strings.HasPrefix(urlOrPath, "https://") {
		return os.ReadFile(urlOrPath)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlOrPath, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %s", urlOrPath, resp.Status)
	}

	return io.ReadAll(resp.Body)
}
