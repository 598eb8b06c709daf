// Package api exposes the report pipeline over HTTP: deck building from an
// uploaded config, report publishing, starter-YAML generation and the
// scenario harness.
package api

import "errors"

// ErrAddrRequired is returned when no listen address is configured.
var ErrAddrRequired = errors.New("api address is required")

// Config represents API service configuration.
type Config struct {
	Addr        string `yaml:"addr" default:":5001"`
	ScenarioDir string `yaml:"scenarioDir" default:"unit_test_case"`
}

// Validate validates the API configuration.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return ErrAddrRequired
	}

	return nil
}
