// Package config loads node configuration from the environment, mirroring
// daglabs-btcd's apiserver/config split: a flat struct parsed by
// go-flags, here driven entirely by `env` tags since the keys arrive as
// environment variables rather than command-line flags.
package config

import (
	"fmt"

	"github.com/jessevdk/go-flags"
)

// Config holds every recognised environment key.
type Config struct {
	NodeHost       string `long:"node-host" env:"DENARO_NODE_HOST" default:"0.0.0.0"`
	NodePort       string `long:"node-port" env:"DENARO_NODE_PORT" default:"3006"`
	SelfURL        string `long:"self-url" env:"DENARO_SELF_URL"`
	BootstrapNode  string `long:"bootstrap-node" env:"DENARO_BOOTSTRAP_NODE" default:"discover"`

	DatabaseHost string `long:"database-host" env:"DENARO_DATABASE_HOST" default:"localhost"`
	DatabaseName string `long:"database-name" env:"DENARO_DATABASE_NAME" default:"denaro"`
	PostgresUser string `long:"postgres-user" env:"POSTGRES_USER" default:"postgres"`
	PostgresPass string `long:"postgres-password" env:"POSTGRES_PASSWORD"`

	LogLevel                    string `long:"log-level" env:"LOG_LEVEL" default:"info"`
	LogFormat                   string `long:"log-format" env:"LOG_FORMAT" default:"text"`
	LogDateFormat               string `long:"log-date-format" env:"LOG_DATE_FORMAT" default:"2006-01-02 15:04:05"`
	LogConsoleHighlighting      bool   `long:"log-console-highlighting" env:"LOG_CONSOLE_HIGHLIGHTING"`
	LogIncludeRequestContent    bool   `long:"log-include-request-content" env:"LOG_INCLUDE_REQUEST_CONTENT"`
	LogIncludeResponseContent   bool   `long:"log-include-response-content" env:"LOG_INCLUDE_RESPONSE_CONTENT"`
	LogIncludeBlockSyncMessages bool   `long:"log-include-block-sync-messages" env:"LOG_INCLUDE_BLOCK_SYNC_MESSAGES"`
}

// Parse reads Config from the process environment. Command-line arguments
// are accepted too (go-flags always parses os.Args) but every field also
// carries an env tag so a bare `denarod` invocation with a populated
// environment is sufficient, matching how the framing layer launches the
// node in a container.
func Parse() (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.IgnoreUnknown)
	if _, err := parser.Parse(); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	if cfg.SelfURL == "" {
		cfg.SelfURL = fmt.Sprintf("http://%s:%s", cfg.NodeHost, cfg.NodePort)
	}
	return cfg, nil
}

// ListenAddr returns the host:port pair to bind the HTTP listener to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.NodeHost, c.NodePort)
}
