package config

import (
	"github.com/secmon-lab/flowlens/pkg/utils/errutil"
	"github.com/urfave/cli/v3"
)

// Sentry holds CLI flags for error reporting
type Sentry struct {
	dsn string
	env string
}

// Flags returns CLI flags for Sentry configuration
func (s *Sentry) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sentry-dsn",
			Usage:       "Sentry DSN for error reporting (disabled when empty)",
			Sources:     cli.EnvVars("FLOWLENS_SENTRY_DSN"),
			Destination: &s.dsn,
		},
		&cli.StringFlag{
			Name:        "sentry-env",
			Usage:       "Environment name reported to Sentry",
			Value:       "production",
			Sources:     cli.EnvVars("FLOWLENS_SENTRY_ENV"),
			Destination: &s.env,
		},
	}
}

// Configure initializes the Sentry client when a DSN is set
func (s *Sentry) Configure() error {
	if s.dsn == "" {
		return nil
	}
	return errutil.InitSentry(s.dsn, s.env)
}
