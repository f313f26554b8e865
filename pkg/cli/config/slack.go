package config

import (
	"github.com/secmon-lab/flowlens/pkg/service/notify"
	"github.com/secmon-lab/flowlens/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Slack holds CLI flags for sync failure notifications
type Slack struct {
	oauthToken string
	channel    string
}

// Flags returns CLI flags for Slack configuration
func (s *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-oauth-token",
			Usage:       "Slack bot OAuth token for failure notifications",
			Sources:     cli.EnvVars("FLOWLENS_SLACK_OAUTH_TOKEN"),
			Destination: &s.oauthToken,
		},
		&cli.StringFlag{
			Name:        "slack-channel",
			Usage:       "Slack channel to post failure notifications to",
			Sources:     cli.EnvVars("FLOWLENS_SLACK_CHANNEL"),
			Destination: &s.channel,
		},
	}
}

// Configure creates a notification service. Returns nil when Slack is
// not configured, which disables notifications.
func (s *Slack) Configure() (notify.Service, error) {
	if s.oauthToken == "" || s.channel == "" {
		return nil, nil
	}

	svc, err := notify.New(s.oauthToken, s.channel)
	if err != nil {
		return nil, err
	}
	logging.Default().Info("Slack notifications enabled", "channel", s.channel)
	return svc, nil
}
