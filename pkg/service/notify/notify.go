// Package notify reports sync failures to Slack. The notifier is
// optional wiring; when no bot token is configured the rest of the
// system runs without it.
package notify

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/slack-go/slack"
)

// Service posts operational notifications
type Service interface {
	NotifySyncFailure(ctx context.Context, conn *model.Connection, job *model.SyncJob) error
}

type client struct {
	api     *slack.Client
	channel string
}

// New creates a Slack notifier posting to the given channel
func New(token, channel string) (Service, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}
	if channel == "" {
		return nil, goerr.New("Slack channel is required")
	}

	return &client{
		api:     slack.New(token),
		channel: channel,
	}, nil
}

func (c *client) NotifySyncFailure(ctx context.Context, conn *model.Connection, job *model.SyncJob) error {
	fields := []slack.AttachmentField{
		{Title: "Site", Value: conn.SiteURL, Short: true},
		{Title: "Connection", Value: string(conn.ID), Short: true},
		{Title: "Job", Value: string(job.ID), Short: true},
		{Title: "Synced before failure", Value: fmt.Sprintf("%d entities", job.Counts.Total()), Short: true},
		{Title: "Cause", Value: job.Error, Short: false},
	}

	attachment := slack.Attachment{
		Color:  "danger",
		Title:  "Sync failed",
		Fields: fields,
	}

	_, _, err := c.api.PostMessageContext(ctx, c.channel,
		slack.MsgOptionAttachments(attachment),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to post sync failure notification",
			goerr.V("channel", c.channel), goerr.V("job_id", job.ID))
	}

	return nil
}
