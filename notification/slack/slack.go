package slack

import (
	"context"
	"fmt"
	"time"

	"github.com/oriser/tramper/notification"
	"github.com/oriser/tramper/user"
	"github.com/slack-go/slack"
)

type Config struct {
	OauthToken        string        `env:"SLACK_OAUTH_TOKEN" json:"-"`
	MaxCacheEntryTime time.Duration `env:"SLACK_STORE_MAX_CACHE_ENTRY_TIME" envDefault:"144h"` // 6 days
	SlackAPIUrl       string        `env:"SLACK_API_URL"`                                      // only for testing
}

// Enabled reports whether Slack delivery is configured.
func (c Config) Enabled() bool {
	return c.OauthToken != ""
}

// Sink sends notifications as Slack direct messages.
type Sink struct {
	client    *slack.Client
	directory *Directory
}

func NewSink(cfg Config, users user.Store, slackOptions ...slack.Option) *Sink {
	if cfg.SlackAPIUrl != "" {
		slackOptions = append(slackOptions, slack.OptionAPIURL(cfg.SlackAPIUrl))
	}
	client := slack.New(cfg.OauthToken, slackOptions...)
	return &Sink{
		client:    client,
		directory: NewDirectory(client, users, cfg.MaxCacheEntryTime),
	}
}

func (s *Sink) Send(ctx context.Context, event notification.Event) error {
	slackID, err := s.directory.Resolve(ctx, event.RecipientID)
	if err != nil {
		return fmt.Errorf("resolve slack user for %s: %w", event.RecipientID, err)
	}

	title, message, err := notification.Render(event)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("*%s*\n%s", title, message)
	if _, _, err = s.client.PostMessageContext(ctx, slackID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("posting message: %w", err)
	}
	return nil
}
