package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/oriser/tramper/notification"
	"github.com/prometheus/common/log"
)

type Config struct {
	URL                  string        `env:"NOTIFICATION_WEBHOOK_URL"`
	Token                string        `env:"NOTIFICATION_WEBHOOK_TOKEN" json:"-"`
	HTTPMaxRetries       int           `env:"NOTIFICATION_WEBHOOK_MAX_RETRY_COUNT" envDefault:"5"`
	HTTPMinRetryDuration time.Duration `env:"NOTIFICATION_WEBHOOK_MIN_RETRY_DURATION" envDefault:"1s"`
	HTTPMaxRetryDuration time.Duration `env:"NOTIFICATION_WEBHOOK_MAX_RETRY_DURATION" envDefault:"30s"`
}

// Enabled reports whether webhook delivery is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// Sink posts every event as JSON to a configured URL.
type Sink struct {
	url    string
	token  string
	client *http.Client
}

func NewSink(cfg Config) *Sink {
	client := retryablehttp.NewClient()
	client.RetryWaitMax = cfg.HTTPMaxRetryDuration
	client.RetryWaitMin = cfg.HTTPMinRetryDuration
	client.RetryMax = cfg.HTTPMaxRetries
	client.Logger = nil
	client.RequestLogHook = func(logger retryablehttp.Logger, request *http.Request, i int) {
		if i != 0 {
			log.Errorf("Retrying webhook request for %s (attempt %d)", request.URL.String(), i)
		}
	}

	return &Sink{
		url:    cfg.URL,
		token:  cfg.Token,
		client: client.StandardClient(),
	}
}

// Payload renders the JSON body sent for event.
func Payload(event notification.Event) ([]byte, error) {
	title, message, err := notification.Render(event)
	if err != nil {
		return nil, err
	}

	gc := gabs.New()
	set := func(value interface{}, path ...string) {
		if err == nil {
			_, err = gc.Set(value, path...)
		}
	}
	set(string(event.Kind), "kind")
	set(event.RecipientID, "recipient_id")
	set(event.OccurredAt.UTC().Format(time.RFC3339Nano), "occurred_at")
	set(title, "notification", "title")
	set(message, "notification", "message")
	set(notification.CategoryShipmentRequest, "notification", "category")
	set(event.RequestID, "request", "id")
	if event.ShipmentID != nil {
		set(*event.ShipmentID, "request", "shipment_id")
	}
	if event.TripID != nil {
		set(*event.TripID, "request", "trip_id")
	}
	if event.Price != nil {
		set(event.Price.StringFixed(2), "request", "price")
	}
	set(event.ActorID, "actor", "id")
	set(event.ActorName, "actor", "name")
	if err != nil {
		return nil, fmt.Errorf("build payload: %w", err)
	}
	return gc.Bytes(), nil
}

func (s *Sink) Send(ctx context.Context, event notification.Event) error {
	body, err := Payload(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json;charset=utf-8")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("got non 2xx response: %d", resp.StatusCode)
	}
	return nil
}
