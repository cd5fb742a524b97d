package testing

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slacktest"
)

var seenMessages sync.Map

type MessageMatchedFunc func(text string, searchFor string) (bool, error)

func ContainsMatch(text string, searchFor string) (bool, error) {
	return strings.Contains(text, searchFor), nil
}

func EqualMatch(text string, searchFor string) (bool, error) {
	return text == searchFor, nil
}

func WaitForOutboundSlackMessage(timeout time.Duration, slackServer *slacktest.Server, searchFor, channel string, matchFunc MessageMatchedFunc) (*slack.Message, error) {
	checkInterval := time.NewTicker(50 * time.Millisecond)
	defer checkInterval.Stop()
	timeoutChan := time.After(timeout)
	for {
		select {
		case <-checkInterval.C:
			for _, message := range slackServer.GetSeenOutboundMessages() {
				if _, ok := seenMessages.Load(message); ok {
					// A message can be waited for only once
					continue
				}
				m := slack.Message{}
				if err := json.Unmarshal([]byte(message), &m); err != nil {
					return nil, fmt.Errorf("unmarshal message: %w", err)
				}
				if m.Channel != channel {
					continue
				}

				match, err := matchFunc(m.Text, searchFor)
				if err != nil {
					return nil, fmt.Errorf("match func: %w", err)
				}
				if !match {
					continue
				}

				seenMessages.Store(message, nil)
				return &m, nil
			}
		case <-timeoutChan:
			return nil, fmt.Errorf("timeout waiting for message in channel %q and message %q", channel, searchFor)
		}
	}
}

// webhookRecorder is a webhook receiver keeping every payload it got.
type webhookRecorder struct {
	lock     sync.Mutex
	payloads []map[string]interface{}
	auth     []string
}

func (w *webhookRecorder) record(auth string, payload map[string]interface{}) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.payloads = append(w.payloads, payload)
	w.auth = append(w.auth, auth)
}

func (w *webhookRecorder) waitForKind(timeout time.Duration, kind, recipientID string) (map[string]interface{}, string, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		w.lock.Lock()
		for i, payload := range w.payloads {
			if payload["kind"] == kind && payload["recipient_id"] == recipientID {
				auth := w.auth[i]
				w.lock.Unlock()
				return payload, auth, nil
			}
		}
		w.lock.Unlock()
		time.Sleep(50 * time.Millisecond)
	}
	return nil, "", fmt.Errorf("timeout waiting for %s webhook to %s", kind, recipientID)
}
