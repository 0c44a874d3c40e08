// Package notify posts monitoring alerts to Slack: a channel going
// live, or a job recording a new error. Disabled without a bot token.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/streampulse/streampulse/internal/bus"
)

// Poster is the slice of the Slack API the notifier uses; tests inject
// a fake.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier turns cycle events into Slack messages. An error is only
// announced the first time it appears for a job; the spam stops until
// the job recovers and fails again.
type Notifier struct {
	api     Poster
	channel string

	mu       sync.Mutex
	lastErrs map[string]string // job id -> last announced error
}

// New creates a notifier posting to the given Slack channel. Returns
// nil when token is empty (notifications disabled).
func New(token, channel string) *Notifier {
	if token == "" || channel == "" {
		return nil
	}
	return &Notifier{
		api:      slack.New(token),
		channel:  channel,
		lastErrs: make(map[string]string),
	}
}

// NewWithPoster wires a custom poster (tests).
func NewWithPoster(api Poster, channel string) *Notifier {
	return &Notifier{
		api:      api,
		channel:  channel,
		lastErrs: make(map[string]string),
	}
}

// Attach subscribes the notifier to the event bus.
func (n *Notifier) Attach(events *bus.EventBus) {
	events.Subscribe(n.handle)
}

func (n *Notifier) handle(ev *bus.CycleEvent) {
	if text, ok := n.messageFor(ev); ok {
		n.post(text)
	}
}

func (n *Notifier) messageFor(ev *bus.CycleEvent) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if ev.Success {
		delete(n.lastErrs, ev.JobID)
		if ev.WentLive {
			return fmt.Sprintf(":red_circle: *%s* just went live on %s", ev.Entity, ev.Platform), true
		}
		return "", false
	}
	if n.lastErrs[ev.JobID] == ev.Error {
		return "", false
	}
	n.lastErrs[ev.JobID] = ev.Error
	return fmt.Sprintf(":warning: Collection for *%s* (%s) failed: %s", ev.Entity, ev.Platform, ev.Error), true
}

func (n *Notifier) post(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		slog.Warn("Slack notification failed", "error", err)
	}
}
