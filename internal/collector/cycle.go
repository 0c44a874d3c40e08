// Package collector runs collection cycles: fetch the current platform
// state for a due job, harvest live chat when warranted, and write the
// results into the session store.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streampulse/streampulse/internal/chat"
	"github.com/streampulse/streampulse/internal/credentials"
	"github.com/streampulse/streampulse/internal/platform"
	"github.com/streampulse/streampulse/internal/scheduler"
	"github.com/streampulse/streampulse/internal/store"
)

// ChatCollector is the slice of chat.Client the cycle needs; fakes
// implement it in tests.
type ChatCollector interface {
	Connect(ctx context.Context, channel, token string) error
	Collect(duration time.Duration) (*chat.Result, error)
	Disconnect()
}

// ChatConfig controls live-chat harvesting during stream cycles.
type ChatConfig struct {
	Enabled  bool
	Server   string
	Duration time.Duration
}

// Outcome summarizes what one cycle wrote.
type Outcome struct {
	Observations int
	ChatMessages int
	WentLive     bool
}

// Cycle performs one synchronous fetch-and-store unit of work.
type Cycle struct {
	store   *store.Store
	clients *platform.Registry
	creds   credentials.Provider
	chatCfg ChatConfig
	newChat func() ChatCollector
}

// NewCycle wires a cycle against the store, the platform client
// registry, and the credential provider.
func NewCycle(st *store.Store, clients *platform.Registry, creds credentials.Provider, chatCfg ChatConfig) *Cycle {
	c := &Cycle{
		store:   st,
		clients: clients,
		creds:   creds,
		chatCfg: chatCfg,
	}
	c.newChat = func() ChatCollector { return chat.NewClient(chatCfg.Server) }
	return c
}

// Run executes one collection cycle for the job. Errors are transient
// collection errors for the caller to record via MarkRun; the store is
// never left with a partial logical row.
func (c *Cycle) Run(ctx context.Context, job *scheduler.Job) (*Outcome, error) {
	client, err := c.clients.Client(job.Platform)
	if err != nil {
		return nil, err
	}

	snap, err := client.FetchCurrentState(ctx, job.EntityName)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", job.Platform, job.EntityName, err)
	}

	outcome := &Outcome{}
	if snap.Stream != nil {
		if err := c.storeStream(ctx, job, snap.Stream, outcome); err != nil {
			return nil, err
		}
	}
	for _, item := range snap.Items {
		if err := c.storeItem(job, item, outcome); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

func (c *Cycle) storeStream(ctx context.Context, job *scheduler.Job, state *platform.StreamState, outcome *Outcome) error {
	wasLive, err := c.lastKnownLive(job.EntityID)
	if err != nil {
		return err
	}

	blob, err := store.MarshalMetrics(state)
	if err != nil {
		return err
	}
	obsID, err := c.store.AppendSnapshot(&store.Observation{
		EntityID:   job.EntityID,
		Kind:       store.KindStream,
		PlatformTS: state.StartedAt,
		Metrics:    blob,
	})
	if err != nil {
		return err
	}
	outcome.Observations++
	outcome.WentLive = state.Live && !wasLive

	if !state.Live || !c.chatCfg.Enabled || job.Platform != platform.Twitch {
		return nil
	}

	// Chat harvesting is best-effort: a dead IRC connection must not
	// discard the snapshot that was already stored.
	msgs, err := c.collectChat(ctx, job.EntityName)
	if err != nil {
		slog.Warn("Live chat collection failed", "entity", job.EntityName, "error", err)
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := c.store.AddChatMessages(obsID, msgs); err != nil {
		return err
	}
	outcome.ChatMessages += len(msgs)
	return nil
}

func (c *Cycle) collectChat(ctx context.Context, channel string) ([]store.ChatMessage, error) {
	var token string
	if creds, ok := c.creds.Get(platform.Twitch); ok {
		token = creds.Token
	}

	cc := c.newChat()
	defer cc.Disconnect()
	if err := cc.Connect(ctx, channel, token); err != nil {
		return nil, err
	}
	res, err := cc.Collect(c.chatCfg.Duration)
	if res == nil {
		return nil, err
	}

	msgs := make([]store.ChatMessage, 0, len(res.Messages))
	for _, m := range res.Messages {
		msgs = append(msgs, store.ChatMessage{
			Username:    m.Username,
			Text:        m.Text,
			CollectedAt: m.CollectedAt,
		})
	}
	return msgs, err
}

func (c *Cycle) storeItem(job *scheduler.Job, item platform.Item, outcome *Outcome) error {
	payload := item.Payload()
	if item.NaturalID == "" || payload == nil {
		slog.Warn("Skipping item without identifier or payload", "platform", job.Platform, "entity", job.EntityName)
		return nil
	}
	blob, err := store.MarshalMetrics(payload)
	if err != nil {
		return err
	}
	obs := &store.Observation{
		EntityID:   job.EntityID,
		Kind:       kindForItem(item),
		NaturalID:  item.NaturalID,
		PlatformTS: item.PublishedAt,
		Metrics:    blob,
	}
	if err := c.store.UpsertObservation(obs); err != nil {
		return err
	}
	outcome.Observations++
	return nil
}

// lastKnownLive reads the most recent stream snapshot's live flag so a
// transition from offline to live can be flagged on the cycle event.
func (c *Cycle) lastKnownLive(entityID int64) (bool, error) {
	prev, err := c.store.Observations(entityID, store.KindStream, 1)
	if err != nil {
		return false, err
	}
	if len(prev) == 0 {
		return false, nil
	}
	var state platform.StreamState
	if err := store.UnmarshalMetrics(prev[0].Metrics, &state); err != nil {
		return false, nil
	}
	return state.Live, nil
}

func kindForItem(item platform.Item) store.ObservationKind {
	switch {
	case item.Tweet != nil:
		return store.KindTweet
	case item.Video != nil:
		return store.KindVideo
	default:
		return store.KindPost
	}
}
