// Package platform defines the boundary to per-platform API clients.
// Vendor request/response shaping lives outside this module; collection
// cycles only see the Snapshot shape defined here.
package platform

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Platform identifies a monitored social platform.
type Platform string

const (
	Twitch  Platform = "twitch"
	Twitter Platform = "twitter"
	YouTube Platform = "youtube"
	Reddit  Platform = "reddit"
)

// All lists every supported platform in a stable order.
func All() []Platform {
	return []Platform{Twitch, Twitter, YouTube, Reddit}
}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case Twitch, Twitter, YouTube, Reddit:
		return true
	}
	return false
}

// StreamState is the current live status of a streaming channel. It is
// also the typed metrics payload of a stream snapshot observation.
type StreamState struct {
	Live        bool      `json:"live"`
	Title       string    `json:"title,omitempty"`
	Game        string    `json:"game,omitempty"`
	ViewerCount int       `json:"viewer_count"`
	StartedAt   time.Time `json:"started_at,omitempty"`
}

// TweetMetrics is the typed metrics payload of a tweet observation.
type TweetMetrics struct {
	Text     string `json:"text"`
	Retweets int    `json:"retweets"`
	Likes    int    `json:"likes"`
	Replies  int    `json:"replies"`
	Quotes   int    `json:"quotes"`
}

// VideoMetrics is the typed metrics payload of a video observation.
type VideoMetrics struct {
	Title    string `json:"title"`
	Views    int64  `json:"views"`
	Likes    int64  `json:"likes"`
	Comments int64  `json:"comments"`
}

// PostMetrics is the typed metrics payload of a subreddit post observation.
type PostMetrics struct {
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	UpvoteRatio float64 `json:"upvote_ratio"`
}

// Item is one identifiable content item in a fetch. Exactly one of the
// typed metric fields is set, matching the platform.
type Item struct {
	NaturalID   string        `json:"natural_id"`
	PublishedAt time.Time     `json:"published_at"`
	Tweet       *TweetMetrics `json:"tweet,omitempty"`
	Video       *VideoMetrics `json:"video,omitempty"`
	Post        *PostMetrics  `json:"post,omitempty"`
}

// Payload returns whichever typed metric struct the item carries.
func (i Item) Payload() any {
	switch {
	case i.Tweet != nil:
		return i.Tweet
	case i.Video != nil:
		return i.Video
	case i.Post != nil:
		return i.Post
	}
	return nil
}

// Snapshot is the result of one FetchCurrentState call. Streaming
// platforms fill Stream; item platforms fill Items.
type Snapshot struct {
	Platform Platform
	Stream   *StreamState
	Items    []Item
}

// Client fetches the current platform-side state for one entity.
type Client interface {
	FetchCurrentState(ctx context.Context, entityKey string) (*Snapshot, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, entityKey string) (*Snapshot, error)

func (f ClientFunc) FetchCurrentState(ctx context.Context, entityKey string) (*Snapshot, error) {
	return f(ctx, entityKey)
}

// Registry maps platforms to their API clients. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	clients map[Platform]Client
}

// NewRegistry creates an empty client registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[Platform]Client)}
}

// Register installs (or replaces) the client for a platform.
func (r *Registry) Register(p Platform, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[p] = c
}

// Client returns the registered client for a platform.
func (r *Registry) Client(p Platform) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[p]
	if !ok {
		return nil, fmt.Errorf("no client registered for platform %q", p)
	}
	return c, nil
}
