package store

import (
	"encoding/json"
	"time"

	"github.com/streampulse/streampulse/internal/platform"
)

// Entity is a monitored channel, account, or subreddit.
type Entity struct {
	ID           int64             `json:"id"`
	Platform     platform.Platform `json:"platform"`
	NaturalKey   string            `json:"natural_key"` // normalized: lowercase, sigils stripped
	AddedAt      time.Time         `json:"added_at"`
	IsMonitoring bool              `json:"is_monitoring"`
}

// ObservationKind classifies an observation row.
type ObservationKind string

const (
	KindStream ObservationKind = "stream" // identifier-less periodic snapshot
	KindTweet  ObservationKind = "tweet"
	KindVideo  ObservationKind = "video"
	KindPost   ObservationKind = "post"
)

// Observation is one time-stamped measurement tied to an entity. Rows with
// a NaturalID are upserted on re-collection; rows without one (stream
// snapshots) are append-only.
type Observation struct {
	ID          int64           `json:"id"`
	EntityID    int64           `json:"entity_id"`
	Kind        ObservationKind `json:"kind"`
	NaturalID   string          `json:"natural_id,omitempty"` // tweet/video/post id, empty for snapshots
	PlatformTS  time.Time       `json:"platform_ts,omitempty"`
	Metrics     string          `json:"metrics"` // JSON blob, one of the *Metrics structs
	CollectedAt time.Time       `json:"collected_at"`
	RefreshedAt time.Time       `json:"refreshed_at"`
}

// ChatMessage is a chat line attached to a stream snapshot observation.
type ChatMessage struct {
	ID            int64     `json:"id"`
	ObservationID int64     `json:"observation_id"`
	Username      string    `json:"username"`
	Text          string    `json:"text"`
	CollectedAt   time.Time `json:"collected_at"`
}

// MarshalMetrics encodes a typed metrics struct (one of the platform
// package's metric types) for the metrics column.
func MarshalMetrics(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalMetrics decodes a metrics column back into a typed struct.
func UnmarshalMetrics(blob string, v any) error {
	return json.Unmarshal([]byte(blob), v)
}

// Stats is a per-platform snapshot of row counts.
type Stats struct {
	Entities     map[string]int `json:"entities"`
	Observations map[string]int `json:"observations"`
	ChatMessages int            `json:"chat_messages"`
}

// Schema is applied on every open. One generic entity/observation pair
// covers all four platforms; platform-specific fields live in the
// metrics JSON blob.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	platform TEXT NOT NULL,
	natural_key TEXT NOT NULL,
	added_at DATETIME NOT NULL,
	is_monitoring BOOLEAN NOT NULL DEFAULT 0,
	UNIQUE(platform, natural_key)
);

CREATE TABLE IF NOT EXISTS observations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	natural_id TEXT NOT NULL DEFAULT '',
	platform_ts DATETIME,
	metrics TEXT NOT NULL DEFAULT '{}',
	collected_at DATETIME NOT NULL,
	refreshed_at DATETIME NOT NULL,
	FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_observations_entity ON observations(entity_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_observations_natural
	ON observations(entity_id, natural_id) WHERE natural_id != '';

CREATE TABLE IF NOT EXISTS chat_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	observation_id INTEGER NOT NULL,
	username TEXT NOT NULL,
	body TEXT NOT NULL,
	collected_at DATETIME NOT NULL,
	FOREIGN KEY (observation_id) REFERENCES observations(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_chat_observation ON chat_messages(observation_id);
`
