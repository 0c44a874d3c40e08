package store

import (
	"errors"
	"testing"
	"time"

	"github.com/streampulse/streampulse/internal/platform"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"Foo":        "foo",
		"  NASA  ":   "nasa",
		"@NASA":      "nasa",
		"#Ninja":     "ninja",
		"r/GoLang":   "golang",
		"/r/golang":  "golang",
		"already_ok": "already_ok",
	}
	for in, want := range cases {
		if got := NormalizeKey(in); got != want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAddEntityIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.AddEntity(platform.Twitch, "Foo")
	if err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	id2, err := s.AddEntity(platform.Twitch, "foo")
	if err != nil {
		t.Fatalf("AddEntity variant: %v", err)
	}
	id3, err := s.AddEntity(platform.Twitch, "@Foo")
	if err != nil {
		t.Fatalf("AddEntity sigil variant: %v", err)
	}
	if id1 != id2 || id1 != id3 {
		t.Errorf("case/sigil variants must map to one entity: %d %d %d", id1, id2, id3)
	}

	// Same key on a different platform is a different entity.
	other, err := s.AddEntity(platform.Reddit, "foo")
	if err != nil {
		t.Fatalf("AddEntity other platform: %v", err)
	}
	if other == id1 {
		t.Error("platforms must not share entity ids for the same key")
	}
}

func TestAddEntityValidation(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddEntity(platform.Twitch, "  @  "); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := s.AddEntity("myspace", "tom"); !errors.Is(err, ErrUnknownPlatform) {
		t.Errorf("expected ErrUnknownPlatform, got %v", err)
	}
}

func TestEntityLookups(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.AddEntity(platform.Reddit, "r/golang")

	e, err := s.Entity(id)
	if err != nil || e == nil {
		t.Fatalf("Entity: %v %v", e, err)
	}
	if e.NaturalKey != "golang" || e.Platform != platform.Reddit || e.IsMonitoring {
		t.Errorf("unexpected entity: %+v", e)
	}

	byKey, err := s.EntityByKey(platform.Reddit, "R/GOLANG")
	if err != nil || byKey == nil || byKey.ID != id {
		t.Fatalf("EntityByKey: %+v %v", byKey, err)
	}

	missing, err := s.Entity(9999)
	if err != nil || missing != nil {
		t.Errorf("missing entity should be (nil, nil), got %+v %v", missing, err)
	}

	if err := s.SetMonitoring(id, true); err != nil {
		t.Fatalf("SetMonitoring: %v", err)
	}
	e, _ = s.Entity(id)
	if !e.IsMonitoring {
		t.Error("monitoring flag not persisted")
	}
}

func TestUpsertObservationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.AddEntity(platform.Twitter, "nasa")

	first, _ := MarshalMetrics(&platform.TweetMetrics{Text: "launch!", Likes: 10})
	obs := &Observation{
		EntityID:  id,
		Kind:      KindTweet,
		NaturalID: "tweet-123",
		Metrics:   first,
	}
	if err := s.UpsertObservation(obs); err != nil {
		t.Fatalf("insert: %v", err)
	}
	originalCollected := obs.CollectedAt
	firstID := obs.ID

	time.Sleep(10 * time.Millisecond)

	updated, _ := MarshalMetrics(&platform.TweetMetrics{Text: "launch!", Likes: 999})
	again := &Observation{
		EntityID:  id,
		Kind:      KindTweet,
		NaturalID: "tweet-123",
		Metrics:   updated,
	}
	if err := s.UpsertObservation(again); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if again.ID != firstID {
		t.Errorf("refresh must reuse the row, got id %d want %d", again.ID, firstID)
	}

	rows, err := s.Observations(id, KindTweet, 0)
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one row for tweet-123, got %d", len(rows))
	}

	var m platform.TweetMetrics
	if err := UnmarshalMetrics(rows[0].Metrics, &m); err != nil {
		t.Fatalf("unmarshal metrics: %v", err)
	}
	if m.Likes != 999 {
		t.Errorf("metrics not refreshed: %+v", m)
	}
	if d := rows[0].CollectedAt.Sub(originalCollected); d < -time.Second || d > time.Second {
		t.Errorf("collected_at changed on refresh: %v != %v", rows[0].CollectedAt, originalCollected)
	}
	if rows[0].RefreshedAt.Before(rows[0].CollectedAt) {
		t.Errorf("refreshed_at behind collected_at: %v < %v", rows[0].RefreshedAt, rows[0].CollectedAt)
	}
}

func TestUpsertRequiresNaturalID(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.AddEntity(platform.Twitter, "nasa")
	err := s.UpsertObservation(&Observation{EntityID: id, Kind: KindTweet})
	if !errors.Is(err, ErrMissingNaturalID) {
		t.Errorf("expected ErrMissingNaturalID, got %v", err)
	}
}

func TestAppendSnapshotIsAppendOnly(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.AddEntity(platform.Twitch, "ninja")

	for i := 0; i < 3; i++ {
		blob, _ := MarshalMetrics(&platform.StreamState{Live: true, ViewerCount: 100 + i})
		if _, err := s.AppendSnapshot(&Observation{EntityID: id, Kind: KindStream, Metrics: blob}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	rows, _ := s.Observations(id, KindStream, 0)
	if len(rows) != 3 {
		t.Errorf("expected 3 snapshot rows, got %d", len(rows))
	}

	limited, _ := s.Observations(id, KindStream, 1)
	if len(limited) != 1 {
		t.Errorf("limit ignored, got %d rows", len(limited))
	}
}

func TestDeleteEntityCascades(t *testing.T) {
	s := newTestStore(t)
	doomed, _ := s.AddEntity(platform.Twitch, "doomed")
	keeper, _ := s.AddEntity(platform.Twitch, "keeper")

	blob, _ := MarshalMetrics(&platform.StreamState{Live: true})
	snapID, err := s.AppendSnapshot(&Observation{EntityID: doomed, Kind: KindStream, Metrics: blob})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AddChatMessages(snapID, []ChatMessage{
		{Username: "a", Text: "hi"},
		{Username: "b", Text: "hello"},
	}); err != nil {
		t.Fatalf("add chat: %v", err)
	}
	tweet, _ := MarshalMetrics(&platform.TweetMetrics{Text: "x"})
	if err := s.UpsertObservation(&Observation{EntityID: doomed, Kind: KindTweet, NaturalID: "t1", Metrics: tweet}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	keepSnap, _ := s.AppendSnapshot(&Observation{EntityID: keeper, Kind: KindStream, Metrics: blob})
	if err := s.AddChatMessages(keepSnap, []ChatMessage{{Username: "c", Text: "stay"}}); err != nil {
		t.Fatalf("add keeper chat: %v", err)
	}

	if err := s.DeleteEntity(doomed); err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}

	if e, _ := s.Entity(doomed); e != nil {
		t.Error("entity still present after delete")
	}
	if rows, _ := s.Observations(doomed, "", 0); len(rows) != 0 {
		t.Errorf("observations survived delete: %d", len(rows))
	}
	if msgs, _ := s.ChatMessages(snapID); len(msgs) != 0 {
		t.Errorf("chat messages survived delete: %d", len(msgs))
	}
	if n, err := s.orphanCount(); err != nil || n != 0 {
		t.Errorf("orphan rows after cascade: %d (%v)", n, err)
	}

	// The neighbor is untouched.
	if rows, _ := s.Observations(keeper, "", 0); len(rows) != 1 {
		t.Error("cascade bled into another entity")
	}
	if msgs, _ := s.ChatMessages(keepSnap); len(msgs) != 1 {
		t.Error("cascade deleted another entity's chat")
	}

	// Deleting again is a no-op.
	if err := s.DeleteEntity(doomed); err != nil {
		t.Errorf("repeat delete must be a no-op, got %v", err)
	}
}

func TestChatMessagesPreserveArrivalOrder(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.AddEntity(platform.Twitch, "ninja")
	blob, _ := MarshalMetrics(&platform.StreamState{Live: true})
	snapID, _ := s.AppendSnapshot(&Observation{EntityID: id, Kind: KindStream, Metrics: blob})

	in := []ChatMessage{
		{Username: "first", Text: "1"},
		{Username: "second", Text: "2"},
		{Username: "third", Text: "3"},
	}
	if err := s.AddChatMessages(snapID, in); err != nil {
		t.Fatalf("AddChatMessages: %v", err)
	}

	out, err := s.ChatMessages(snapID)
	if err != nil {
		t.Fatalf("ChatMessages: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	for i, m := range out {
		if m.Username != in[i].Username {
			t.Errorf("message %d out of order: %+v", i, m)
		}
	}
}

func TestStatistics(t *testing.T) {
	s := newTestStore(t)
	tw, _ := s.AddEntity(platform.Twitch, "ninja")
	s.AddEntity(platform.Reddit, "golang")

	blob, _ := MarshalMetrics(&platform.StreamState{Live: false})
	snapID, _ := s.AppendSnapshot(&Observation{EntityID: tw, Kind: KindStream, Metrics: blob})
	s.AddChatMessages(snapID, []ChatMessage{{Username: "a", Text: "x"}})

	stats, err := s.Statistics()
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.Entities["twitch"] != 1 || stats.Entities["reddit"] != 1 {
		t.Errorf("entity counts wrong: %+v", stats.Entities)
	}
	if stats.Observations["twitch"] != 1 || stats.Observations["reddit"] != 0 {
		t.Errorf("observation counts wrong: %+v", stats.Observations)
	}
	if stats.ChatMessages != 1 {
		t.Errorf("chat count wrong: %d", stats.ChatMessages)
	}
}
