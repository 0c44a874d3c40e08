// Package store holds the ephemeral per-session database: entities,
// observation records, and chat messages. Everything lives in an
// in-memory SQLite database and is gone when the process exits.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/streampulse/streampulse/internal/platform"

	_ "modernc.org/sqlite"
)

var (
	// ErrEmptyKey is returned when a natural key normalizes to nothing.
	ErrEmptyKey = errors.New("store: empty natural key")
	// ErrUnknownPlatform is returned for a platform this build doesn't know.
	ErrUnknownPlatform = errors.New("store: unknown platform")
	// ErrMissingNaturalID is returned when an upsert has no identifier to key on.
	ErrMissingNaturalID = errors.New("store: observation has no natural id")
)

// Store is the ephemeral session database.
type Store struct {
	db *sql.DB
}

// New opens a fresh in-memory store and applies the schema.
func New() (*Store, error) {
	db, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}
	// Every pooled connection would get its own private :memory: database;
	// a single connection keeps all callers on the same one and serializes
	// writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database. The data is unrecoverable afterwards.
func (s *Store) Close() error {
	return s.db.Close()
}

// NormalizeKey canonicalizes a natural key: trims whitespace, lowercases,
// and strips leading sigils ("@", "#", "r/", "/r/").
func NormalizeKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.TrimPrefix(k, "/r/")
	k = strings.TrimPrefix(k, "r/")
	k = strings.TrimPrefix(k, "@")
	k = strings.TrimPrefix(k, "#")
	return strings.TrimSpace(k)
}

// AddEntity gets or creates an entity by normalized natural key and
// returns its id. Re-adding the same key (in any case/sigil variant)
// returns the existing id.
func (s *Store) AddEntity(p platform.Platform, naturalKey string) (int64, error) {
	if !p.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPlatform, p)
	}
	key := NormalizeKey(naturalKey)
	if key == "" {
		return 0, ErrEmptyKey
	}

	_, err := s.db.Exec(`
		INSERT INTO entities (platform, natural_key, added_at, is_monitoring)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(platform, natural_key) DO NOTHING`,
		string(p), key, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to add entity: %w", err)
	}

	var id int64
	err = s.db.QueryRow(`SELECT id FROM entities WHERE platform = ? AND natural_key = ?`,
		string(p), key).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve entity id: %w", err)
	}
	return id, nil
}

// Entity returns an entity by id, or nil if it does not exist.
func (s *Store) Entity(id int64) (*Entity, error) {
	return s.scanEntity(s.db.QueryRow(`
		SELECT id, platform, natural_key, added_at, is_monitoring
		FROM entities WHERE id = ?`, id))
}

// EntityByKey returns an entity by platform and (un-normalized) natural
// key, or nil if it does not exist.
func (s *Store) EntityByKey(p platform.Platform, naturalKey string) (*Entity, error) {
	return s.scanEntity(s.db.QueryRow(`
		SELECT id, platform, natural_key, added_at, is_monitoring
		FROM entities WHERE platform = ? AND natural_key = ?`,
		string(p), NormalizeKey(naturalKey)))
}

func (s *Store) scanEntity(row *sql.Row) (*Entity, error) {
	var e Entity
	var p string
	err := row.Scan(&e.ID, &p, &e.NaturalKey, &e.AddedAt, &e.IsMonitoring)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Platform = platform.Platform(p)
	return &e, nil
}

// Entities lists all entities for a platform, oldest first.
func (s *Store) Entities(p platform.Platform) ([]*Entity, error) {
	rows, err := s.db.Query(`
		SELECT id, platform, natural_key, added_at, is_monitoring
		FROM entities WHERE platform = ? ORDER BY id`, string(p))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		var e Entity
		var pf string
		if err := rows.Scan(&e.ID, &pf, &e.NaturalKey, &e.AddedAt, &e.IsMonitoring); err != nil {
			return nil, err
		}
		e.Platform = platform.Platform(pf)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// SetMonitoring flips the monitoring flag. Missing ids are a no-op.
func (s *Store) SetMonitoring(entityID int64, monitoring bool) error {
	_, err := s.db.Exec(`UPDATE entities SET is_monitoring = ? WHERE id = ?`, monitoring, entityID)
	return err
}

// UpsertObservation inserts an observation on first sight of its natural
// identifier, or refreshes the mutable metric fields of the existing row.
// The original collected_at and platform timestamp are left untouched on
// refresh. obs.ID is set to the row id either way.
func (s *Store) UpsertObservation(obs *Observation) error {
	if obs.NaturalID == "" {
		return ErrMissingNaturalID
	}
	now := time.Now().UTC()
	if obs.CollectedAt.IsZero() {
		obs.CollectedAt = now
	}
	obs.RefreshedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRow(`SELECT id FROM observations WHERE entity_id = ? AND natural_id = ?`,
		obs.EntityID, obs.NaturalID).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.Exec(`
			INSERT INTO observations (entity_id, kind, natural_id, platform_ts, metrics, collected_at, refreshed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			obs.EntityID, string(obs.Kind), obs.NaturalID, nullableTime(obs.PlatformTS), obs.Metrics, obs.CollectedAt, obs.RefreshedAt)
		if err != nil {
			return fmt.Errorf("failed to insert observation: %w", err)
		}
		obs.ID, _ = res.LastInsertId()
	case err != nil:
		return err
	default:
		_, err = tx.Exec(`UPDATE observations SET metrics = ?, refreshed_at = ? WHERE id = ?`,
			obs.Metrics, obs.RefreshedAt, existing)
		if err != nil {
			return fmt.Errorf("failed to refresh observation: %w", err)
		}
		obs.ID = existing
	}
	return tx.Commit()
}

// AppendSnapshot unconditionally inserts an identifier-less observation
// (periodic stream-status snapshot) and returns the new row id.
func (s *Store) AppendSnapshot(obs *Observation) (int64, error) {
	now := time.Now().UTC()
	if obs.CollectedAt.IsZero() {
		obs.CollectedAt = now
	}
	obs.RefreshedAt = now
	obs.NaturalID = ""

	res, err := s.db.Exec(`
		INSERT INTO observations (entity_id, kind, natural_id, platform_ts, metrics, collected_at, refreshed_at)
		VALUES (?, ?, '', ?, ?, ?, ?)`,
		obs.EntityID, string(obs.Kind), nullableTime(obs.PlatformTS), obs.Metrics, obs.CollectedAt, obs.RefreshedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to append snapshot: %w", err)
	}
	obs.ID, _ = res.LastInsertId()
	return obs.ID, nil
}

// AddChatMessages bulk-inserts chat lines under a snapshot observation
// in one transaction.
func (s *Store) AddChatMessages(observationID int64, msgs []ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO chat_messages (observation_id, username, body, collected_at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range msgs {
		at := m.CollectedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if _, err := stmt.Exec(observationID, m.Username, m.Text, at); err != nil {
			return fmt.Errorf("failed to insert chat message: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteEntity removes an entity and every observation and chat message
// that hangs off it, in one transaction. Deleting a missing id is a no-op.
func (s *Store) DeleteEntity(entityID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Dependency order: chat messages, observations, entity. The schema's
	// ON DELETE CASCADE would cover this too; the explicit deletes keep the
	// ordering visible and work even with foreign_keys off.
	if _, err := tx.Exec(`
		DELETE FROM chat_messages WHERE observation_id IN
			(SELECT id FROM observations WHERE entity_id = ?)`, entityID); err != nil {
		return fmt.Errorf("failed to delete chat messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM observations WHERE entity_id = ?`, entityID); err != nil {
		return fmt.Errorf("failed to delete observations: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM entities WHERE id = ?`, entityID); err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	return tx.Commit()
}

// Observations lists records for an entity, newest collection first.
// kind == "" matches all kinds; limit <= 0 means no limit.
func (s *Store) Observations(entityID int64, kind ObservationKind, limit int) ([]*Observation, error) {
	query := `
		SELECT id, entity_id, kind, natural_id, platform_ts, metrics, collected_at, refreshed_at
		FROM observations WHERE entity_id = ?`
	args := []any{entityID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY collected_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Observation
	for rows.Next() {
		var o Observation
		var k string
		var pts sql.NullTime
		if err := rows.Scan(&o.ID, &o.EntityID, &k, &o.NaturalID, &pts, &o.Metrics, &o.CollectedAt, &o.RefreshedAt); err != nil {
			return nil, err
		}
		o.Kind = ObservationKind(k)
		if pts.Valid {
			o.PlatformTS = pts.Time
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// ChatMessages lists the chat lines under an observation in arrival order.
func (s *Store) ChatMessages(observationID int64) ([]*ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, observation_id, username, body, collected_at
		FROM chat_messages WHERE observation_id = ? ORDER BY id`, observationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.ObservationID, &m.Username, &m.Text, &m.CollectedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Statistics recomputes per-platform row counts. Never cached.
func (s *Store) Statistics() (*Stats, error) {
	stats := &Stats{
		Entities:     make(map[string]int),
		Observations: make(map[string]int),
	}

	rows, err := s.db.Query(`SELECT platform, COUNT(*) FROM entities GROUP BY platform`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, err
		}
		stats.Entities[p] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	orows, err := s.db.Query(`
		SELECT e.platform, COUNT(*)
		FROM observations o JOIN entities e ON e.id = o.entity_id
		GROUP BY e.platform`)
	if err != nil {
		return nil, err
	}
	defer orows.Close()
	for orows.Next() {
		var p string
		var n int
		if err := orows.Scan(&p, &n); err != nil {
			return nil, err
		}
		stats.Observations[p] = n
	}
	if err := orows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chat_messages`).Scan(&stats.ChatMessages); err != nil {
		return nil, err
	}
	return stats, nil
}

// orphanCount returns rows whose parent is gone. It backs the cascade
// integrity tests; a non-zero result is an implementation bug.
func (s *Store) orphanCount() (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM observations o
				WHERE NOT EXISTS (SELECT 1 FROM entities e WHERE e.id = o.entity_id))
			+
			(SELECT COUNT(*) FROM chat_messages c
				WHERE NOT EXISTS (SELECT 1 FROM observations o WHERE o.id = c.observation_id))`).Scan(&n)
	return n, err
}
