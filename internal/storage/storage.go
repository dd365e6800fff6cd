// Package storage provides SQLite-backed persistence for canonical
// entities, the alias table, skipped pairs, and alert records.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mcqweb/goosealerts/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by point lookups when no row exists.
var ErrNotFound = errors.New("storage: not found")

// Store wraps a SQLite database for all persistence operations.
type Store struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/goosealerts/data.db.
func New(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "goosealerts", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id               TEXT PRIMARY KEY,
			display_name     TEXT NOT NULL,
			first_seen       INTEGER NOT NULL,
			last_seen        INTEGER NOT NULL,
			occurrence_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS entity_teams (
			entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
			team      TEXT NOT NULL,
			PRIMARY KEY (entity_id, team)
		)`,
		`CREATE TABLE IF NOT EXISTS aliases (
			variant_normalized TEXT PRIMARY KEY,
			entity_id          TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
			created_at         INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_aliases_entity ON aliases(entity_id)`,
		`CREATE TABLE IF NOT EXISTS skipped_pairs (
			name1      TEXT NOT NULL,
			name2      TEXT NOT NULL,
			skipped_at INTEGER NOT NULL,
			PRIMARY KEY (name1, name2)
		)`,
		`CREATE TABLE IF NOT EXISTS alert_records (
			entity_id           TEXT NOT NULL,
			market              TEXT NOT NULL,
			destination_id      TEXT NOT NULL,
			last_alerted_at     INTEGER NOT NULL,
			last_alerted_rating REAL NOT NULL,
			PRIMARY KEY (entity_id, market, destination_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_records_at ON alert_records(last_alerted_at)`,
		`CREATE TABLE IF NOT EXISTS summary_state (
			destination_id       TEXT PRIMARY KEY,
			last_summary_sent_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateEntity inserts a brand-new canonical entity with its teams.
func (s *Store) CreateEntity(e *models.CanonicalEntity) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid entity: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`
		INSERT INTO entities (id, display_name, first_seen, last_seen, occurrence_count)
		VALUES (?,?,?,?,?)`,
		e.ID, e.DisplayName, e.FirstSeen.UnixNano(), e.LastSeen.UnixNano(), e.OccurrenceCount,
	); err != nil {
		return fmt.Errorf("failed to insert entity: %w", err)
	}
	for team := range e.Teams {
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO entity_teams (entity_id, team) VALUES (?,?)`,
			e.ID, team,
		); err != nil {
			return fmt.Errorf("failed to insert entity team: %w", err)
		}
	}
	return tx.Commit()
}

// GetEntity loads one entity with its observed teams.
func (s *Store) GetEntity(id string) (*models.CanonicalEntity, error) {
	row := s.db.QueryRow(`
		SELECT id, display_name, first_seen, last_seen, occurrence_count
		FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	if err := s.loadTeams(e); err != nil {
		return nil, err
	}
	return e, nil
}

// ListEntities loads every entity with teams, for the offline merge scan.
func (s *Store) ListEntities() ([]*models.CanonicalEntity, error) {
	rows, err := s.db.Query(`
		SELECT id, display_name, first_seen, last_seen, occurrence_count
		FROM entities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var entities []*models.CanonicalEntity
	for rows.Next() {
		e, err := scanEntity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, e := range entities {
		if err := s.loadTeams(e); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

func (s *Store) loadTeams(e *models.CanonicalEntity) error {
	rows, err := s.db.Query(`SELECT team FROM entity_teams WHERE entity_id = ?`, e.ID)
	if err != nil {
		return fmt.Errorf("failed to query entity teams: %w", err)
	}
	defer rows.Close()

	e.Teams = make(map[string]struct{})
	for rows.Next() {
		var team string
		if err := rows.Scan(&team); err != nil {
			return fmt.Errorf("failed to scan team: %w", err)
		}
		e.Teams[team] = struct{}{}
	}
	return rows.Err()
}

// RecordSighting bumps lastSeen/occurrenceCount and records the team
// context if present. The entity must already exist.
func (s *Store) RecordSighting(entityID, team string, seenAt time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`
		UPDATE entities SET last_seen = ?, occurrence_count = occurrence_count + 1
		WHERE id = ?`, seenAt.UnixNano(), entityID)
	if err != nil {
		return fmt.Errorf("failed to record sighting: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if team != "" {
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO entity_teams (entity_id, team) VALUES (?,?)`,
			entityID, team,
		); err != nil {
			return fmt.Errorf("failed to record team: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteEntity removes an entity and, via cascade, its teams and aliases.
// Used only by explicit maintenance cleanup; entities are never removed
// automatically.
func (s *Store) DeleteEntity(id string) error {
	res, err := s.db.Exec(`DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MergeEntityStats folds one entity's teams and counters into another
// and deletes the source entity. Aliases must be re-pointed first.
func (s *Store) MergeEntityStats(fromID, intoID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO entity_teams (entity_id, team)
		SELECT ?, team FROM entity_teams WHERE entity_id = ?`, intoID, fromID); err != nil {
		return fmt.Errorf("failed to merge teams: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE entities SET
			occurrence_count = occurrence_count + (SELECT occurrence_count FROM entities WHERE id = ?),
			first_seen = MIN(first_seen, (SELECT first_seen FROM entities WHERE id = ?)),
			last_seen = MAX(last_seen, (SELECT last_seen FROM entities WHERE id = ?))
		WHERE id = ?`, fromID, fromID, fromID, intoID); err != nil {
		return fmt.Errorf("failed to merge counters: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM entities WHERE id = ?`, fromID); err != nil {
		return fmt.Errorf("failed to delete merged entity: %w", err)
	}
	return tx.Commit()
}

// AddAlias records variant→entity. The alias table is a pure function:
// inserting the same variant with a different target is an error, and
// only ReassignAlias may change an existing row.
func (s *Store) AddAlias(variantNormalized, entityID string) error {
	existing, err := s.GetAlias(variantNormalized)
	if err == nil {
		if existing == entityID {
			return nil // idempotent
		}
		return fmt.Errorf("alias %q already points to %q", variantNormalized, existing)
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, err := s.db.Exec(`
		INSERT INTO aliases (variant_normalized, entity_id, created_at)
		VALUES (?,?,?)`,
		variantNormalized, entityID, time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to insert alias: %w", err)
	}
	return nil
}

// ReassignAlias explicitly re-points a variant to another entity.
func (s *Store) ReassignAlias(variantNormalized, entityID string) error {
	if _, err := s.db.Exec(`
		INSERT INTO aliases (variant_normalized, entity_id, created_at)
		VALUES (?,?,?)
		ON CONFLICT(variant_normalized) DO UPDATE SET entity_id = excluded.entity_id`,
		variantNormalized, entityID, time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to reassign alias: %w", err)
	}
	return nil
}

// GetAlias returns the canonical entity ID a variant maps to.
func (s *Store) GetAlias(variantNormalized string) (string, error) {
	var entityID string
	err := s.db.QueryRow(`
		SELECT entity_id FROM aliases WHERE variant_normalized = ?`,
		variantNormalized,
	).Scan(&entityID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get alias: %w", err)
	}
	return entityID, nil
}

// AliasesFor lists every variant mapped to an entity.
func (s *Store) AliasesFor(entityID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT variant_normalized FROM aliases WHERE entity_id = ? ORDER BY variant_normalized`,
		entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query aliases: %w", err)
	}
	defer rows.Close()

	var variants []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// AddSkippedPair records that the pair must not be suggested again.
// The pair is stored sorted; the operation is idempotent.
func (s *Store) AddSkippedPair(a, b string) error {
	if a > b {
		a, b = b, a
	}
	if _, err := s.db.Exec(`
		INSERT OR IGNORE INTO skipped_pairs (name1, name2, skipped_at)
		VALUES (?,?,?)`,
		a, b, time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to insert skipped pair: %w", err)
	}
	return nil
}

// IsPairSkipped reports whether the unordered pair was skipped.
func (s *Store) IsPairSkipped(a, b string) (bool, error) {
	if a > b {
		a, b = b, a
	}
	var one int
	err := s.db.QueryRow(`
		SELECT 1 FROM skipped_pairs WHERE name1 = ? AND name2 = ?`, a, b,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check skipped pair: %w", err)
	}
	return true, nil
}

// GetAlertRecord loads the last-alerted record for a key.
func (s *Store) GetAlertRecord(entityID string, market models.Market, destinationID string) (*models.AlertRecord, error) {
	var rec models.AlertRecord
	var alertedAtNano int64
	err := s.db.QueryRow(`
		SELECT entity_id, market, destination_id, last_alerted_at, last_alerted_rating
		FROM alert_records
		WHERE entity_id = ? AND market = ? AND destination_id = ?`,
		entityID, string(market), destinationID,
	).Scan(&rec.EntityID, &rec.Market, &rec.DestinationID, &alertedAtNano, &rec.LastAlertedRating)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert record: %w", err)
	}
	rec.LastAlertedAt = time.Unix(0, alertedAtNano)
	return &rec, nil
}

// UpsertAlertRecord atomically creates or replaces the record for a key.
func (s *Store) UpsertAlertRecord(rec *models.AlertRecord) error {
	if _, err := s.db.Exec(`
		INSERT OR REPLACE INTO alert_records
			(entity_id, market, destination_id, last_alerted_at, last_alerted_rating)
		VALUES (?,?,?,?,?)`,
		rec.EntityID, string(rec.Market), rec.DestinationID,
		rec.LastAlertedAt.UnixNano(), rec.LastAlertedRating,
	); err != nil {
		return fmt.Errorf("failed to upsert alert record: %w", err)
	}
	return nil
}

// PurgeAlertRecordsBefore deletes records last alerted before cutoff,
// returning the number removed.
func (s *Store) PurgeAlertRecordsBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM alert_records WHERE last_alerted_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge alert records: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// LastSummarySentAt returns when a destination's summary last flushed,
// or the zero time if it never has.
func (s *Store) LastSummarySentAt(destinationID string) (time.Time, error) {
	var nano int64
	err := s.db.QueryRow(`
		SELECT last_summary_sent_at FROM summary_state WHERE destination_id = ?`,
		destinationID,
	).Scan(&nano)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get summary state: %w", err)
	}
	return time.Unix(0, nano), nil
}

// SetLastSummarySentAt records a successful summary flush.
func (s *Store) SetLastSummarySentAt(destinationID string, sentAt time.Time) error {
	if _, err := s.db.Exec(`
		INSERT OR REPLACE INTO summary_state (destination_id, last_summary_sent_at)
		VALUES (?,?)`,
		destinationID, sentAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to set summary state: %w", err)
	}
	return nil
}

// Stats returns row counts per table for the maintenance CLI.
func (s *Store) Stats() (map[string]int, error) {
	stats := make(map[string]int, 4)
	for _, table := range []string{"entities", "aliases", "skipped_pairs", "alert_records"} {
		var n int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = n
	}
	return stats, nil
}

func scanEntity(scan func(...any) error) (*models.CanonicalEntity, error) {
	var e models.CanonicalEntity
	var firstSeenNano, lastSeenNano int64
	if err := scan(&e.ID, &e.DisplayName, &firstSeenNano, &lastSeenNano, &e.OccurrenceCount); err != nil {
		return nil, err
	}
	e.FirstSeen = time.Unix(0, firstSeenNano)
	e.LastSeen = time.Unix(0, lastSeenNano)
	return &e, nil
}
