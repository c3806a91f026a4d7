package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"soundscape/server/models"
)

// SQLiteStore keeps everything in a single embedded database file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{db: db}
	if err := store.initPragmas(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			room TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tile_sequences (
			room TEXT NOT NULL,
			tile_id INTEGER NOT NULL,
			sequence TEXT NOT NULL,
			PRIMARY KEY (room, tile_id)
		);`,
		`CREATE TABLE IF NOT EXISTS renders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room TEXT NOT NULL,
			generation INTEGER NOT NULL,
			output_path TEXT NOT NULL,
			sources INTEGER NOT NULL,
			skipped TEXT NOT NULL,
			peak REAL NOT NULL,
			limited INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS renders_room_idx ON renders (room, id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SavePlayer(player *models.Player) error {
	now := time.Now().UTC()
	created := player.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := s.db.Exec(`
		INSERT INTO players (id, username, x, y, room, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET x = excluded.x, y = excluded.y, room = excluded.room, updated_at = excluded.updated_at`,
		player.ID, player.Username, player.X, player.Y, player.Room, formatTime(created), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to save player: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadPlayer(playerID string) (*models.Player, error) {
	return s.scanPlayer(s.db.QueryRow(`SELECT id, username, x, y, room, created_at, updated_at FROM players WHERE id = ?`, playerID), playerID)
}

func (s *SQLiteStore) LoadPlayerByUsername(username string) (*models.Player, error) {
	return s.scanPlayer(s.db.QueryRow(`SELECT id, username, x, y, room, created_at, updated_at FROM players WHERE username = ?`, username), username)
}

func (s *SQLiteStore) scanPlayer(row *sql.Row, key string) (*models.Player, error) {
	var (
		player           models.Player
		created, updated string
	)
	if err := row.Scan(&player.ID, &player.Username, &player.X, &player.Y, &player.Room, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("player %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load player: %w", err)
	}
	player.CreatedAt = parseTime(created)
	player.UpdatedAt = parseTime(updated)
	return &player, nil
}

func (s *SQLiteStore) SaveSequence(room string, tileID int, sequence []int) error {
	seqJSON, err := marshalInts(sequence)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO tile_sequences (room, tile_id, sequence) VALUES (?, ?, ?)
		ON CONFLICT(room, tile_id) DO UPDATE SET sequence = excluded.sequence`,
		room, tileID, seqJSON)
	if err != nil {
		return fmt.Errorf("failed to save sequence: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSequences(room string) (map[int][]int, error) {
	rows, err := s.db.Query(`SELECT tile_id, sequence FROM tile_sequences WHERE room = ?`, room)
	if err != nil {
		return nil, fmt.Errorf("failed to load sequences: %w", err)
	}
	defer rows.Close()

	out := make(map[int][]int)
	for rows.Next() {
		var (
			tileID  int
			seqJSON string
			seq     []int
		)
		if err := rows.Scan(&tileID, &seqJSON); err != nil {
			return nil, fmt.Errorf("failed to scan sequence: %w", err)
		}
		if err := json.Unmarshal([]byte(seqJSON), &seq); err != nil {
			return nil, fmt.Errorf("tile %d: bad sequence: %w", tileID, err)
		}
		out[tileID] = seq
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveRender(record *models.RenderRecord) error {
	skipped, err := json.Marshal(nonNil(record.Skipped))
	if err != nil {
		return err
	}
	created := record.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.Exec(`
		INSERT INTO renders (room, generation, output_path, sources, skipped, peak, limited, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Room, int64(record.Generation), record.OutputPath, record.Sources, string(skipped),
		record.Peak, record.Limited, record.DurationMS, formatTime(created))
	if err != nil {
		return fmt.Errorf("failed to save render: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentRenders(room string, limit int) ([]models.RenderRecord, error) {
	rows, err := s.db.Query(`
		SELECT room, generation, output_path, sources, skipped, peak, limited, duration_ms, created_at
		FROM renders WHERE room = ? ORDER BY id DESC LIMIT ?`, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load renders: %w", err)
	}
	defer rows.Close()

	var out []models.RenderRecord
	for rows.Next() {
		var (
			rec        models.RenderRecord
			generation int64
			skipped    string
			created    string
		)
		err := rows.Scan(&rec.Room, &generation, &rec.OutputPath, &rec.Sources, &skipped,
			&rec.Peak, &rec.Limited, &rec.DurationMS, &created)
		if err != nil {
			return nil, fmt.Errorf("failed to scan render: %w", err)
		}
		rec.Generation = uint64(generation)
		rec.CreatedAt = parseTime(created)
		if err := json.Unmarshal([]byte(skipped), &rec.Skipped); err != nil {
			return nil, fmt.Errorf("bad skipped list: %w", err)
		}
		if len(rec.Skipped) == 0 {
			rec.Skipped = nil
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
