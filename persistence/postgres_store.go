package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"soundscape/server/models"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresStore handles database operations using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL storage manager
func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (dm *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		room TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS tile_sequences (
		room TEXT NOT NULL,
		tile_id INTEGER NOT NULL,
		sequence JSONB NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (room, tile_id)
	);

	CREATE TABLE IF NOT EXISTS renders (
		id SERIAL PRIMARY KEY,
		room TEXT NOT NULL,
		generation BIGINT NOT NULL,
		output_path TEXT NOT NULL,
		sources INTEGER NOT NULL,
		skipped JSONB NOT NULL,
		peak DOUBLE PRECISION NOT NULL,
		limited BOOLEAN NOT NULL,
		duration_ms BIGINT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS renders_room_idx ON renders (room, id DESC);
	`

	_, err := dm.db.Exec(schema)
	return err
}

// SavePlayer saves a player to the database
func (dm *PostgresStore) SavePlayer(player *models.Player) error {
	query := `
	INSERT INTO players (id, username, x, y, room)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id)
	DO UPDATE SET
		x = $3, y = $4, room = $5,
		updated_at = NOW()
	`

	if _, err := dm.db.Exec(query, player.ID, player.Username, player.X, player.Y, player.Room); err != nil {
		return fmt.Errorf("failed to save player: %w", err)
	}
	return nil
}

// LoadPlayer loads a player from the database by ID
func (dm *PostgresStore) LoadPlayer(playerID string) (*models.Player, error) {
	query := `SELECT id, username, x, y, room, created_at, updated_at FROM players WHERE id = $1`
	return dm.scanPlayer(dm.db.QueryRow(query, playerID), playerID)
}

// LoadPlayerByUsername loads a player from the database by username
func (dm *PostgresStore) LoadPlayerByUsername(username string) (*models.Player, error) {
	query := `SELECT id, username, x, y, room, created_at, updated_at FROM players WHERE username = $1`
	return dm.scanPlayer(dm.db.QueryRow(query, username), username)
}

func (dm *PostgresStore) scanPlayer(row *sql.Row, key string) (*models.Player, error) {
	var player models.Player
	err := row.Scan(&player.ID, &player.Username, &player.X, &player.Y, &player.Room, &player.CreatedAt, &player.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("player %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load player: %w", err)
	}
	return &player, nil
}

func (dm *PostgresStore) SaveSequence(room string, tileID int, sequence []int) error {
	seqJSON, err := marshalInts(sequence)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO tile_sequences (room, tile_id, sequence)
	VALUES ($1, $2, $3)
	ON CONFLICT (room, tile_id)
	DO UPDATE SET sequence = $3, updated_at = NOW()
	`
	if _, err := dm.db.Exec(query, room, tileID, seqJSON); err != nil {
		return fmt.Errorf("failed to save sequence: %w", err)
	}
	return nil
}

func (dm *PostgresStore) LoadSequences(room string) (map[int][]int, error) {
	rows, err := dm.db.Query(`SELECT tile_id, sequence FROM tile_sequences WHERE room = $1`, room)
	if err != nil {
		return nil, fmt.Errorf("failed to load sequences: %w", err)
	}
	defer rows.Close()

	out := make(map[int][]int)
	for rows.Next() {
		var (
			tileID  int
			seqJSON string
		)
		if err := rows.Scan(&tileID, &seqJSON); err != nil {
			return nil, fmt.Errorf("failed to scan sequence: %w", err)
		}
		var seq []int
		if err := json.Unmarshal([]byte(seqJSON), &seq); err != nil {
			return nil, fmt.Errorf("tile %d: bad sequence: %w", tileID, err)
		}
		out[tileID] = seq
	}
	return out, rows.Err()
}

func (dm *PostgresStore) SaveRender(record *models.RenderRecord) error {
	skipped, err := json.Marshal(nonNil(record.Skipped))
	if err != nil {
		return err
	}

	query := `
	INSERT INTO renders (room, generation, output_path, sources, skipped, peak, limited, duration_ms, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = dm.db.Exec(query,
		record.Room, int64(record.Generation), record.OutputPath, record.Sources,
		string(skipped), record.Peak, record.Limited, record.DurationMS, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save render: %w", err)
	}
	return nil
}

func (dm *PostgresStore) RecentRenders(room string, limit int) ([]models.RenderRecord, error) {
	query := `
	SELECT room, generation, output_path, sources, skipped, peak, limited, duration_ms, created_at
	FROM renders WHERE room = $1 ORDER BY id DESC LIMIT $2
	`
	rows, err := dm.db.Query(query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load renders: %w", err)
	}
	defer rows.Close()
	return scanRenders(rows)
}

// Close closes the database connection
func (dm *PostgresStore) Close() error {
	log.Println("Closing database connection...")
	return dm.db.Close()
}

func marshalInts(seq []int) (string, error) {
	data, err := json.Marshal(nonNil(seq))
	if err != nil {
		return "", fmt.Errorf("marshal sequence: %w", err)
	}
	return string(data), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func scanRenders(rows *sql.Rows) ([]models.RenderRecord, error) {
	var out []models.RenderRecord
	for rows.Next() {
		var (
			rec        models.RenderRecord
			generation int64
			skipped    string
		)
		err := rows.Scan(&rec.Room, &generation, &rec.OutputPath, &rec.Sources, &skipped,
			&rec.Peak, &rec.Limited, &rec.DurationMS, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan render: %w", err)
		}
		rec.Generation = uint64(generation)
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
