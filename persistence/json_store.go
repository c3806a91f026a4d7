package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"sync"

	"soundscape/server/models"
)

// maxJSONRenders bounds the render history kept per room in the JSON file.
const maxJSONRenders = 100

// JSONStore handles data persistence using a local JSON file
type JSONStore struct {
	filePath string
	mutex    sync.RWMutex
	data     *JSONData
}

// JSONData represents the structure of the JSON database
type JSONData struct {
	Players   map[string]*models.Player        `json:"players"`
	Sequences map[string]map[string][]int      `json:"sequences"`
	Renders   map[string][]models.RenderRecord `json:"renders"`
}

// NewJSONStore creates a new JSON storage manager
func NewJSONStore(filePath string) (*JSONStore, error) {
	store := &JSONStore{
		filePath: filePath,
		data: &JSONData{
			Players:   make(map[string]*models.Player),
			Sequences: make(map[string]map[string][]int),
			Renders:   make(map[string][]models.RenderRecord),
		},
	}

	if _, err := os.Stat(filePath); err == nil {
		if err := store.loadFromFile(); err != nil {
			return nil, fmt.Errorf("failed to load JSON store: %w", err)
		}
	} else {
		if err := store.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to create JSON store file: %w", err)
		}
	}

	return store, nil
}

func (js *JSONStore) loadFromFile() error {
	js.mutex.Lock()
	defer js.mutex.Unlock()

	file, err := os.ReadFile(js.filePath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(file, js.data); err != nil {
		return err
	}
	// Files written before a section existed decode it as nil.
	if js.data.Players == nil {
		js.data.Players = make(map[string]*models.Player)
	}
	if js.data.Sequences == nil {
		js.data.Sequences = make(map[string]map[string][]int)
	}
	if js.data.Renders == nil {
		js.data.Renders = make(map[string][]models.RenderRecord)
	}
	return nil
}

// saveToFile writes the whole document; callers must not hold the mutex.
func (js *JSONStore) saveToFile() error {
	js.mutex.RLock()
	data, err := json.MarshalIndent(js.data, "", "  ")
	js.mutex.RUnlock()
	if err != nil {
		return err
	}

	tmp := js.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, js.filePath)
}

// SavePlayer saves a player to the store
func (js *JSONStore) SavePlayer(player *models.Player) error {
	js.mutex.Lock()
	stored := *player
	js.data.Players[player.ID] = &stored
	js.mutex.Unlock()

	return js.saveToFile()
}

// LoadPlayer loads a player by ID
func (js *JSONStore) LoadPlayer(playerID string) (*models.Player, error) {
	js.mutex.RLock()
	defer js.mutex.RUnlock()

	player, exists := js.data.Players[playerID]
	if !exists {
		return nil, fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}
	out := *player
	return &out, nil
}

// LoadPlayerByUsername loads a player by username
func (js *JSONStore) LoadPlayerByUsername(username string) (*models.Player, error) {
	js.mutex.RLock()
	defer js.mutex.RUnlock()

	for _, player := range js.data.Players {
		if player.Username == username {
			out := *player
			return &out, nil
		}
	}
	return nil, fmt.Errorf("player %q: %w", username, ErrNotFound)
}

func (js *JSONStore) SaveSequence(room string, tileID int, sequence []int) error {
	js.mutex.Lock()
	tiles, ok := js.data.Sequences[room]
	if !ok {
		tiles = make(map[string][]int)
		js.data.Sequences[room] = tiles
	}
	seq := slices.Clone(sequence)
	if seq == nil {
		seq = []int{}
	}
	tiles[strconv.Itoa(tileID)] = seq
	js.mutex.Unlock()

	return js.saveToFile()
}

func (js *JSONStore) LoadSequences(room string) (map[int][]int, error) {
	js.mutex.RLock()
	defer js.mutex.RUnlock()

	out := make(map[int][]int)
	for key, seq := range js.data.Sequences[room] {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("room %s: bad tile key %q: %w", room, key, err)
		}
		out[id] = slices.Clone(seq)
	}
	return out, nil
}

func (js *JSONStore) SaveRender(record *models.RenderRecord) error {
	js.mutex.Lock()
	history := append(js.data.Renders[record.Room], *record)
	if len(history) > maxJSONRenders {
		history = history[len(history)-maxJSONRenders:]
	}
	js.data.Renders[record.Room] = history
	js.mutex.Unlock()

	return js.saveToFile()
}

func (js *JSONStore) RecentRenders(room string, limit int) ([]models.RenderRecord, error) {
	js.mutex.RLock()
	defer js.mutex.RUnlock()

	history := js.data.Renders[room]
	out := make([]models.RenderRecord, 0, min(limit, len(history)))
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

// Close closes the store (no-op for JSON store)
func (js *JSONStore) Close() error {
	return nil
}
