package board

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// FeatureLinkPreviews toggles link preview fetching for a board.
const FeatureLinkPreviews = "link_previews"

type Config struct {
	BoardID     string          `json:"board_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Features    map[string]bool `json:"features"`
}

type File struct {
	Boards []Config `json:"boards"`
}

type Registry struct {
	mu     sync.RWMutex
	boards map[string]*Config
}

func NewRegistry() *Registry {
	return &Registry{
		boards: make(map[string]*Config),
	}
}

func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boards config: %w", err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse boards config: %w", err)
	}

	registry := NewRegistry()
	for i := range file.Boards {
		if file.Boards[i].BoardID == "" {
			return nil, fmt.Errorf("board %d has no board_id", i)
		}
		registry.Register(&file.Boards[i])
	}
	return registry, nil
}

func (r *Registry) Register(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boards[cfg.BoardID] = cfg
}

func (r *Registry) Get(boardID string) *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.boards[boardID]
}

func (r *Registry) Exists(boardID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.boards[boardID]
	return ok
}

// HasFeature reports whether a board enables feature. Features missing from
// the board's config default to on.
func (r *Registry) HasFeature(boardID, feature string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.boards[boardID]
	if !ok {
		return false
	}
	enabled, set := cfg.Features[feature]
	return !set || enabled
}

// All returns the boards sorted by ID.
func (r *Registry) All() []*Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Config, 0, len(r.boards))
	for _, cfg := range r.boards {
		result = append(result, cfg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].BoardID < result[j].BoardID })
	return result
}
