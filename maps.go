package main

import (
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrNoMaps = errors.New("no valid maps found")

// MapLibrary is the set of validated layouts available for a round
type MapLibrary struct {
	maps []*GridMap
}

// NewMapLibrary builds a library from already loaded maps
func NewMapLibrary(maps ...*GridMap) (*MapLibrary, error) {
	if len(maps) == 0 {
		return nil, ErrNoMaps
	}
	return &MapLibrary{maps: maps}, nil
}

// LoadMapDir loads every *.txt file in dir. Bad files are logged and skipped;
// an empty result is an error.
func LoadMapDir(dir string, width, height int) (*MapLibrary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading maps dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var maps []*GridMap
	for _, fname := range names {
		data, err := os.ReadFile(filepath.Join(dir, fname))
		if err != nil {
			log.Printf("map %s: %v", fname, err)
			continue
		}
		name := strings.TrimSuffix(fname, ".txt")
		m, err := ParseGridMap(name, string(data), width, height)
		if err != nil {
			log.Printf("map %s rejected: %v", fname, err)
			continue
		}
		log.Printf("map %s loaded (%d spawns)", name, len(m.FindSpawnPositions()))
		maps = append(maps, m)
	}
	if len(maps) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoMaps, dir)
	}
	return &MapLibrary{maps: maps}, nil
}

// Len returns the number of maps
func (l *MapLibrary) Len() int { return len(l.maps) }

// Pick chooses a map with at least `players` spawn tiles, falling back to any
// map when none qualifies. The returned map is a fresh copy.
func (l *MapLibrary) Pick(rng *rand.Rand, players int) *GridMap {
	var suitable []*GridMap
	for _, m := range l.maps {
		if len(m.FindSpawnPositions()) >= players {
			suitable = append(suitable, m)
		}
	}
	if len(suitable) == 0 {
		log.Printf("no map fits %d players, picking any", players)
		suitable = l.maps
	}
	return suitable[rng.IntN(len(suitable))].Clone()
}
