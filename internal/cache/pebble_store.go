package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/pebble"
)

const keyPrefix = "view/"

// PebbleStore implements Store using PebbleDB.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{
		MemTableSize:          16 << 20,
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 8,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func viewKey(view string) []byte { return []byte(keyPrefix + view) }

func (p *PebbleStore) Save(view string, snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode %s: %w", view, err)
	}
	// NoSync: the cache is advisory.
	if err := p.db.Set(viewKey(view), b, pebble.NoSync); err != nil {
		return fmt.Errorf("pebble set %s: %w", view, err)
	}
	return nil
}

func (p *PebbleStore) Load(view string) (Snapshot, bool, error) {
	v, closer, err := p.db.Get(viewKey(view))
	if errors.Is(err, pebble.ErrNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("pebble get %s: %w", view, err)
	}
	defer closer.Close()
	var snap Snapshot
	if err := json.Unmarshal(v, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode %s: %w", view, err)
	}
	return snap, true, nil
}

func (p *PebbleStore) Range(fn func(view string, snap Snapshot) error) error {
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte("view0"), // '0' sorts right after '/'
	})
	if err != nil {
		return fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		view := strings.TrimPrefix(string(it.Key()), keyPrefix)
		var snap Snapshot
		if err := json.Unmarshal(it.Value(), &snap); err != nil {
			return fmt.Errorf("decode %s: %w", view, err)
		}
		if err := fn(view, snap); err != nil {
			return err
		}
	}
	return it.Error()
}
