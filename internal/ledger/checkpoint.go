package ledger

import (
	"encoding/json"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
)

// Checkpoint is a domain key's last known journal_hash, cached so a hot
// actor does not round-trip to Postgres on every post just to learn its
// own prev_hash.
type Checkpoint struct {
	DomainKey string
	LastHash  string
	UpdatedAt time.Time
}

// CheckpointCache stores Checkpoints. It is never authoritative: a cache
// miss, restart, or corruption only costs a fallback read from the
// journal store (Store.GetLastHash), never an incorrect chain.
type CheckpointCache interface {
	Get(domainKey string) (Checkpoint, bool)
	Put(Checkpoint) error
	Close() error
}

// memCheckpointCache is an in-process map, used in tests and whenever no
// on-disk cache directory is configured.
type memCheckpointCache struct {
	data map[string]Checkpoint
}

func newMemCheckpointCache() *memCheckpointCache {
	return &memCheckpointCache{data: make(map[string]Checkpoint)}
}

func (c *memCheckpointCache) Get(domainKey string) (Checkpoint, bool) {
	cp, ok := c.data[domainKey]
	return cp, ok
}

func (c *memCheckpointCache) Put(cp Checkpoint) error {
	cp.UpdatedAt = timeNow()
	c.data[cp.DomainKey] = cp
	return nil
}

func (c *memCheckpointCache) Close() error { return nil }

// LevelDBCheckpointCache persists checkpoints to an embedded LevelDB
// store, adapted from the teacher's storage.LevelDB key-value wrapper: one
// small on-disk store per posting-engine process, warming actor restarts
// without waiting on the primary database.
type LevelDBCheckpointCache struct {
	db *leveldb.DB
}

// NewLevelDBCheckpointCache opens (or creates) the on-disk checkpoint
// store at path.
func NewLevelDBCheckpointCache(path string) (*LevelDBCheckpointCache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBCheckpointCache{db: db}, nil
}

func (c *LevelDBCheckpointCache) Get(domainKey string) (Checkpoint, bool) {
	raw, err := c.db.Get([]byte(domainKey), nil)
	if err != nil {
		return Checkpoint{}, false
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return Checkpoint{}, false
	}
	return cp, true
}

func (c *LevelDBCheckpointCache) Put(cp Checkpoint) error {
	cp.UpdatedAt = timeNow()
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return c.db.Put([]byte(cp.DomainKey), raw, nil)
}

func (c *LevelDBCheckpointCache) Close() error { return c.db.Close() }

func timeNow() time.Time { return time.Now().UTC() }
