package sink

import (
	"github.com/cockroachdb/pebble"
)

const pebbleCache = 16 << 20

type pebbleDB struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a Pebble chunk store at path.
func OpenPebble(path string) (*ChunkStore, error) {
	cache := pebble.NewCache(pebbleCache)
	defer cache.Unref()

	db, err := pebble.Open(path, &pebble.Options{
		Cache:        cache,
		MemTableSize: pebbleCache / 2,
	})
	if err != nil {
		return nil, err
	}
	return &ChunkStore{kv: &pebbleDB{db: db}, path: path}, nil
}

func (p *pebbleDB) put(key, value []byte, sync bool) error {
	wo := pebble.NoSync
	if sync {
		wo = pebble.Sync
	}
	return p.db.Set(key, value, wo)
}

func (p *pebbleDB) scan(prefix []byte, fn func(key, value []byte) error) error {
	it := p.db.NewIter(prefixRange(prefix))
	for valid := it.First(); valid; valid = it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			_ = it.Close()
			return err
		}
	}
	return it.Close()
}

func (p *pebbleDB) close() error {
	return p.db.Close()
}

// prefixRange bounds an iterator to keys starting with prefix.
func prefixRange(prefix []byte) *pebble.IterOptions {
	var limit []byte
	for i := len(prefix) - 1; i >= 0; i-- {
		if c := prefix[i]; c < 0xff {
			limit = make([]byte, i+1)
			copy(limit, prefix)
			limit[i] = c + 1
			break
		}
	}
	return &pebble.IterOptions{LowerBound: prefix, UpperBound: limit}
}
