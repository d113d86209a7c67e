package sink

import (
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	ldbutil "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/1ureka/pullpipe/internal/util"
)

// leveldb tuning; streams are written once and read back sequentially, so a
// small cache is enough.
const (
	leveldbHandles = 64
	leveldbCache   = 16 * opt.MiB
)

type levelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a LevelDB chunk store at path, recovering
// it if the manifest is corrupted.
func OpenLevelDB(path string) (*ChunkStore, error) {
	o := &opt.Options{
		OpenFilesCacheCapacity: leveldbHandles,
		BlockCacheCapacity:     leveldbCache / 2,
		WriteBuffer:            leveldbCache / 4,
		Filter:                 filter.NewBloomFilter(10),
	}
	db, err := leveldb.OpenFile(path, o)
	if _, corrupted := err.(*lerrors.ErrCorrupted); corrupted {
		util.LogWarning("leveldb at %s is corrupted, recovering", path)
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	return &ChunkStore{kv: &levelDB{db: db}, path: path}, nil
}

func (l *levelDB) put(key, value []byte, sync bool) error {
	return l.db.Put(key, value, &opt.WriteOptions{Sync: sync})
}

func (l *levelDB) scan(prefix []byte, fn func(key, value []byte) error) error {
	it := l.db.NewIterator(ldbutil.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

func (l *levelDB) close() error {
	return l.db.Close()
}
