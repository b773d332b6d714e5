package store

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// levelStore is the embedded-file-backed BlockStore backend, for a
// single process running against its own data directory.
type levelStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if absent) a LevelDB database at dir.
func OpenLevelDB(dir string) (BlockStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	return &levelStore{db: db}, nil
}

func (s *levelStore) Put(r Record) error {
	return s.db.Put(key(r.ConsensusID), encodeRecord(r), nil)
}

func (s *levelStore) Get(consensusID uint32) (Record, error) {
	data, err := s.db.Get(key(consensusID), nil)
	if err == leveldb.ErrNotFound {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return decodeRecord(consensusID, data)
}

func (s *levelStore) Latest() (uint32, bool, error) {
	iter := s.db.NewIterator(&util.Range{}, nil)
	defer iter.Release()
	if !iter.Last() {
		return 0, false, iter.Error()
	}
	return decodeKey(iter.Key()), true, iter.Error()
}

func (s *levelStore) Close() error {
	return s.db.Close()
}
