package store

import (
	"fmt"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-ds-badger"
)

// badgerStore is the IPFS-style datastore.Batching-backed alternative
// to levelStore, useful when the process already embeds a Badger
// datastore for other purposes and would rather not run two separate
// on-disk engines.
type badgerStore struct {
	ds *badger.Datastore
}

// OpenBadger opens (creating if absent) a Badger datastore at dir.
func OpenBadger(dir string) (BlockStore, error) {
	d, err := badger.NewDatastore(dir, nil)
	if err != nil {
		return nil, err
	}
	return &badgerStore{ds: d}, nil
}

func dsKey(consensusID uint32) ds.Key {
	return ds.NewKey(fmt.Sprintf("/instances/%010d", consensusID))
}

func (s *badgerStore) Put(r Record) error {
	return s.ds.Put(dsKey(r.ConsensusID), encodeRecord(r))
}

func (s *badgerStore) Get(consensusID uint32) (Record, error) {
	data, err := s.ds.Get(dsKey(consensusID))
	if err == ds.ErrNotFound {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return decodeRecord(consensusID, data)
}

func (s *badgerStore) Latest() (uint32, bool, error) {
	results, err := s.ds.Query(ds.Query{Prefix: "/instances", KeysOnly: true})
	if err != nil {
		return 0, false, err
	}
	defer results.Close()

	var (
		found   bool
		highest uint32
	)
	for entry := range results.Next() {
		if entry.Error != nil {
			return 0, false, entry.Error
		}
		var id uint32
		if _, err := fmt.Sscanf(entry.Key, "/instances/%010d", &id); err != nil {
			continue
		}
		if !found || id > highest {
			found = true
			highest = id
		}
	}
	return highest, found, nil
}

func (s *badgerStore) Close() error {
	return s.ds.Close()
}
