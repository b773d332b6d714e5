// Package store persists finalized consensus outcomes: the proposal
// bytes, the participation bitmap, and the collective signature that
// closed out each instance. It is deliberately small — a
// get/put/iterate surface keyed by consensus id, with a pluggable
// backend so the daemon can run against an embedded LevelDB file or an
// IPFS-style Badger datastore without any caller-visible change.
package store

import (
	"encoding/binary"
	"errors"

	"github.com/shardlabs/shard-consensus/consensus/group"
	"github.com/shardlabs/shard-consensus/crypto"
)

// ErrNotFound is returned by Get when no record exists for a consensus id.
var ErrNotFound = errors.New("store: record not found")

// Record is what gets persisted once an instance's collective
// signature is final.
type Record struct {
	ConsensusID uint32
	BlockHash   [32]byte
	Proposal    []byte
	Bitmap      *group.Bitmap
	Sig         crypto.Signature
}

// BlockStore is the persistence surface the host package writes
// completed instances to; the host reads it back only through Latest,
// to answer a status query.
type BlockStore interface {
	Put(r Record) error
	Get(consensusID uint32) (Record, error)
	// Latest returns the highest consensus id stored, or false if the
	// store is empty.
	Latest() (uint32, bool, error)
	Close() error
}

// key encodes a consensus id as a big-endian 4-byte key so that
// LevelDB's byte-order key iteration doubles as numeric ordering. The
// Badger backend uses its own datastore key instead.
func key(consensusID uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, consensusID)
	return b
}

func decodeKey(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}
