// Package host is the glue between the consensus core and everything
// around it: it registers the Leader and Backup instances its caller
// starts through StartLeader/StartBackup, routes inbound frames to
// them, de-duplicates consensus ids it has already seen or finished,
// and writes finished results to the block store. It does not create
// an instance on its own when a frame for an unknown id arrives.
package host

import (
	"context"
	"sync"

	"github.com/dedis/kyber"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shardlabs/shard-consensus/consensus"
	"github.com/shardlabs/shard-consensus/consensus/group"
	"github.com/shardlabs/shard-consensus/crypto"
	"github.com/shardlabs/shard-consensus/p2p"
	"github.com/shardlabs/shard-consensus/store"
)

// ErrAlreadySeen is returned by StartLeader/StartBackup when the
// consensus id has already been started or finished by this process.
var ErrAlreadySeen = errors.New("host: consensus id already seen")

// dedupCacheSize bounds how many recent consensus ids this process
// remembers; older ids age out via LRU eviction rather than growing
// memory without bound across a long-running process.
const dedupCacheSize = 4096

// Instance is the narrow surface both consensus.Leader and
// consensus.Backup satisfy, letting Host dispatch inbound frames
// without caring which role is running underneath.
type Instance interface {
	OnMessage(ctx context.Context, frame []byte, from p2p.Peer) bool
}

// Host owns every live consensus instance in this process: which
// consensus ids are in flight or already finished, and where finished
// results land.
type Host struct {
	mu        sync.Mutex
	seen      *lru.Cache // consensusID -> struct{}{}, for in-flight and finished ids alike
	instances map[uint32]Instance

	store store.BlockStore
	log   zerolog.Logger
}

// New builds a Host that persists finished instances to bs. bs may be
// nil, in which case completions are only de-duplicated, not
// persisted — useful for tests that don't need a backing store.
func New(bs store.BlockStore) (*Host, error) {
	cache, err := lru.New(dedupCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "host: failed to build dedup cache")
	}
	return &Host{
		seen:      cache,
		instances: make(map[uint32]Instance),
		store:     bs,
		log:       log.With().Str("component", "host").Logger(),
	}, nil
}

// register records instance as the one handling consensusID, rejecting
// a second registration for an id already seen (in flight or
// finished).
func (h *Host) register(consensusID uint32, inst Instance) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.seen.Get(consensusID); ok {
		return ErrAlreadySeen
	}
	h.seen.Add(consensusID, struct{}{})
	h.instances[consensusID] = inst
	return nil
}

// finish marks consensusID as finished, freeing its Instance slot
// while the id itself stays in the dedup cache (so a replayed or
// duplicated ANNOUNCE for the same id doesn't spin up a second
// instance).
func (h *Host) finish(consensusID uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.instances, consensusID)
}

// Dispatch routes an inbound frame to the instance registered for
// consensusID, reporting false if no such instance is running (either
// never started, or already finished).
func (h *Host) Dispatch(ctx context.Context, consensusID uint32, frame []byte, from p2p.Peer) bool {
	h.mu.Lock()
	inst, ok := h.instances[consensusID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	return inst.OnMessage(ctx, frame, from)
}

// StartLeader registers and starts a new Leader instance for
// consensusID, wiring its completion to persist into the backing
// store. It returns ErrAlreadySeen if this id has already been
// started or finished by this process.
func (h *Host) StartLeader(ctx context.Context, consensusID uint32, blockHash [32]byte, class, instruction byte, myID uint16, privKey kyber.Scalar, committee []p2p.Peer, transport p2p.Transport, cfg consensus.Config, proposal []byte) (*consensus.Leader, error) {
	l := consensus.NewLeader(consensusID, blockHash, class, instruction, myID, privKey, committee, transport, cfg, h.onComplete(consensusID, blockHash))
	if err := h.register(consensusID, l); err != nil {
		return nil, err
	}
	if !l.StartConsensus(ctx, proposal) {
		h.finish(consensusID)
		return nil, errors.New("host: leader declined to start consensus")
	}
	return l, nil
}

// StartBackup registers a new Backup instance for consensusID. It
// returns ErrAlreadySeen if this id has already been started or
// finished by this process.
func (h *Host) StartBackup(consensusID uint32, blockHash [32]byte, class, instruction byte, myID uint16, privKey kyber.Scalar, committee []p2p.Peer, leaderID uint16, validator consensus.Validator, transport p2p.Transport, cfg consensus.Config) (*consensus.Backup, error) {
	b := consensus.NewBackup(consensusID, blockHash, class, instruction, myID, privKey, committee, leaderID, validator, transport, cfg, h.onComplete(consensusID, blockHash))
	if err := h.register(consensusID, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (h *Host) onComplete(consensusID uint32, blockHash [32]byte) consensus.CompletionFunc {
	return func(proposal []byte, bitmap *group.Bitmap, sig crypto.Signature) {
		h.finish(consensusID)
		h.log.Info().
			Uint32("consensus_id", consensusID).
			Ints("participants", bitmap.Indices()).
			Msg("instance completed")

		if h.store == nil {
			return
		}
		err := h.store.Put(store.Record{
			ConsensusID: consensusID,
			BlockHash:   blockHash,
			Proposal:    proposal,
			Bitmap:      bitmap,
			Sig:         sig,
		})
		if err != nil {
			h.log.Error().Err(err).Uint32("consensus_id", consensusID).Msg("failed to persist completed instance")
		}
	}
}

// Status reports the process's in-flight instance count and the highest
// consensus id in the block store, for the status API to surface.
type Status struct {
	InFlight    int
	LatestStore uint32
	HasLatest   bool
}

func (h *Host) Status() (Status, error) {
	h.mu.Lock()
	inFlight := len(h.instances)
	h.mu.Unlock()

	st := Status{InFlight: inFlight}
	if h.store == nil {
		return st, nil
	}
	latest, ok, err := h.store.Latest()
	if err != nil {
		return st, err
	}
	st.LatestStore = latest
	st.HasLatest = ok
	return st, nil
}
