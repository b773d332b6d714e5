package consensus

import (
	"context"

	"github.com/dedis/kyber"

	"github.com/shardlabs/shard-consensus/consensus/group"
	"github.com/shardlabs/shard-consensus/consensus/wire"
	"github.com/shardlabs/shard-consensus/crypto"
	"github.com/shardlabs/shard-consensus/p2p"
)

// Validator is the host-provided predicate a backup runs over the
// proposal bytes carried in ANNOUNCE before committing to it.
type Validator func(proposal []byte) bool

// Backup is the passive side of one consensus instance: it waits for
// ANNOUNCE, then walks CHALLENGE/COLLECTIVESIG/FINALCHALLENGE/
// FINALCOLLECTIVESIG in lockstep with whichever subset the leader
// places it in.
type Backup struct {
	common

	leaderID  uint16
	validator Validator

	commitSecret kyber.Scalar
	commitPoint  kyber.Point

	proposal []byte // the original proposal bytes, kept for the completion callback
	message  []byte // what each round's challenge hashes over: proposal in round one, the round-one collective sig in round two

	subsetID *uint8
	chalScal kyber.Scalar
}

// NewBackup constructs a backup for one instance.
func NewBackup(consensusID uint32, blockHash [32]byte, class, instruction byte, myID uint16, privKey kyber.Scalar, committee []p2p.Peer, leaderID uint16, validator Validator, transport p2p.Transport, cfg Config, onComplete CompletionFunc) *Backup {
	b := &Backup{
		common:    newCommon(consensusID, blockHash, class, instruction, myID, privKey, committee, transport, cfg),
		leaderID:  leaderID,
		validator: validator,
	}
	b.onComplete = onComplete
	return b
}

// OnMessage decodes frame and dispatches it to the appropriate handler
// by its type byte.
func (b *Backup) OnMessage(ctx context.Context, frame []byte, from p2p.Peer) bool {
	if len(frame) < 3 {
		return false
	}
	if !b.seen.Add(frame) {
		return false // exact repeat of an already-processed frame, likely a gossipsub retransmission
	}
	switch frame[2] {
	case wire.TypeAnnounce:
		a, err := wire.DecodeAnnounce(frame, b.class, b.instruction, b.consensusID, b.blockHash)
		if err != nil {
			b.log.Debug().Err(err).Msg("backup: dropping malformed announce")
			return false
		}
		return b.handleAnnounce(ctx, a)
	case wire.TypeChallenge:
		ch, err := wire.DecodeChallenge(frame, b.class, b.instruction, b.consensusID, b.blockHash)
		if err != nil {
			b.log.Debug().Err(err).Msg("backup: dropping malformed challenge")
			return false
		}
		return b.handleChallenge(ctx, ch, false)
	case wire.TypeFinalChallenge:
		ch, err := wire.DecodeFinalChallenge(frame, b.class, b.instruction, b.consensusID, b.blockHash)
		if err != nil {
			b.log.Debug().Err(err).Msg("backup: dropping malformed final challenge")
			return false
		}
		return b.handleChallenge(ctx, ch, true)
	case wire.TypeCollectiveSig:
		cs, err := wire.DecodeCollectiveSig(frame, b.class, b.instruction, b.consensusID, b.blockHash)
		if err != nil {
			b.log.Debug().Err(err).Msg("backup: dropping malformed collective sig")
			return false
		}
		return b.handleCollectiveSig(ctx, cs)
	case wire.TypeFinalCollectiveSig:
		cs, err := wire.DecodeFinalCollectiveSig(frame, b.class, b.instruction, b.consensusID, b.blockHash)
		if err != nil {
			b.log.Debug().Err(err).Msg("backup: dropping malformed final collective sig")
			return false
		}
		return b.handleFinalCollectiveSig(ctx, cs)
	default:
		return false
	}
}

func (b *Backup) handleAnnounce(ctx context.Context, a *wire.Announce) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Initial {
		return b.reject(ErrWrongState, "announce")
	}
	if a.LeaderID != b.leaderID {
		return b.reject(ErrUnknownSender, "announce")
	}
	if !crypto.Verify(a.LeaderSig, a.SignedBody(), b.pubKeyOf(a.LeaderID)) {
		return b.reject(ErrBadSignature, "announce")
	}
	if !b.validator(a.Proposal) {
		b.state = Error
		return false
	}

	secret, point := crypto.NewCommitment()
	b.commitSecret = secret
	b.commitPoint = point
	b.proposal = a.Proposal
	b.message = a.Proposal

	commitWire, err := crypto.MarshalCommitPoint(point)
	if err != nil {
		b.state = Error
		return false
	}
	c := &wire.Commit{
		ConsensusID: b.consensusID,
		BlockHash:   b.blockHash,
		BackupID:    b.myID,
		CommitPoint: commitWire,
	}
	sig, err := b.sign(c.SignedBody())
	if err != nil {
		b.state = Error
		return false
	}
	c.Sig = sig
	b.state = AnnounceDone

	frame := c.Encode(b.class, b.instruction)
	b.unicast(ctx, b.leaderID, frame)
	return true
}

func (b *Backup) handleChallenge(ctx context.Context, ch *wire.Challenge, final bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	logAction := "challenge"
	if final {
		logAction = "final_challenge"
		if b.state != CollectiveSigDone {
			return b.reject(ErrWrongState, logAction)
		}
	} else if b.state != AnnounceDone {
		return b.reject(ErrWrongState, logAction)
	}
	if ch.LeaderID != b.leaderID {
		return b.reject(ErrUnknownSender, logAction)
	}
	if !crypto.Verify(ch.LeaderSig, ch.SignedBody(), b.pubKeyOf(ch.LeaderID)) {
		return b.reject(ErrBadSignature, logAction)
	}
	if !ch.AggCommit.Initialized() || !ch.AggKey.Initialized() {
		return b.reject(crypto.ErrUninitializedPoint, logAction)
	}
	aggCommit, err := crypto.UnmarshalCommitPoint(ch.AggCommit)
	if err != nil {
		return b.reject(err, logAction)
	}
	aggKey, err := crypto.UnmarshalPublicKey(ch.AggKey)
	if err != nil {
		return b.reject(err, logAction)
	}
	chalScalar, gotChallenge, err := crypto.DeriveChallenge(b.message, aggCommit, aggKey)
	if err != nil {
		return b.reject(err, logAction)
	}
	if gotChallenge != ch.Challenge {
		return b.reject(ErrChallengeMismatch, logAction)
	}

	_, respWire, err := crypto.ComputeResponse(b.commitSecret, chalScalar, b.privKey)
	if err != nil {
		b.state = Error
		return false
	}
	b.chalScal = chalScalar
	subsetID := ch.SubsetID
	b.subsetID = &subsetID

	r := &wire.Response{
		ConsensusID: b.consensusID,
		BlockHash:   b.blockHash,
		BackupID:    b.myID,
		SubsetID:    ch.SubsetID,
		Response:    respWire,
	}
	sig, err := b.sign(r.SignedBody())
	if err != nil {
		b.state = Error
		return false
	}
	r.Sig = sig

	var frame []byte
	if final {
		frame = r.EncodeFinal(b.class, b.instruction)
		b.state = FinalChallengeDone
	} else {
		frame = r.Encode(b.class, b.instruction)
		b.state = ChallengeDone
	}
	b.unicast(ctx, b.leaderID, frame)
	return true
}

func (b *Backup) handleCollectiveSig(ctx context.Context, cs *wire.CollectiveSig) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != ChallengeDone {
		return b.reject(ErrWrongState, "collective_sig")
	}
	if b.subsetID == nil || *b.subsetID != cs.SubsetID {
		return b.reject(ErrUnknownSubset, "collective_sig")
	}
	if !crypto.Verify(cs.LeaderSig, cs.SignedBody(), b.pubKeyOf(cs.LeaderID)) {
		return b.reject(ErrBadSignature, "collective_sig")
	}
	aggKey, ok := b.aggregateOverBitmap(cs.Bitmap)
	if !ok {
		return b.reject(ErrUnknownSender, "collective_sig")
	}
	if !crypto.Verify(cs.CollectiveSig, b.message, aggKey) {
		return b.reject(ErrCollectiveSigFailed, "collective_sig")
	}

	if cs.Bitmap.Has(int(b.myID)) {
		secret, point := crypto.NewCommitment()
		b.commitSecret = secret
		b.commitPoint = point
		commitWire, err := crypto.MarshalCommitPoint(point)
		if err != nil {
			b.state = Error
			return false
		}
		fc := &wire.FinalCommit{
			ConsensusID: b.consensusID,
			BlockHash:   b.blockHash,
			BackupID:    b.myID,
			SubsetID:    cs.SubsetID,
			CommitPoint: commitWire,
		}
		sig, err := b.sign(fc.SignedBody())
		if err != nil {
			b.state = Error
			return false
		}
		fc.Sig = sig
		b.unicast(ctx, b.leaderID, fc.Encode(b.class, b.instruction))
	}

	b.message = cs.CollectiveSig[:]
	b.state = CollectiveSigDone
	return true
}

// handleFinalCollectiveSig accepts the round-two collective signature
// from any state other than Done or Error: the leader multicasts it to the whole
// committee, not just the winning subset, so a backup that committed
// in round one but was never selected into that subset (still sitting
// at AnnounceDone or further back) still needs to learn the final
// signature to consider the round closed.
func (b *Backup) handleFinalCollectiveSig(ctx context.Context, cs *wire.CollectiveSig) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Done || b.state == Error {
		return b.reject(ErrWrongState, "final_collective_sig")
	}
	if !crypto.Verify(cs.LeaderSig, cs.SignedBody(), b.pubKeyOf(cs.LeaderID)) {
		return b.reject(ErrBadSignature, "final_collective_sig")
	}
	aggKey, ok := b.aggregateOverBitmap(cs.Bitmap)
	if !ok {
		return b.reject(ErrUnknownSender, "final_collective_sig")
	}

	// Only a backup that walked this exact subset through round one has
	// message set to the round-one collective signature bytes round
	// two's challenge was hashed over, so only it can independently
	// recompute and check the aggregated signature. A backup outside
	// the winning subset never received that value and has no way to
	// derive it, so it falls back to the leader signature already
	// checked above.
	participant := b.subsetID != nil && *b.subsetID == cs.SubsetID
	if participant && !crypto.Verify(cs.CollectiveSig, b.message, aggKey) {
		return b.reject(ErrCollectiveSigFailed, "final_collective_sig")
	}

	b.state = Done
	if b.onComplete != nil {
		proposal, bitmap, sig := b.proposal, cs.Bitmap, cs.CollectiveSig
		go b.onComplete(proposal, bitmap, sig)
	}
	return true
}

// aggregateOverBitmap recomputes the aggregated public key over the
// committee indices set in bitmap, independent of anything the leader
// claimed: the backup's own check that the participation the leader
// reports is consistent with the signature it reports.
func (b *Backup) aggregateOverBitmap(bitmap *group.Bitmap) (kyber.Point, bool) {
	indices := bitmap.Indices()
	keys := make([]kyber.Point, 0, len(indices))
	for _, i := range indices {
		if i >= b.n() {
			return nil, false
		}
		keys = append(keys, b.pubKeyOf(uint16(i)))
	}
	agg, err := crypto.AggregatePoints(keys)
	if err != nil {
		return nil, false
	}
	return agg, true
}
