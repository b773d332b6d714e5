package consensus

import (
	"context"
	"sort"

	"github.com/dedis/kyber"

	"github.com/shardlabs/shard-consensus/consensus/wire"
	"github.com/shardlabs/shard-consensus/crypto"
	"github.com/shardlabs/shard-consensus/p2p"
	"github.com/shardlabs/shard-consensus/timer"
)

// Leader drives one consensus instance: it assembles and multicasts
// ANNOUNCE, collects COMMIT, races subsets through CHALLENGE/RESPONSE
// and FINALCHALLENGE/FINALRESPONSE, and emits the collective
// signatures. Safe for concurrent use; every exported method takes the
// instance mutex.
type Leader struct {
	common

	commitPointMap  map[uint16]crypto.CommitPoint
	commitCounter   int
	numForConsensus int

	// commitProcessing is read and written exclusively under l.mu: the
	// commit timer takes l.mu itself to close the window the instant it
	// fires, so no separate mutex is needed to guard it.
	commitProcessing CommitProcessingState
	commitTimer      *timer.OneShot

	subsets       []*subset
	finalSubsetID *int

	proposal []byte
}

// NewLeader constructs a leader for one instance. committee[myID] must
// be this node's own entry; the leader's own public key is hashed into
// the challenge of every signature it sends.
func NewLeader(consensusID uint32, blockHash [32]byte, class, instruction byte, myID uint16, privKey kyber.Scalar, committee []p2p.Peer, transport p2p.Transport, cfg Config, onComplete CompletionFunc) *Leader {
	l := &Leader{
		common:          newCommon(consensusID, blockHash, class, instruction, myID, privKey, committee, transport, cfg),
		commitPointMap:  make(map[uint16]crypto.CommitPoint),
		numForConsensus: NumForConsensus(len(committee), cfg.ToleranceFraction),
	}
	l.onComplete = onComplete
	return l
}

// StartConsensus assembles and multicasts ANNOUNCE for proposal, then
// arms the commit window timer. Returns false (no-op) if the instance
// is not in its initial state.
func (l *Leader) StartConsensus(ctx context.Context, proposal []byte) bool {
	l.mu.Lock()
	if !checkStateMain(actionSendAnnouncement, l.state) {
		l.mu.Unlock()
		return false
	}
	l.proposal = proposal
	a := &wire.Announce{
		ConsensusID: l.consensusID,
		BlockHash:   l.blockHash,
		LeaderID:    l.myID,
		Proposal:    proposal,
	}
	sig, err := l.sign(a.SignedBody())
	if err != nil {
		l.state = Error
		l.mu.Unlock()
		l.log.Error().Err(err).Msg("leader: failed to sign announce")
		return false
	}
	a.LeaderSig = sig
	l.state = AnnounceDone
	l.commitCounter = 0
	l.commitProcessing = AcceptingCommits
	frame := a.Encode(l.class, l.instruction)
	l.mu.Unlock()

	l.multicastAll(ctx, frame)
	l.commitTimer = timer.New(l.cfg.CommitWindow, func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		// Close the window from the timer goroutine itself rather than
		// waiting for a COMMIT that may never arrive again (every backup
		// may have already committed before the timer fired).
		if l.commitProcessing == AcceptingCommits {
			l.commitProcessing = CommitTimerExpired
			l.closeCommitWindow(ctx)
		}
	})
	return true
}

// OnMessage decodes frame and dispatches it to the appropriate handler
// by its type byte. Returns true if the frame was accepted and drove a
// state transition, false if it was silently rejected.
func (l *Leader) OnMessage(ctx context.Context, frame []byte, from p2p.Peer) bool {
	if len(frame) < 3 {
		return false
	}
	if !l.seen.Add(frame) {
		return false // exact repeat of an already-processed frame, likely a gossipsub retransmission
	}
	switch frame[2] {
	case wire.TypeCommit:
		c, err := wire.DecodeCommit(frame, l.class, l.instruction, l.consensusID, l.blockHash)
		if err != nil {
			l.log.Debug().Err(err).Msg("leader: dropping malformed commit")
			return false
		}
		return l.handleCommit(ctx, c)
	case wire.TypeResponse:
		r, err := wire.DecodeResponse(frame, l.class, l.instruction, l.consensusID, l.blockHash)
		if err != nil {
			l.log.Debug().Err(err).Msg("leader: dropping malformed response")
			return false
		}
		return l.handleResponse(ctx, r, false)
	case wire.TypeFinalResponse:
		r, err := wire.DecodeFinalResponse(frame, l.class, l.instruction, l.consensusID, l.blockHash)
		if err != nil {
			l.log.Debug().Err(err).Msg("leader: dropping malformed final response")
			return false
		}
		return l.handleResponse(ctx, r, true)
	case wire.TypeFinalCommit:
		c, err := wire.DecodeFinalCommit(frame, l.class, l.instruction, l.consensusID, l.blockHash)
		if err != nil {
			l.log.Debug().Err(err).Msg("leader: dropping malformed final commit")
			return false
		}
		return l.handleFinalCommit(ctx, c)
	default:
		return false
	}
}

func (l *Leader) handleCommit(ctx context.Context, c *wire.Commit) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// The commit timer closes the window itself, under l.mu, the moment
	// it fires (see StartConsensus) rather than waiting for a COMMIT
	// that might never arrive again. So by the time a COMMIT can reach
	// here, commitProcessing is either still open or already closed;
	// CommitTimerExpired is a transition the timer never leaves visible.
	if l.commitProcessing != AcceptingCommits {
		return false
	}
	return l.acceptCommit(c)
}

func (l *Leader) acceptCommit(c *wire.Commit) bool {
	if !checkStateMain(actionProcessCommit, l.state) {
		return l.reject(ErrWrongState, "commit")
	}
	if int(c.BackupID) >= l.n() {
		return l.reject(ErrUnknownSender, "commit")
	}
	if _, dup := l.commitPointMap[c.BackupID]; dup {
		return l.reject(ErrDuplicateSender, "commit")
	}
	if !l.verifySig(c.Sig, c.SignedBody(), c.BackupID) {
		return l.reject(ErrBadSignature, "commit")
	}
	l.commitPointMap[c.BackupID] = c.CommitPoint
	l.commitCounter++
	if l.commitCounter%10 == 0 {
		l.log.Info().Int("received", l.commitCounter).Int("num_for_consensus", l.numForConsensus).Msg("leader: commit progress")
	}
	return true
}

// closeCommitWindow runs under l.mu, called directly from the commit
// timer callback the instant it fires: if quorum was reached, build
// subsets and emit first-round challenges; otherwise the instance
// errors out.
func (l *Leader) closeCommitWindow(ctx context.Context) {
	defer func() { l.commitProcessing = CommitListsGenerated }()

	if l.commitCounter < l.numForConsensus {
		l.state = Error
		l.log.Warn().Err(ErrNotEnoughCommits).Int("commit_counter", l.commitCounter).Int("num_for_consensus", l.numForConsensus).Msg("leader: commit window closed below quorum")
		return
	}
	l.generateSubsets()
	l.emitChallenges(ctx)
	l.state = ChallengeDone
}

// generateSubsets builds NumConsensusSets racing subsets from the set
// of backups who committed before the window closed, then discards
// commitPointMap (its job is done).
func (l *Leader) generateSubsets() {
	committers := make([]uint16, 0, len(l.commitPointMap))
	for id := range l.commitPointMap {
		committers = append(committers, id)
	}
	sort.Slice(committers, func(i, j int) bool { return committers[i] < committers[j] })

	for k := 0; k < l.cfg.NumConsensusSets; k++ {
		seed := subsetSeed(l.blockHash, k)
		chosen := shuffleCommitters(committers, l.numForConsensus, seed)
		sort.Slice(chosen, func(i, j int) bool { return chosen[i] < chosen[j] })

		s := newSubset(l.n())
		s.message = l.proposal
		for _, id := range chosen {
			s.commitMap.Set(int(id))
			s.commitPointMap[id] = l.commitPointMap[id]
		}
		l.subsets = append(l.subsets, s)
	}
	l.commitPointMap = make(map[uint16]crypto.CommitPoint)
}

// emitChallenges emits the first-round CHALLENGE burst for every live
// subset right after the commit window closes.
func (l *Leader) emitChallenges(ctx context.Context) {
	for k, s := range l.subsets {
		if s.state == SubsetError || s.state == SubsetDone {
			continue
		}
		l.emitChallengeForSubset(ctx, k, false)
	}
}

// emitChallengeForSubset aggregates commit points and public keys over
// subset k's current commitMap and multicasts CHALLENGE (or
// FINALCHALLENGE) to exactly those participants.
func (l *Leader) emitChallengeForSubset(ctx context.Context, k int, final bool) {
	s := l.subsets[k]
	participants := s.commitMap.Indices()
	commitPoints := make([]kyber.Point, 0, len(participants))
	pubKeys := make([]kyber.Point, 0, len(participants))
	for _, id := range participants {
		cp, err := crypto.UnmarshalCommitPoint(s.commitPointMap[uint16(id)])
		if err != nil {
			s.state = SubsetError
			l.log.Error().Err(err).Int("subset", k).Msg("leader: malformed commit point in subset")
			l.failSubset(k)
			return
		}
		commitPoints = append(commitPoints, cp)
		pubKeys = append(pubKeys, l.pubKeyOf(uint16(id)))
	}

	aggCommit, err := crypto.AggregatePoints(commitPoints)
	if err != nil {
		s.state = SubsetError
		l.log.Error().Err(err).Int("subset", k).Msg("leader: commit point aggregation failed")
		l.failSubset(k)
		return
	}
	aggKey, err := crypto.AggregatePoints(pubKeys)
	if err != nil {
		s.state = SubsetError
		l.log.Error().Err(err).Int("subset", k).Msg("leader: public key aggregation failed")
		l.failSubset(k)
		return
	}
	chalScalar, chal, err := crypto.DeriveChallenge(s.message, aggCommit, aggKey)
	if err != nil {
		s.state = SubsetError
		l.log.Error().Err(err).Int("subset", k).Msg("leader: challenge derivation failed")
		l.failSubset(k)
		return
	}
	s.aggCommit = aggCommit
	s.aggKey = aggKey
	s.challenge = chal
	s.chalScal = chalScalar

	aggCommitWire, err1 := crypto.MarshalCommitPoint(aggCommit)
	aggKeyWire, err2 := crypto.MarshalPublicKey(aggKey)
	if err1 != nil || err2 != nil {
		s.state = SubsetError
		l.failSubset(k)
		return
	}

	ch := &wire.Challenge{
		ConsensusID: l.consensusID,
		BlockHash:   l.blockHash,
		LeaderID:    l.myID,
		SubsetID:    uint8(k),
		AggCommit:   aggCommitWire,
		AggKey:      aggKeyWire,
		Challenge:   chal,
	}
	sig, err := l.sign(ch.SignedBody())
	if err != nil {
		s.state = SubsetError
		l.failSubset(k)
		return
	}
	ch.LeaderSig = sig

	var frame []byte
	if final {
		frame = ch.EncodeFinal(l.class, l.instruction)
		s.state = SubsetFinalChallengeDone
	} else {
		frame = ch.Encode(l.class, l.instruction)
		s.state = SubsetChallengeDone
	}
	l.multicastTo(ctx, participants, frame)
}

// failSubset checks whether subset k's failure was the last live
// subset standing; if so the whole instance errors out rather than
// waiting on challenges/responses no subset can ever produce.
func (l *Leader) failSubset(k int) {
	if !l.allSubsetsExhausted() {
		return
	}
	l.state = Error
	l.log.Warn().Err(ErrAllSubsetsExhausted).Msg("leader: every subset failed to reach quorum")
}

func (l *Leader) allSubsetsExhausted() bool {
	if len(l.subsets) == 0 {
		return false
	}
	for _, s := range l.subsets {
		if s.state != SubsetError {
			return false
		}
	}
	return true
}
