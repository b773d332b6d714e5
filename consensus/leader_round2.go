package consensus

import (
	"context"

	"github.com/dedis/kyber"

	"github.com/shardlabs/shard-consensus/consensus/group"
	"github.com/shardlabs/shard-consensus/consensus/wire"
	"github.com/shardlabs/shard-consensus/crypto"
)

func (l *Leader) handleResponse(ctx context.Context, r *wire.Response, final bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	act := actionProcessResponse
	logAction := "response"
	if final {
		act = actionProcessFinalResponse
		logAction = "final_response"
	}
	if !checkStateMain(act, l.state) {
		return l.reject(ErrWrongState, logAction)
	}
	if int(r.SubsetID) >= len(l.subsets) {
		return l.reject(ErrUnknownSubset, logAction)
	}
	s := l.subsets[r.SubsetID]
	if !checkStateSubset(act, s.state) {
		return l.reject(ErrWrongState, logAction)
	}
	if !s.commitMap.Has(int(r.BackupID)) {
		return l.reject(ErrNotInSubset, logAction)
	}
	if _, dup := s.responseByID[r.BackupID]; dup {
		return l.reject(ErrDuplicateSender, logAction)
	}
	if !l.verifySig(r.Sig, r.SignedBody(), r.BackupID) {
		return l.reject(ErrBadSignature, logAction)
	}
	commitPoint, err := crypto.UnmarshalCommitPoint(s.commitPointMap[r.BackupID])
	if err != nil {
		return l.reject(err, logAction)
	}
	if !crypto.VerifyResponse(r.Response, s.chalScal, l.pubKeyOf(r.BackupID), commitPoint) {
		return l.reject(ErrBadSignature, logAction)
	}
	s.responseByID[r.BackupID] = r.Response

	if len(s.responseByID) == len(s.commitMap.Indices()) {
		l.completeSubsetRound(ctx, int(r.SubsetID), final)
	}
	return true
}

// completeSubsetRound runs when every backup the subset is currently
// waiting on has responded: it aggregates responses into the round's
// collective signature, verifies it, and either pivots the subset into
// round two (first completion) or finalizes the whole instance (second
// completion).
func (l *Leader) completeSubsetRound(ctx context.Context, k int, final bool) {
	s := l.subsets[k]

	responses := make([]kyber.Scalar, 0, len(s.responseByID))
	for _, resp := range s.responseByID {
		sc, err := crypto.UnmarshalResponse(resp)
		if err != nil {
			s.state = SubsetError
			l.log.Error().Err(err).Int("subset", k).Msg("leader: malformed response in subset")
			l.failSubset(k)
			return
		}
		responses = append(responses, sc)
	}
	aggResponse := crypto.AggregateScalars(responses)
	aggRespWire, err := crypto.MarshalResponse(aggResponse)
	if err != nil {
		s.state = SubsetError
		l.log.Error().Err(err).Int("subset", k).Msg("leader: failed to marshal aggregated response")
		l.failSubset(k)
		return
	}
	collSig := crypto.NewSignature(s.challenge, aggRespWire)

	if !crypto.Verify(collSig, s.message, s.aggKey) {
		s.state = SubsetError
		l.log.Error().Err(ErrCollectiveSigFailed).Int("subset", k).Msg("leader: collective signature failed verification")
		l.failSubset(k)
		return
	}
	s.collectiveSig = collSig

	bitmap := s.commitMap.Clone()
	cs := &wire.CollectiveSig{
		ConsensusID:   l.consensusID,
		BlockHash:     l.blockHash,
		LeaderID:      l.myID,
		SubsetID:      uint8(k),
		Bitmap:        bitmap,
		CollectiveSig: collSig,
	}
	sig, err := l.sign(cs.SignedBody())
	if err != nil {
		s.state = SubsetError
		l.failSubset(k)
		return
	}
	cs.LeaderSig = sig

	if !final {
		l.completeRoundOne(ctx, k, s, bitmap, cs)
		return
	}
	l.completeRoundTwo(ctx, k, s, bitmap, cs)
}

func (l *Leader) completeRoundOne(ctx context.Context, k int, s *subset, bitmap *group.Bitmap, cs *wire.CollectiveSig) {
	s.participants = bitmap
	s.message = cs.CollectiveSig[:]
	frame := cs.Encode(l.class, l.instruction)
	indices := bitmap.Indices()
	s.resetForRoundTwo(l.n())
	s.state = SubsetCollectiveSigDone

	l.multicastTo(ctx, indices, frame)

	if l.state == ChallengeDone {
		l.state = CollectiveSigDone
	}
}

func (l *Leader) completeRoundTwo(ctx context.Context, k int, s *subset, bitmap *group.Bitmap, cs *wire.CollectiveSig) {
	s.participants = bitmap
	s.state = SubsetDone
	l.state = Done
	idx := k
	l.finalSubsetID = &idx

	frame := cs.EncodeFinal(l.class, l.instruction)
	l.multicastAll(ctx, frame)

	if l.onComplete != nil {
		proposal, collSig := l.proposal, cs.CollectiveSig
		go l.onComplete(proposal, bitmap, collSig)
	}
}

func (l *Leader) handleFinalCommit(ctx context.Context, c *wire.FinalCommit) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !checkStateMain(actionProcessFinalCommit, l.state) {
		return l.reject(ErrWrongState, "final_commit")
	}
	if int(c.SubsetID) >= len(l.subsets) {
		return l.reject(ErrUnknownSubset, "final_commit")
	}
	s := l.subsets[c.SubsetID]
	if !checkStateSubset(actionProcessFinalCommit, s.state) {
		return l.reject(ErrWrongState, "final_commit")
	}
	if s.participants == nil || !s.participants.Has(int(c.BackupID)) {
		return l.reject(ErrNotInSubset, "final_commit")
	}
	if s.commitMap.Has(int(c.BackupID)) {
		return l.reject(ErrDuplicateSender, "final_commit")
	}
	if !l.verifySig(c.Sig, c.SignedBody(), c.BackupID) {
		return l.reject(ErrBadSignature, "final_commit")
	}

	s.commitMap.Set(int(c.BackupID))
	s.commitPointMap[c.BackupID] = c.CommitPoint

	if len(s.commitMap.Indices()) == len(s.participants.Indices()) {
		l.emitChallengeForSubset(ctx, int(c.SubsetID), true)
	}
	return true
}
